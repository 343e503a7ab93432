package continuation_test

import (
	"os"
	"path/filepath"
	"testing"

	"navi/pkg/continuation"
	"navi/pkg/protocol"
)

func TestPhraseJudgeExplicitCompletionWins(t *testing.T) {
	t.Parallel()
	j := continuation.NewPhraseJudge(continuation.SignalSet{})

	// The explicit phrase must short-circuit even with a TODO in the same text.
	v := j.Judge(continuation.Input{
		FinalContent: "All done. TODO: maybe refactor later.",
	})
	if !v.Complete {
		t.Fatalf("verdict = %+v, want complete (explicit phrase first)", v)
	}
}

func TestPhraseJudgeIncompleteSignals(t *testing.T) {
	t.Parallel()
	j := continuation.NewPhraseJudge(continuation.SignalSet{})

	cases := []struct {
		name    string
		content string
	}{
		{"still need to", "I still need to wire up the config loader."},
		{"todo marker", "Progress so far:\n- [x] parser\n- [ ] writer"},
		{"in progress", "The migration is in progress."},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := j.Judge(continuation.Input{FinalContent: tc.content})
			if v.Complete {
				t.Errorf("content %q judged complete: %+v", tc.content, v)
			}
		})
	}
}

func TestPhraseJudgeTodosDecide(t *testing.T) {
	t.Parallel()
	j := continuation.NewPhraseJudge(continuation.SignalSet{})

	v := j.Judge(continuation.Input{
		FinalContent: "Wrapped up this pass.",
		Todos: []protocol.TodoItem{
			{Content: "write tests", Status: protocol.TodoCompleted},
			{Content: "update docs", Status: "pending"},
			{Content: "ship it", Status: "in_progress"},
		},
	})
	if v.Complete {
		t.Fatalf("verdict = %+v, want incomplete", v)
	}
	if v.OpenItems != 2 {
		t.Errorf("OpenItems = %d, want 2", v.OpenItems)
	}
}

func TestPhraseJudgeDefaultsToComplete(t *testing.T) {
	t.Parallel()
	j := continuation.NewPhraseJudge(continuation.SignalSet{})

	v := j.Judge(continuation.Input{
		FinalContent: "Refactored the session router and added coverage.",
		Todos: []protocol.TodoItem{
			{Content: "refactor", Status: protocol.TodoCompleted},
		},
	})
	if !v.Complete {
		t.Fatalf("verdict = %+v, want complete by default", v)
	}
}

func TestLoadSignalsMissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	s, err := continuation.LoadSignals(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Complete) == 0 || len(s.Incomplete) == 0 {
		t.Errorf("defaults not applied: %+v", s)
	}
}

func TestLoadSignalsFromYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signals.yaml")
	data := "complete:\n  - mission accomplished\nincomplete:\n  - needs more work\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := continuation.LoadSignals(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Complete) != 1 || s.Complete[0] != "mission accomplished" {
		t.Errorf("complete = %v", s.Complete)
	}

	j := continuation.NewPhraseJudge(s)
	if v := j.Judge(continuation.Input{FinalContent: "Mission accomplished!"}); !v.Complete {
		t.Errorf("custom phrase not honored: %+v", v)
	}
	if v := j.Judge(continuation.Input{FinalContent: "this needs more work"}); v.Complete {
		t.Errorf("custom incomplete phrase not honored: %+v", v)
	}
}

func TestSetSignalsHotSwap(t *testing.T) {
	t.Parallel()
	j := continuation.NewPhraseJudge(continuation.SignalSet{})

	if v := j.Judge(continuation.Input{FinalContent: "banana"}); !v.Complete {
		t.Fatalf("unexpected incomplete before swap: %+v", v)
	}
	j.SetSignals(continuation.SignalSet{Incomplete: []string{"banana"}})
	if v := j.Judge(continuation.Input{FinalContent: "banana"}); v.Complete {
		t.Errorf("swapped incomplete phrase not applied: %+v", v)
	}
}

func TestStateAdvanceStopsAtCap(t *testing.T) {
	t.Parallel()

	st := continuation.NewState("build it", 3)
	cycles := 0
	for st.Advance() {
		cycles++
		if cycles > 10 {
			t.Fatal("runaway loop")
		}
	}
	if cycles != 3 {
		t.Errorf("performed %d cycles, want exactly 3", cycles)
	}
	if st.Iteration != 3 {
		t.Errorf("Iteration = %d, want 3", st.Iteration)
	}
}

func TestStateAccumulatesCost(t *testing.T) {
	t.Parallel()

	st := continuation.NewState("build it", 2)
	st.AddCost(0.10)
	st.AddCost(0.15)
	if st.AccumulatedCost != 0.25 {
		t.Errorf("AccumulatedCost = %v, want 0.25", st.AccumulatedCost)
	}
}
