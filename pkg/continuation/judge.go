// Package continuation implements the "until done" loop: a heuristic check
// over a completed turn that decides whether the session should be
// re-invoked with a continuation prompt. The heuristic is keyword-based and
// deliberately pluggable; the phrase lists hot-reload from a signals file.
package continuation

import (
	"fmt"
	"strings"
	"sync"

	"navi/pkg/protocol"
)

// Prompt is the fixed re-invocation prompt for an incomplete turn.
const Prompt = "continue working until complete"

// uncheckedMarker is a markdown checklist item that was never ticked.
const uncheckedMarker = "- [ ]"

// Verdict is the outcome of one completion check.
type Verdict struct {
	Complete  bool
	Reason    string
	OpenItems int // non-completed todo items, when they decided the verdict
}

// Input is what a completed turn exposes to the judge.
type Input struct {
	FinalContent string
	Todos        []protocol.TodoItem
}

// Judge decides whether a completed turn finished its task. Implementations
// must be safe for concurrent use.
type Judge interface {
	Judge(in Input) Verdict
}

// PhraseJudge classifies a turn by ordered keyword lists. Explicit
// completion phrases are checked first and short-circuit: "all done" wins
// even when the same content carries a TODO. Absent any signal, the turn is
// treated as complete.
type PhraseJudge struct {
	mu      sync.RWMutex
	signals SignalSet
}

// NewPhraseJudge builds a judge from the given signal set; zero-value lists
// fall back to the defaults.
func NewPhraseJudge(signals SignalSet) *PhraseJudge {
	signals.withDefaults()
	return &PhraseJudge{signals: signals}
}

// SetSignals atomically replaces the phrase lists (hot reload).
func (j *PhraseJudge) SetSignals(signals SignalSet) {
	signals.withDefaults()
	j.mu.Lock()
	j.signals = signals
	j.mu.Unlock()
}

// Judge implements Judge.
func (j *PhraseJudge) Judge(in Input) Verdict {
	j.mu.RLock()
	signals := j.signals
	j.mu.RUnlock()

	content := strings.ToLower(in.FinalContent)

	for _, phrase := range signals.Complete {
		if strings.Contains(content, strings.ToLower(phrase)) {
			return Verdict{Complete: true, Reason: fmt.Sprintf("explicit completion signal %q", phrase)}
		}
	}

	for _, phrase := range signals.Incomplete {
		if strings.Contains(content, strings.ToLower(phrase)) {
			return Verdict{Reason: fmt.Sprintf("incompleteness signal %q", phrase)}
		}
	}
	if strings.Contains(in.FinalContent, uncheckedMarker) {
		return Verdict{Reason: "unchecked checklist items remain"}
	}

	if open := countOpen(in.Todos); open > 0 {
		return Verdict{
			Reason:    fmt.Sprintf("%d todo item(s) not completed", open),
			OpenItems: open,
		}
	}

	// Absence of evidence of incompleteness counts as completion.
	return Verdict{Complete: true, Reason: "no incompleteness signals"}
}

func countOpen(todos []protocol.TodoItem) int {
	n := 0
	for _, t := range todos {
		if t.Status != protocol.TodoCompleted {
			n++
		}
	}
	return n
}
