package supervisor //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"navi/pkg/protocol"
)

// collectSink records Line and Exit calls.
type collectSink struct {
	mu     sync.Mutex
	lines  []protocol.Message
	exited bool
	last   *protocol.Message
	err    error
}

func (c *collectSink) Line(_ string, msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, msg)
}

func (c *collectSink) Exit(_ string, err error, last *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exited = true
	c.err = err
	c.last = last
}

func (c *collectSink) snapshot() (int, bool, *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines), c.exited, c.last
}

// waitFor polls condition every tick until it returns true or timeout expires.
func waitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("waitFor: condition not met within %v", timeout)
}

func newTestSupervisor() *Supervisor {
	return New("claude", slog.Default())
}

func TestSpawnDecodesLinesAndSkipsMalformed(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor()
	s.SetCmdFactory(func(_ Config) *exec.Cmd {
		// Two valid messages around a malformed line; the bad line must be
		// skipped without aborting the stream.
		script := `printf '{"type":"message","message":{"role":"assistant","content":"hi"}}\n'` +
			`; printf 'not json\n'` +
			`; printf '{"type":"complete","complete":{"last_assistant_content":"done"}}\n'`
		return exec.CommandContext(context.Background(), "sh", "-c", script)
	})

	sink := &collectSink{}
	if _, err := s.Spawn(context.Background(), Config{SessionID: "s1"}, sink); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	waitFor(t, func() bool { _, exited, _ := sink.snapshot(); return exited }, 2*time.Second)

	n, _, _ := sink.snapshot()
	if n != 2 {
		t.Fatalf("decoded %d messages, want 2 (malformed line dropped)", n)
	}
	if sink.lines[0].Type != protocol.MsgMessage || sink.lines[1].Type != protocol.MsgComplete {
		t.Errorf("message types = %v, %v", sink.lines[0].Type, sink.lines[1].Type)
	}
}

func TestSpawnDeliversFinalUndelimitedMessage(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor()
	s.SetCmdFactory(func(_ Config) *exec.Cmd {
		// The trailing complete has no newline: it must arrive via Exit, not Line.
		script := `printf '{"type":"message","message":{"role":"assistant","content":"x"}}\n'` +
			`; printf '{"type":"complete","complete":{"last_assistant_content":"all done"}}'`
		return exec.CommandContext(context.Background(), "sh", "-c", script)
	})

	sink := &collectSink{}
	if _, err := s.Spawn(context.Background(), Config{SessionID: "s1"}, sink); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	waitFor(t, func() bool { _, exited, _ := sink.snapshot(); return exited }, 2*time.Second)

	n, _, last := sink.snapshot()
	if n != 1 {
		t.Fatalf("decoded %d line messages, want 1", n)
	}
	if last == nil || last.Type != protocol.MsgComplete {
		t.Fatalf("final buffered message not delivered on exit: %+v", last)
	}
	if last.Complete == nil || last.Complete.LastAssistantContent != "all done" {
		t.Errorf("final complete payload = %+v", last.Complete)
	}
}

func TestSpawnFailsLoudlyWhenRuntimeMissing(t *testing.T) {
	t.Parallel()

	s := New("navi-test-no-such-binary", slog.Default())
	sink := &collectSink{}
	_, err := s.Spawn(context.Background(), Config{SessionID: "s1"}, sink)
	if err == nil {
		t.Fatal("spawn of a missing runtime must fail")
	}
	var se *protocol.StartupError
	if !errors.As(err, &se) {
		t.Fatalf("expected StartupError, got %T: %v", err, err)
	}
	if se.SessionID != "s1" {
		t.Errorf("StartupError.SessionID = %q", se.SessionID)
	}
}

func TestSendWritesLineDelimitedJSON(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor()
	s.SetCmdFactory(func(_ Config) *exec.Cmd {
		// cat echoes stdin back to stdout, so a Send round-trips to the sink.
		return exec.CommandContext(context.Background(), "cat")
	})

	sink := &collectSink{}
	proc, err := s.Spawn(context.Background(), Config{SessionID: "s1"}, sink)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	msg := protocol.Message{
		Type: protocol.MsgPermissionResponse,
		PermissionResponse: &protocol.PermissionResponsePayload{
			RequestID: "r1",
			Approved:  true,
		},
	}
	if err := proc.Send(msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, func() bool { n, _, _ := sink.snapshot(); return n == 1 }, 2*time.Second)
	if sink.lines[0].PermissionResponse == nil || !sink.lines[0].PermissionResponse.Approved {
		t.Errorf("echoed message = %+v", sink.lines[0])
	}

	h, ok := proc.(*Handle)
	if !ok {
		t.Fatalf("proc is %T, want *Handle", proc)
	}
	h.CloseStdin()
	waitFor(t, func() bool { _, exited, _ := sink.snapshot(); return exited }, 2*time.Second)
}

func TestKillRemovesProcessAndIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor()
	s.SetCmdFactory(func(_ Config) *exec.Cmd {
		return exec.CommandContext(context.Background(), "sleep", "60")
	})

	sink := &collectSink{}
	proc, err := s.Spawn(context.Background(), Config{SessionID: "s1"}, sink)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if got := len(s.Active()); got != 1 {
		t.Fatalf("Active = %d, want 1", got)
	}

	if err := proc.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("second kill must be a no-op, got %v", err)
	}

	waitFor(t, func() bool { return len(s.Active()) == 0 }, 5*time.Second)
	waitFor(t, func() bool { _, exited, _ := sink.snapshot(); return exited }, 5*time.Second)
}

func TestBuildRuntimeArgs(t *testing.T) {
	t.Parallel()

	t.Run("base args", func(t *testing.T) {
		t.Parallel()
		args := buildRuntimeArgs(Config{Prompt: "do the thing"})
		want := []string{"-p", "do the thing", "--output-format", "stream-json", "--input-format", "stream-json", "--verbose"}
		if len(args) != len(want) {
			t.Fatalf("got %d args, want %d: %v", len(args), len(want), args)
		}
		for i := range want {
			if args[i] != want[i] {
				t.Errorf("arg[%d] = %q, want %q", i, args[i], want[i])
			}
		}
	})

	t.Run("resume and auto-approve", func(t *testing.T) {
		t.Parallel()
		args := buildRuntimeArgs(Config{
			Prompt:      "continue",
			Model:       "sonnet",
			ResumeToken: "tok-1",
			AutoApprove: true,
		})
		joined := strings.Join(args, " ")
		for _, want := range []string{"--model sonnet", "--resume tok-1", "--permission-mode bypassPermissions"} {
			if !strings.Contains(joined, want) {
				t.Errorf("args missing %q: %v", want, args)
			}
		}
	})
}
