package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"navi/pkg/protocol"
)

// killGracePeriod is how long Kill waits after SIGTERM before SIGKILL.
const killGracePeriod = 3 * time.Second

// readChunkSize is the stdout read buffer size.
const readChunkSize = 32 * 1024

// Config describes one subprocess launch.
type Config struct {
	SessionID      string
	Prompt         string
	Workdir        string
	Model          string
	ResumeToken    string // runtime session token from a previous turn
	AutoApprove    bool   // children execute unattended; tool use is auto-granted
	SessionContext string // ambient multi-session context block
}

// Sink receives decoded subprocess output. Line is called once per decoded
// message, in production order; Exit fires exactly once when the process
// ends, with the decoded final undelimited message when one was buffered.
type Sink interface {
	Line(sessionID string, msg protocol.Message)
	Exit(sessionID string, err error, last *protocol.Message)
}

// Proc is a running subprocess from the caller's perspective: a correlated
// input stream and a kill switch.
type Proc interface {
	Send(msg protocol.Message) error
	Kill() error
}

// Supervisor spawns and tracks one runtime subprocess per session.
//
// Thread-safe: all access to the process map is protected by a mutex.
type Supervisor struct {
	runtimeBin string
	logger     *slog.Logger
	mu         sync.Mutex
	procs      map[string]*Handle
	wg         sync.WaitGroup

	// cmdFactory builds the exec.Cmd for a launch. Tests override it to
	// spawn a controllable command instead of the real runtime.
	cmdFactory func(cfg Config) *exec.Cmd
}

// New creates a Supervisor that launches runtimeBin (e.g. "claude").
func New(runtimeBin string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		runtimeBin: runtimeBin,
		logger:     logger,
		procs:      make(map[string]*Handle),
	}
	s.cmdFactory = func(cfg Config) *exec.Cmd {
		//nolint:gosec // intentionally spawning the agent runtime
		cmd := exec.CommandContext(context.Background(), runtimeBin, buildRuntimeArgs(cfg)...)
		cmd.Dir = cfg.Workdir
		return cmd
	}
	return s
}

// SetCmdFactory replaces the command factory (for tests).
func (s *Supervisor) SetCmdFactory(factory func(cfg Config) *exec.Cmd) {
	s.cmdFactory = factory
}

// buildRuntimeArgs constructs the argument list for one runtime invocation.
func buildRuntimeArgs(cfg Config) []string {
	args := []string{
		"-p", cfg.Prompt,
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.ResumeToken != "" {
		args = append(args, "--resume", cfg.ResumeToken)
	}
	if cfg.AutoApprove {
		args = append(args, "--permission-mode", "bypassPermissions")
	}
	if cfg.SessionContext != "" {
		args = append(args, "--append-system-prompt", cfg.SessionContext)
	}
	return args
}

// Spawn launches a subprocess for the session and wires its output to sink.
// It fails loudly when the runtime executable cannot start; the caller must
// surface that as a session-level error, not retry silently.
func (s *Supervisor) Spawn(_ context.Context, cfg Config, sink Sink) (Proc, error) {
	cmd := s.cmdFactory(cfg)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe for session %s: %w", cfg.SessionID, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for session %s: %w", cfg.SessionID, err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, &protocol.StartupError{SessionID: cfg.SessionID, Runtime: s.runtimeBin, Err: err}
	}

	h := &Handle{
		sessionID: cfg.SessionID,
		cmd:       cmd,
		stdin:     stdin,
	}

	s.mu.Lock()
	s.procs[cfg.SessionID] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(h, stdout, sink)

	return h, nil
}

// readLoop consumes the subprocess stdout, splits it into lines, decodes
// each line independently, and forwards messages to the sink. A line that
// fails to decode is logged and dropped. On stream end it reaps the process
// and delivers the exit notification, including a decoded final undelimited
// message when present.
func (s *Supervisor) readLoop(h *Handle, stdout io.Reader, sink Sink) {
	defer s.wg.Done()

	var lb LineBuffer
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, line := range lb.Feed(buf[:n]) {
				if len(line) == 0 {
					continue
				}
				var msg protocol.Message
				if jsonErr := json.Unmarshal(line, &msg); jsonErr != nil {
					s.logger.Warn("dropping malformed line",
						"session", h.sessionID, "err", jsonErr, "len", len(line))
					continue
				}
				sink.Line(h.sessionID, msg)
			}
		}
		if err != nil {
			break
		}
	}

	waitErr := h.cmd.Wait()

	var last *protocol.Message
	if rest := lb.Rest(); rest != nil {
		var msg protocol.Message
		if jsonErr := json.Unmarshal(rest, &msg); jsonErr == nil {
			last = &msg
		}
	}

	s.mu.Lock()
	delete(s.procs, h.sessionID)
	s.mu.Unlock()

	sink.Exit(h.sessionID, waitErr, last)
}

// Active returns the session IDs with a live subprocess.
func (s *Supervisor) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	return ids
}

// KillAll terminates every tracked subprocess. Used on daemon shutdown.
func (s *Supervisor) KillAll() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.procs))
	for _, h := range s.procs {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		_ = h.Kill()
	}
}

// Wait blocks until all read loops have completed.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Handle is the live binding to one subprocess.
type Handle struct {
	sessionID string
	cmd       *exec.Cmd
	mu        sync.Mutex
	stdin     io.WriteCloser
	killed    bool
}

// Send writes one encoded message followed by a newline to the subprocess
// input stream. No acknowledgment is expected; correlation is the caller's
// responsibility.
func (h *Handle) Send(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin == nil {
		return fmt.Errorf("session %s: stdin closed", h.sessionID)
	}
	if _, err := h.stdin.Write(data); err != nil {
		return fmt.Errorf("write to session %s: %w", h.sessionID, err)
	}
	return nil
}

// CloseStdin closes the input stream, signalling the runtime to finish.
func (h *Handle) CloseStdin() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin != nil {
		_ = h.stdin.Close()
		h.stdin = nil
	}
}

// Kill sends SIGTERM to the subprocess's process group, waits a short grace
// period, then SIGKILLs if it is still alive. Safe to call more than once.
func (h *Handle) Kill() error {
	h.mu.Lock()
	if h.killed {
		h.mu.Unlock()
		return nil
	}
	h.killed = true
	proc := h.cmd.Process
	h.mu.Unlock()

	if proc == nil {
		return nil
	}

	// Negative PID targets the whole process group so runtime descendants
	// (node, bash) die with it.
	pgid := proc.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		_ = proc.Kill()
		return nil //nolint:nilerr // SIGTERM failure means the process already exited
	}

	// The read loop owns cmd.Wait, so poll for exit instead of waiting.
	deadline := time.Now().Add(killGracePeriod)
	for time.Now().Before(deadline) {
		if syscall.Kill(pgid, 0) != nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	return nil
}
