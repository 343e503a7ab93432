// Package orchestrator is the engine core: it routes client commands to
// runtime subprocesses, supervises the session hierarchy (spawn, context,
// escalate, deliver, decision log), correlates pending decisions through the
// gate, and drives the "until done" continuation loop.
//
// Concurrency model: subprocess output and client commands arrive on
// arbitrary goroutines; every orchestrator-owned map (active processes,
// continuation state, escalation timers) is mutated only under one mutex.
// Store writes are fire-and-forget: a persistence failure is logged, never
// allowed to stall message routing.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"navi/pkg/continuation"
	"navi/pkg/gate"
	"navi/pkg/protocol"
	"navi/pkg/store"
	"navi/pkg/supervisor"
)

// Defaults applied by Config.withDefaults.
const (
	defaultRuntimeBin        = "claude"
	defaultMaxChildren       = 5
	defaultMaxIterations     = 10
	defaultEscalationTimeout = time.Hour
	defaultContinueDelay     = 2 * time.Second
)

// Config holds the orchestrator's tunables.
type Config struct {
	SocketPath        string
	RuntimeBin        string
	DefaultModel      string
	Workdir           string
	MaxChildren       int           // concurrent children per parent
	MaxIterations     int           // "until done" cap when the client sends none
	EscalationTimeout time.Duration // negative disables the timeout
	ContinueDelay     time.Duration // pause before a continuation re-invoke
}

func (c Config) withDefaults() Config {
	if c.RuntimeBin == "" {
		c.RuntimeBin = defaultRuntimeBin
	}
	if c.MaxChildren == 0 {
		c.MaxChildren = defaultMaxChildren
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = defaultMaxIterations
	}
	if c.EscalationTimeout == 0 {
		c.EscalationTimeout = defaultEscalationTimeout
	}
	if c.ContinueDelay == 0 {
		c.ContinueDelay = defaultContinueDelay
	}
	return c
}

// ClientConn is a bound client connection. Implementations must be safe for
// concurrent Send calls.
type ClientConn interface {
	Send(ev protocol.Event) error
}

// Spawner launches runtime subprocesses. *supervisor.Supervisor satisfies
// it; tests substitute a fake.
type Spawner interface {
	Spawn(ctx context.Context, cfg supervisor.Config, sink supervisor.Sink) (supervisor.Proc, error)
}

// ContextResolver answers a worker's get_context queries.
type ContextResolver interface {
	Resolve(ctx context.Context, sessionID string, req protocol.GetContextPayload) (content string, metadata map[string]string, err error)
}

// activeProcess pairs a session with its live subprocess and (nullable)
// client connection. At most one exists per session ID.
type activeProcess struct {
	sessionID string
	proc      supervisor.Proc
	conn      ClientConn // nil while detached
	autoAll   bool       // approve_all granted: auto-resolve future permission requests
	childProc bool       // spawned as a child (unattended)
}

// Orchestrator owns all per-session runtime state.
type Orchestrator struct {
	cfg      Config
	store    *store.Store
	spawner  Spawner
	gate     *gate.Table
	judge    continuation.Judge
	resolver ContextResolver
	logger   *slog.Logger

	mu       sync.Mutex
	procs    map[string]*activeProcess
	cont     map[string]*continuation.State
	contConn map[string]ClientConn  // binding held across a continuation delay
	timers   map[string]*time.Timer // escalation timeouts keyed by request ID

	nowFunc func() time.Time
}

// New wires an Orchestrator. judge and resolver may be nil; they default to
// the phrase judge and the store-backed resolver.
func New(cfg Config, st *store.Store, spawner Spawner, judge continuation.Judge, resolver ContextResolver, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if judge == nil {
		judge = continuation.NewPhraseJudge(continuation.SignalSet{})
	}
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		store:    st,
		spawner:  spawner,
		gate:     gate.NewTable(st),
		judge:    judge,
		resolver: resolver,
		logger:   logger,
		procs:    make(map[string]*activeProcess),
		cont:     make(map[string]*continuation.State),
		contConn: make(map[string]ClientConn),
		timers:   make(map[string]*time.Timer),
		nowFunc:  time.Now,
	}
	if o.resolver == nil {
		o.resolver = &StoreResolver{Store: st}
	}
	return o
}

// Gate exposes the correlation table (for daemon-level replay of durable
// questions on restart).
func (o *Orchestrator) Gate() *gate.Table { return o.gate }

// Active returns the session IDs with a registered active process.
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.procs))
	for id := range o.procs {
		ids = append(ids, id)
	}
	return ids
}

// lookup returns the active process for a session, or nil.
func (o *Orchestrator) lookup(sessionID string) *activeProcess {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.procs[sessionID]
}

// sendToSession forwards an event to the connection currently bound to the
// session. Unbound sessions drop the event: never queued, never delivered to
// an unrelated connection.
func (o *Orchestrator) sendToSession(sessionID string, ev protocol.Event) {
	o.mu.Lock()
	ap := o.procs[sessionID]
	var conn ClientConn
	if ap != nil {
		conn = ap.conn
	}
	o.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Send(ev); err != nil {
		o.logger.Warn("event send failed", "session", sessionID, "type", ev.Type, "err", err)
	}
}

// notifyTree delivers an event to the first bound connection found walking
// from the session up through its ancestors. Child sessions usually run
// unattended, so their lifecycle events surface on the nearest watched
// ancestor (typically the root).
func (o *Orchestrator) notifyTree(ctx context.Context, sessionID string, ev protocol.Event) {
	id := sessionID
	for i := 0; id != "" && i <= protocol.MaxDepth; i++ {
		o.mu.Lock()
		ap := o.procs[id]
		var conn ClientConn
		if ap != nil {
			conn = ap.conn
		}
		o.mu.Unlock()

		if conn != nil {
			if err := conn.Send(ev); err != nil {
				o.logger.Warn("event send failed", "session", id, "type", ev.Type, "err", err)
			}
			return
		}
		sess, err := o.store.GetSession(ctx, id)
		if err != nil {
			return
		}
		id = sess.ParentID
	}
}

// logEvent appends to the durable event log, fire-and-forget.
func (o *Orchestrator) logEvent(ctx context.Context, typ, sessionID, payload string) {
	if err := o.store.LogEvent(ctx, typ, "orchestrator", sessionID, payload); err != nil {
		o.logger.Warn("event log write failed", "type", typ, "err", err)
	}
}

// setStatus persists a status transition, fire-and-forget.
func (o *Orchestrator) setStatus(ctx context.Context, sessionID string, status protocol.SessionStatus) {
	if err := o.store.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		o.logger.Warn("status update failed", "session", sessionID, "status", status, "err", err)
	}
	o.notifyTree(ctx, sessionID, protocol.Event{
		Type:      protocol.EventSessionStatusChanged,
		SessionID: sessionID,
		Status:    status,
	})
}
