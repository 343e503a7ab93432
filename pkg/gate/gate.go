// Package gate implements request/response correlation for the orchestrator.
// Every "needs a decision" event a worker emits — a permission request, a
// user question, an escalation — is registered here under its request ID and
// consumed by exactly one later resolution. Resolving an unknown or
// already-resolved ID is a safe no-op.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"navi/pkg/protocol"
)

// Kind classifies a pending request.
type Kind string

// Request kinds.
const (
	KindPermission Kind = "permission"
	KindQuestion   Kind = "question"
	KindEscalation Kind = "escalation"
)

// Sender is the resolver target: the input stream of the subprocess that
// emitted the request.
type Sender interface {
	Send(msg protocol.Message) error
}

// Request is one pending decision.
type Request struct {
	ID        string
	SessionID string
	Kind      Kind
	Payload   protocol.Message // the original emitting message, for replay
	Target    Sender
	CreatedAt time.Time
}

// QuestionStore persists question requests so they survive a full client
// restart. Permission requests are deliberately not durable: they are tied
// to a live subprocess that would need re-spawning anyway.
type QuestionStore interface {
	SaveQuestion(ctx context.Context, requestID, sessionID, payload string) error
	DeleteQuestion(ctx context.Context, requestID string) error
}

// Table maps request IDs to pending requests. All mutation happens under a
// single mutex; the orchestrator is the only writer.
type Table struct {
	mu        sync.Mutex
	pending   map[string]*Request
	questions QuestionStore // may be nil
	nowFunc   func() time.Time
}

// NewTable creates a Table. questions may be nil when durability is not
// wanted (tests).
func NewTable(questions QuestionStore) *Table {
	return &Table{
		pending:   make(map[string]*Request),
		questions: questions,
		nowFunc:   time.Now,
	}
}

// Register adds a pending request. A request ID is created by exactly one
// emitting event; registering a duplicate ID is an error.
func (t *Table) Register(ctx context.Context, req Request) error {
	t.mu.Lock()
	if _, exists := t.pending[req.ID]; exists {
		t.mu.Unlock()
		return fmt.Errorf("gate: duplicate request id %q", req.ID)
	}
	req.CreatedAt = t.nowFunc()
	t.pending[req.ID] = &req
	t.mu.Unlock()

	// Questions persist to durable storage, fire-and-forget per the
	// shared-resource policy: routing never waits on persistence.
	if req.Kind == KindQuestion && t.questions != nil {
		payload, err := json.Marshal(req.Payload)
		if err == nil {
			_ = t.questions.SaveQuestion(ctx, req.ID, req.SessionID, string(payload))
		}
	}
	return nil
}

// Resolve consumes a pending request. The second return is false when the
// ID is unknown or already resolved; callers treat that as a no-op.
func (t *Table) Resolve(ctx context.Context, id string) (Request, bool) {
	t.mu.Lock()
	req, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !ok {
		return Request{}, false
	}
	if req.Kind == KindQuestion && t.questions != nil {
		_ = t.questions.DeleteQuestion(ctx, id)
	}
	return *req, true
}

// ForSession returns the still-pending requests owned by a session, for
// attach-time replay. Order is unspecified.
func (t *Table) ForSession(sessionID string) []Request {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Request
	for _, req := range t.pending {
		if req.SessionID == sessionID {
			out = append(out, *req)
		}
	}
	return out
}

// ClearSession drops every pending request owned by a session and returns
// the orphans. Used by cancel so decisions never leak past their process.
func (t *Table) ClearSession(ctx context.Context, sessionID string) []Request {
	t.mu.Lock()
	var orphaned []Request
	for id, req := range t.pending {
		if req.SessionID == sessionID {
			orphaned = append(orphaned, *req)
			delete(t.pending, id)
		}
	}
	t.mu.Unlock()

	for _, req := range orphaned {
		if req.Kind == KindQuestion && t.questions != nil {
			_ = t.questions.DeleteQuestion(ctx, req.ID)
		}
	}
	return orphaned
}

// Len returns the number of pending requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
