package gate //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"sync"
	"testing"

	"navi/pkg/protocol"
)

// fakeQuestionStore records durability calls.
type fakeQuestionStore struct {
	mu      sync.Mutex
	saved   map[string]string // requestID -> sessionID
	deleted []string
}

func newFakeQuestionStore() *fakeQuestionStore {
	return &fakeQuestionStore{saved: make(map[string]string)}
}

func (s *fakeQuestionStore) SaveQuestion(_ context.Context, requestID, sessionID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[requestID] = sessionID
	return nil
}

func (s *fakeQuestionStore) DeleteQuestion(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, requestID)
	return nil
}

func permReq(id, sessionID string) Request {
	return Request{
		ID:        id,
		SessionID: sessionID,
		Kind:      KindPermission,
		Payload: protocol.Message{
			Type: protocol.MsgPermissionRequest,
			PermissionRequest: &protocol.PermissionRequestPayload{
				RequestID: id,
				ToolName:  "Bash",
			},
		},
	}
}

func TestRegisterAndResolveOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tbl := NewTable(nil)

	if err := tbl.Register(ctx, permReq("r1", "s1")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tbl.Len())
	}

	req, ok := tbl.Resolve(ctx, "r1")
	if !ok {
		t.Fatal("resolve should consume the entry")
	}
	if req.SessionID != "s1" || req.Kind != KindPermission {
		t.Errorf("resolved request = %+v", req)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len after resolve = %d, want 0", tbl.Len())
	}
}

func TestDuplicateResolveIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tbl := NewTable(nil)

	if err := tbl.Register(ctx, permReq("r1", "s1")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := tbl.Resolve(ctx, "r1"); !ok {
		t.Fatal("first resolve should succeed")
	}
	if _, ok := tbl.Resolve(ctx, "r1"); ok {
		t.Error("second resolve must be a no-op, not a success")
	}
	if _, ok := tbl.Resolve(ctx, "never-registered"); ok {
		t.Error("resolving an unknown id must be a no-op")
	}
}

func TestDuplicateRegisterRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tbl := NewTable(nil)

	if err := tbl.Register(ctx, permReq("r1", "s1")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tbl.Register(ctx, permReq("r1", "s2")); err == nil {
		t.Error("registering a duplicate request id must fail")
	}
}

func TestForSessionAndClearSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tbl := NewTable(nil)

	for _, r := range []Request{permReq("a", "s1"), permReq("b", "s1"), permReq("c", "s2")} {
		if err := tbl.Register(ctx, r); err != nil {
			t.Fatalf("register %s: %v", r.ID, err)
		}
	}

	if got := len(tbl.ForSession("s1")); got != 2 {
		t.Errorf("ForSession(s1) = %d entries, want 2", got)
	}

	orphaned := tbl.ClearSession(ctx, "s1")
	if len(orphaned) != 2 {
		t.Errorf("ClearSession(s1) orphaned %d, want 2", len(orphaned))
	}
	if tbl.Len() != 1 {
		t.Errorf("Len after clear = %d, want 1 (s2 entry remains)", tbl.Len())
	}
}

func TestQuestionDurability(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	qs := newFakeQuestionStore()
	tbl := NewTable(qs)

	q := Request{
		ID:        "q1",
		SessionID: "s1",
		Kind:      KindQuestion,
		Payload: protocol.Message{
			Type: protocol.MsgAskUserQuestion,
			AskUserQuestion: &protocol.AskUserQuestionPayload{
				RequestID: "q1",
				Questions: []protocol.Question{{Question: "deploy now?"}},
			},
		},
	}
	if err := tbl.Register(ctx, q); err != nil {
		t.Fatalf("register: %v", err)
	}
	if qs.saved["q1"] != "s1" {
		t.Error("question must be persisted on register")
	}

	// Permission requests must not touch the store.
	if err := tbl.Register(ctx, permReq("p1", "s1")); err != nil {
		t.Fatalf("register perm: %v", err)
	}
	if _, ok := qs.saved["p1"]; ok {
		t.Error("permission requests must not be persisted")
	}

	if _, ok := tbl.Resolve(ctx, "q1"); !ok {
		t.Fatal("resolve q1")
	}
	if len(qs.deleted) != 1 || qs.deleted[0] != "q1" {
		t.Errorf("question row must be deleted on resolve, got %v", qs.deleted)
	}
}
