package protocol_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"navi/pkg/protocol"
)

func TestStartupErrorWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("exec: not found")
	err := fmt.Errorf("spawn: %w", &protocol.StartupError{
		SessionID: "sess-1",
		Runtime:   "claude",
		Err:       cause,
	})

	var se *protocol.StartupError
	if !errors.As(err, &se) {
		t.Fatal("expected errors.As to find StartupError")
	}
	if se.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", se.SessionID)
	}
	if !errors.Is(err, cause) {
		t.Error("StartupError must unwrap to its cause")
	}
}

func TestHierarchyLimitErrorMessage(t *testing.T) {
	t.Parallel()

	err := &protocol.HierarchyLimitError{
		SessionID: "sess-2",
		Depth:     2,
		Children:  0,
		Reason:    "max depth reached",
	}
	if !strings.Contains(err.Error(), "max depth reached") {
		t.Errorf("error message should carry the reason, got %q", err.Error())
	}
}

func TestSessionErrors(t *testing.T) {
	t.Parallel()

	active := &protocol.SessionActiveError{SessionID: "s1"}
	if !strings.Contains(active.Error(), "s1") {
		t.Errorf("SessionActiveError should name the session, got %q", active.Error())
	}

	missing := &protocol.SessionNotFoundError{SessionID: "s2"}
	if !strings.Contains(missing.Error(), "not found") {
		t.Errorf("SessionNotFoundError message = %q", missing.Error())
	}
}
