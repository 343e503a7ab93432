package protocol

import "fmt"

// StartupError reports that a session's runtime subprocess could not launch.
// It is surfaced as a session-level error and never retried automatically.
type StartupError struct {
	SessionID string
	Runtime   string // runtime executable that failed to launch
	Err       error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("session %s: runtime %q failed to start: %v", e.SessionID, e.Runtime, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// HierarchyLimitError reports a spawn request that would violate the depth
// or concurrent-child limits. It is returned to the requesting worker as a
// structured refusal, never a crash.
type HierarchyLimitError struct {
	SessionID string // requesting (parent) session
	Depth     int
	Children  int
	Reason    string
}

func (e *HierarchyLimitError) Error() string {
	return fmt.Sprintf("session %s cannot spawn: %s (depth %d, active children %d)",
		e.SessionID, e.Reason, e.Depth, e.Children)
}

// SessionActiveError reports a query for a session that already has an
// active subprocess. Callers must cancel before re-querying.
type SessionActiveError struct {
	SessionID string
}

func (e *SessionActiveError) Error() string {
	return fmt.Sprintf("session %s already has an active process", e.SessionID)
}

// SessionNotFoundError reports a lookup for an unknown session.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}
