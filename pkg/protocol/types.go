package protocol

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

// Session status constants.
const (
	StatusWorking   SessionStatus = "working"
	StatusWaiting   SessionStatus = "waiting"
	StatusDelivered SessionStatus = "delivered"
	StatusBlocked   SessionStatus = "blocked"
)

// MaxDepth is the deepest allowed session depth. Depth 0 is the root, so the
// hierarchy holds at most three levels (0, 1, 2); spawning from a session at
// MaxDepth is refused.
const MaxDepth = 2

// Session is one node in the agent hierarchy.
type Session struct {
	ID               string        `json:"id"`
	ParentID         string        `json:"parent_id,omitempty"` // empty at root
	RootID           string        `json:"root_id"`             // self if top-level
	Depth            int           `json:"depth"`               // parent.Depth + 1
	Role             string        `json:"role,omitempty"`
	Task             string        `json:"task,omitempty"`
	Status           SessionStatus `json:"status"`
	RuntimeSessionID string        `json:"runtime_session_id,omitempty"` // resume token
	CostUSD          float64       `json:"cost_usd"`
	InputTokens      int64         `json:"input_tokens"`
	OutputTokens     int64         `json:"output_tokens"`
	CreatedAt        string        `json:"created_at,omitempty"`
	UpdatedAt        string        `json:"updated_at,omitempty"`
}

// IsRoot reports whether the session has no parent.
func (s Session) IsRoot() bool {
	return s.ParentID == ""
}

// EscalationType classifies an escalation request.
type EscalationType string

// Escalation type constants.
const (
	EscDecision      EscalationType = "decision"      // child needs a call it cannot make
	EscBlocker       EscalationType = "blocker"       // child cannot proceed
	EscApproval      EscalationType = "approval"      // child wants sign-off before acting
	EscClarification EscalationType = "clarification" // task statement is ambiguous
)

// EscalationTimeoutAction is the action recorded when an unresolved
// escalation hits the configured timeout.
const EscalationTimeoutAction = "timeout"
