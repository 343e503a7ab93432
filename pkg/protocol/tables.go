package protocol

// EventRow represents a row in the events SQLite table.
// Tracks all orchestrator/session lifecycle events.
type EventRow struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
	Payload   string `json:"payload"`
	CreatedAt string `json:"created_at"`
}

// Decision represents a row in the decisions SQLite table. Append-only,
// queried most-recent-first by root session.
type Decision struct {
	ID        int64  `json:"id"`
	RootID    string `json:"root_id"`
	SessionID string `json:"session_id"`
	Decision  string `json:"decision"`
	Category  string `json:"category"`
	Rationale string `json:"rationale"`
	CreatedAt string `json:"created_at"`
}

// Deliverable represents a row in the deliverables SQLite table.
type Deliverable struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Summary   string `json:"summary"`
	Content   string `json:"content"`
	Artifacts string `json:"artifacts"` // JSON array of artifact paths
	CreatedAt string `json:"created_at"`
}

// QuestionRow represents a row in the questions SQLite table. Payload holds
// the encoded ask_user_question message for replay after a restart.
type QuestionRow struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	Payload   string `json:"payload"`
	CreatedAt string `json:"created_at"`
}

// MessageRow represents a row in the messages SQLite table.
type MessageRow struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}
