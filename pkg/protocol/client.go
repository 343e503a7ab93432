package protocol

import "encoding/json"

// CommandType tags a client → orchestrator command.
type CommandType string

// Client command types.
const (
	CmdQuery              CommandType = "query"
	CmdCancel             CommandType = "cancel"
	CmdAbort              CommandType = "abort"
	CmdAttach             CommandType = "attach"
	CmdPermissionResponse CommandType = "permission_response"
	CmdQuestionResponse   CommandType = "question_response"
)

// Command is one client instruction, line-delimited JSON over the client
// connection. Fields beyond Type/SessionID apply only to specific commands.
type Command struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`

	// query
	Prompt        string `json:"prompt,omitempty"`
	Workdir       string `json:"workdir,omitempty"`
	Model         string `json:"model,omitempty"`
	UntilDone     bool   `json:"until_done,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`

	// permission_response / question_response
	RequestID  string            `json:"request_id,omitempty"`
	Approved   bool              `json:"approved,omitempty"`
	ApproveAll bool              `json:"approve_all,omitempty"`
	Answers    map[string]string `json:"answers,omitempty"`
}

// EventType tags an orchestrator → client event.
type EventType string

// Client event types.
const (
	EventAssistant                 EventType = "assistant"
	EventUser                      EventType = "user"
	EventResult                    EventType = "result"
	EventPermissionRequest         EventType = "permission_request"
	EventAskUserQuestion           EventType = "ask_user_question"
	EventDone                      EventType = "done"
	EventError                     EventType = "error"
	EventSessionSpawned            EventType = "session:spawned"
	EventSessionStatusChanged      EventType = "session:status_changed"
	EventSessionEscalated          EventType = "session:escalated"
	EventSessionEscalationResolved EventType = "session:escalation_resolved"
	EventSessionDelivered          EventType = "session:delivered"
	EventUntilDoneContinue         EventType = "until_done_continue"
	EventUntilDoneComplete         EventType = "until_done_complete"
)

// Event is one orchestrator notification to a client connection.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`

	// permission_request / ask_user_question
	RequestID string          `json:"request_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Questions []Question      `json:"questions,omitempty"`

	// session:* events
	ChildSessionID string         `json:"child_session_id,omitempty"`
	Role           string         `json:"role,omitempty"`
	Status         SessionStatus  `json:"status,omitempty"`
	EscalationType EscalationType `json:"escalation_type,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Options        []string       `json:"options,omitempty"`
	Action         string         `json:"action,omitempty"`

	// until_done_* events
	Iteration     int     `json:"iteration,omitempty"`
	MaxIterations int     `json:"max_iterations,omitempty"`
	TotalCostUSD  float64 `json:"total_cost_usd,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}
