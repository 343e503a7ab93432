// Package protocol defines the wire types shared by the navi orchestrator,
// its agent runtime subprocesses, and UI clients. Subprocess traffic is
// line-delimited JSON: one Message per line on the worker's stdout (worker
// to orchestrator) and stdin (orchestrator to worker). The package also
// holds the client-facing command/event types, the SQLite schema, and the
// typed errors used for discrimination via errors.As.
package protocol

import "encoding/json"

// MessageType tags the subprocess wire union.
type MessageType string

// Worker → orchestrator message types.
const (
	MsgMessage           MessageType = "message"
	MsgPermissionRequest MessageType = "permission_request"
	MsgAskUserQuestion   MessageType = "ask_user_question"
	MsgSpawn             MessageType = "multi_session_spawn"
	MsgGetContext        MessageType = "multi_session_get_context"
	MsgEscalate          MessageType = "multi_session_escalate"
	MsgDeliver           MessageType = "multi_session_deliver"
	MsgLogDecision       MessageType = "multi_session_log_decision"
	MsgComplete          MessageType = "complete"
	MsgError             MessageType = "error"
)

// Orchestrator → worker message types.
const (
	MsgPermissionResponse MessageType = "permission_response"
	MsgQuestionResponse   MessageType = "question_response"
	MsgSpawnResponse      MessageType = "multi_session_spawn_response"
	MsgContextResponse    MessageType = "multi_session_context_response"
	MsgEscalationResponse MessageType = "multi_session_escalation_response"
	MsgDeliverResponse    MessageType = "multi_session_deliver_response"
	MsgDecisionResponse   MessageType = "multi_session_decision_response"
)

// Message is the tagged union carried on the subprocess streams. Exactly one
// payload pointer matching Type is set; the rest stay nil and are omitted
// from the encoded form.
type Message struct {
	Type MessageType `json:"type"`

	Message            *MessagePayload            `json:"message,omitempty"`
	PermissionRequest  *PermissionRequestPayload  `json:"permission_request,omitempty"`
	AskUserQuestion    *AskUserQuestionPayload    `json:"ask_user_question,omitempty"`
	Spawn              *SpawnPayload              `json:"spawn,omitempty"`
	GetContext         *GetContextPayload         `json:"get_context,omitempty"`
	Escalate           *EscalatePayload           `json:"escalate,omitempty"`
	Deliver            *DeliverPayload            `json:"deliver,omitempty"`
	LogDecision        *LogDecisionPayload        `json:"log_decision,omitempty"`
	Complete           *CompletePayload           `json:"complete,omitempty"`
	Error              *ErrorPayload              `json:"error,omitempty"`
	PermissionResponse *PermissionResponsePayload `json:"permission_response,omitempty"`
	QuestionResponse   *QuestionResponsePayload   `json:"question_response,omitempty"`
	SpawnResponse      *SpawnResponsePayload      `json:"spawn_response,omitempty"`
	ContextResponse    *ContextResponsePayload    `json:"context_response,omitempty"`
	EscalationResponse *EscalationResponsePayload `json:"escalation_response,omitempty"`
	DeliverResponse    *DeliverResponsePayload    `json:"deliver_response,omitempty"`
	DecisionResponse   *DecisionResponsePayload   `json:"decision_response,omitempty"`
}

// MessagePayload wraps a single turn of assistant/user/result/progress
// content. RuntimeSessionID is populated on the first message of a run so
// the orchestrator can record the resume token.
type MessagePayload struct {
	Role             string  `json:"role"` // assistant | user | result | progress | system
	Content          string  `json:"content"`
	RuntimeSessionID string  `json:"runtime_session_id,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
	Usage            *Usage  `json:"usage,omitempty"`
}

// Usage accumulates token counts for a turn.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// PermissionRequestPayload asks for approval of a single tool call.
type PermissionRequestPayload struct {
	RequestID string          `json:"request_id"`
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

// AskUserQuestionPayload carries one or more questions for the human user.
type AskUserQuestionPayload struct {
	RequestID string     `json:"request_id"`
	Questions []Question `json:"questions"`
}

// Question is a single question with optional multiple-choice options.
type Question struct {
	Header   string           `json:"header,omitempty"`
	Question string           `json:"question"`
	Options  []QuestionOption `json:"options,omitempty"`
}

// QuestionOption is one selectable answer.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// SpawnPayload requests creation of a child session.
type SpawnPayload struct {
	RequestID string `json:"request_id"`
	Title     string `json:"title"`
	Role      string `json:"role"`
	Task      string `json:"task"`
	Model     string `json:"model,omitempty"`
}

// GetContextPayload queries ambient context from the orchestrator.
type GetContextPayload struct {
	RequestID   string `json:"request_id"`
	Source      string `json:"source"` // project | sibling | decisions
	Query       string `json:"query,omitempty"`
	SiblingRole string `json:"sibling_role,omitempty"`
}

// EscalatePayload raises a blocking request for parent/human input.
type EscalatePayload struct {
	RequestID      string         `json:"request_id"`
	EscalationType EscalationType `json:"escalation_type"`
	Summary        string         `json:"summary"`
	Context        string         `json:"context,omitempty"`
	Options        []string       `json:"options,omitempty"`
}

// DeliverPayload records a child session's final output.
type DeliverPayload struct {
	RequestID       string   `json:"request_id"`
	DeliverableType string   `json:"deliverable_type"`
	Summary         string   `json:"summary"`
	Content         string   `json:"content"`
	Artifacts       []string `json:"artifacts,omitempty"`
}

// LogDecisionPayload appends a decision to the shared root-scoped log.
type LogDecisionPayload struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
	Category  string `json:"category,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// CompletePayload signals the end of a turn. Todos mirrors the most recent
// structured todo-list tool call, when the runtime made one.
type CompletePayload struct {
	ResultData           json.RawMessage `json:"result_data,omitempty"`
	LastAssistantContent string          `json:"last_assistant_content,omitempty"`
	LastAssistantUsage   *Usage          `json:"last_assistant_usage,omitempty"`
	CostUSD              float64         `json:"cost_usd,omitempty"`
	Todos                []TodoItem      `json:"todos,omitempty"`
}

// TodoItem is one entry of a structured todo-list tool call.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"` // pending | in_progress | completed
}

// TodoCompleted is the terminal todo status.
const TodoCompleted = "completed"

// ErrorPayload reports a worker-side failure.
type ErrorPayload struct {
	Error string `json:"error"`
}

// PermissionResponsePayload resolves a permission request.
type PermissionResponsePayload struct {
	RequestID  string `json:"request_id"`
	Approved   bool   `json:"approved"`
	ApproveAll bool   `json:"approve_all,omitempty"`
}

// QuestionResponsePayload resolves an ask_user_question request. Answers is
// keyed by question header (or the question text when no header was given).
type QuestionResponsePayload struct {
	RequestID string            `json:"request_id"`
	Answers   map[string]string `json:"answers"`
}

// SpawnResponsePayload acknowledges (or refuses) a spawn request. A refusal
// carries Success=false and a human-readable Error; it is a structured
// failure, never a dropped request.
type SpawnResponsePayload struct {
	RequestID      string `json:"request_id"`
	Success        bool   `json:"success"`
	ChildSessionID string `json:"child_session_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ContextResponsePayload returns resolved context content. On resolver
// failure Content holds an error string; the worker keeps operating with
// degraded context.
type ContextResponsePayload struct {
	RequestID string            `json:"request_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EscalationResponsePayload resolves an escalation.
type EscalationResponsePayload struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Content   string `json:"content,omitempty"`
}

// DeliverResponsePayload acknowledges a deliverable.
type DeliverResponsePayload struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
}

// DecisionResponsePayload acknowledges a logged decision.
type DecisionResponsePayload struct {
	RequestID  string `json:"request_id"`
	Success    bool   `json:"success"`
	DecisionID int64  `json:"decision_id,omitempty"`
}
