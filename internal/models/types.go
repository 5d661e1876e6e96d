// Package models holds the shared domain types passed between the router,
// the reasoning engine, the tool layer and the HTTP surface.
package models

import "time"

// Intent is the classified purpose of a user query.
type Intent string

const (
	IntentPremiumCalculation Intent = "premium_calculation"
	IntentPolicyComparison   Intent = "policy_comparison"
	IntentDocumentRetrieval  Intent = "document_retrieval"
	IntentGeneralInquiry     Intent = "general_inquiry"

	// Composite intents inferred after a reasoning run that used more than
	// one tool. Never predicted up front.
	IntentPremiumAndComparison Intent = "premium_and_comparison"
	IntentComplexQuery         Intent = "complex_query"
)

// Valid reports whether the intent is one a classifier may predict.
func (i Intent) Valid() bool {
	switch i {
	case IntentPremiumCalculation, IntentPolicyComparison, IntentDocumentRetrieval, IntentGeneralInquiry:
		return true
	}
	return false
}

// ErrorKind classifies a failed tool invocation. Exactly one kind is set on
// any unsuccessful ToolResult.
type ErrorKind string

const (
	// ErrorKindValidation marks arguments that failed schema or domain
	// validation before the tool ran.
	ErrorKindValidation ErrorKind = "ValidationError"
	// ErrorKindExecution marks failures while the tool was running,
	// including collaborator timeouts and recovered panics.
	ErrorKindExecution ErrorKind = "ExecutionError"
	// ErrorKindNotFound marks references to entities that do not exist:
	// unknown tools, unknown products.
	ErrorKindNotFound ErrorKind = "NotFoundError"
)

// ToolCall is a single request for tool execution.
type ToolCall struct {
	ID        string                 `json:"id"`
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToolResult is the uniform outcome envelope every tool invocation returns.
// Tools never leak raw errors or panics past this boundary.
type ToolResult struct {
	Success   bool        `json:"success"`
	Payload   interface{} `json:"payload,omitempty"`
	ErrorKind ErrorKind   `json:"error_kind,omitempty"`
	Error     string      `json:"error,omitempty"`
	Duration  int64       `json:"duration_ms"`
}

// ReasoningStep is one Thought/Action/Observation cycle in a trace.
type ReasoningStep struct {
	Index       int       `json:"index"`
	Thought     string    `json:"thought"`
	Action      string    `json:"action"`
	ActionInput string    `json:"action_input,omitempty"`
	Observation string    `json:"observation"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Trace is the ordered record of one reasoning execution. A trace belongs to
// exactly one execution and is returned with the response; it is never
// shared between queries.
type Trace struct {
	Steps      []ReasoningStep `json:"steps"`
	Iterations int             `json:"iterations"`
	ToolsUsed  []string        `json:"tools_used"`
	StartedAt  time.Time       `json:"started_at"`
	ElapsedMs  int64           `json:"elapsed_ms"`
}

// Turn roles for conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one message in a conversation's history.
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
