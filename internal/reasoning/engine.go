package reasoning

import (
	"context"
	"time"

	"github.com/insurelens/insurelens-ai/internal/models"
)

// Package reasoning is the iterative query path: a bounded
// Thought/Action/Observation loop over the tool registry.
//
// Responsibilities:
//   - Run the loop: THINK renders the ReAct prompt and calls the model,
//     ACT invokes exactly one registry tool, OBSERVE appends a bounded
//     summary to the trace; strictly sequential, step N's observation is
//     input to step N+1
//   - Enforce the iteration cap identically on every execution; cap hit
//     ends in exhausted with a partial answer, never an error
//   - Treat model timeouts and malformed output as ExecutionError
//     observations the loop can continue past
//   - Run the learning step after the terminal state: infer the realised
//     intent from the tools that served the query and feed it back to the
//     classifier
//   - Keep a bounded in-memory list of recent executions for the trace
//     surface, and stream events to per-execution subscribers
//
// There is no mid-loop cancellation surface. Context cancellation is
// checked between steps and ends the execution as failed.

// State is the lifecycle state of one execution.
type State string

const (
	StateRunning   State = "running"
	StateConcluded State = "concluded"
	StateExhausted State = "exhausted"
	StateFailed    State = "failed"
)

const (
	// DefaultMaxIterations is the hard cap on Thought/Action/Observation
	// cycles.
	DefaultMaxIterations = 10
	// DefaultMaxExecutions bounds the in-memory trace list.
	DefaultMaxExecutions = 100
	// DefaultObservationMaxChars bounds each observation in the trace.
	DefaultObservationMaxChars = 500
	// DefaultThinkTimeout bounds one model call.
	DefaultThinkTimeout = 45 * time.Second

	// ExhaustedMessage opens the partial answer when the cap is hit.
	ExhaustedMessage = "Maximum reasoning iterations reached."
)

// Request is one query for the reasoning path.
type Request struct {
	ConversationID string
	Query          string
	// ExecutionID pre-assigns the run's id so callers can subscribe to its
	// events before it starts. Minted when blank.
	ExecutionID string
}

// Execution is one reasoning run: the trace, the outcome and the classifier
// signals around it.
type Execution struct {
	ID              string                 `json:"id"`
	ConversationID  string                 `json:"conversation_id,omitempty"`
	Query           string                 `json:"query"`
	State           State                  `json:"state"`
	PredictedIntent models.Intent          `json:"predicted_intent"`
	RealizedIntent  models.Intent          `json:"realized_intent,omitempty"`
	Confidence      float64                `json:"confidence"`
	Steps           []models.ReasoningStep `json:"steps"`
	ToolsUsed       []string               `json:"tools_used"`
	FinalAnswer     string                 `json:"final_answer"`
	Incomplete      bool                   `json:"incomplete"`
	Error           string                 `json:"error,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at,omitempty"`
	ElapsedMs       int64                  `json:"elapsed_ms"`
}

// Trace renders the execution's steps as the transparency record returned
// with responses.
func (e *Execution) Trace() models.Trace {
	return models.Trace{
		Steps:      e.Steps,
		Iterations: len(e.Steps),
		ToolsUsed:  e.ToolsUsed,
		StartedAt:  e.StartedAt,
		ElapsedMs:  e.ElapsedMs,
	}
}

// EventType tags a streamed engine event.
type EventType string

const (
	EventStep  EventType = "step"
	EventTool  EventType = "tool"
	EventFinal EventType = "final"
	EventError EventType = "error"
)

// Event is streamed to subscribers while an execution runs.
type Event struct {
	ExecutionID string                 `json:"execution_id"`
	Type        EventType              `json:"type"`
	Step        *models.ReasoningStep  `json:"step,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	ToolResult  *models.ToolResult     `json:"tool_result,omitempty"`
	Answer      string                 `json:"answer,omitempty"`
	Incomplete  bool                   `json:"incomplete,omitempty"`
	Error       string                 `json:"error,omitempty"`
	State       State                  `json:"state"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Subscriber receives one execution's events. Ch closes when the execution
// reaches a terminal state.
type Subscriber struct {
	ExecutionID string
	Ch          chan Event
}

// Engine runs reasoning executions and exposes the trace surface.
type Engine interface {
	// Ask runs the loop synchronously. The returned execution is terminal:
	// concluded, exhausted or failed. The error return covers only rejected
	// requests (empty query); loop failures come back as State == failed.
	Ask(ctx context.Context, req Request) (*Execution, error)

	// Get returns a snapshot of one execution.
	Get(id string) (*Execution, bool)

	// List returns snapshots of recent executions, newest first. limit <= 0
	// returns all retained executions.
	List(limit int) []*Execution

	// Subscribe registers for an execution's events. Subscribing to an
	// already-terminal execution returns a closed channel.
	Subscribe(executionID string) *Subscriber

	// Unsubscribe removes the subscriber and closes its channel.
	Unsubscribe(sub *Subscriber)
}

// Config carries the engine's tunables.
type Config struct {
	MaxIterations       int
	MaxExecutions       int
	ObservationMaxChars int
	ThinkTimeout        time.Duration
}

// New (engine_impl.go) creates a fully wired Engine.
