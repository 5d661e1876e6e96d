package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/audit"
	"github.com/insurelens/insurelens-ai/internal/llm/adapter"
	"github.com/insurelens/insurelens-ai/internal/llm/budget"
	"github.com/insurelens/insurelens-ai/internal/llm/types"
	"github.com/insurelens/insurelens-ai/internal/metrics"
	"github.com/insurelens/insurelens-ai/internal/models"
	reasoningContext "github.com/insurelens/insurelens-ai/internal/reasoning/context"
	"github.com/insurelens/insurelens-ai/internal/tools"
)

type engineImpl struct {
	llm          adapter.Adapter
	registry     *tools.Registry
	classifier   *Classifier
	contexts     reasoningContext.Builder
	auditLog     audit.Logger
	tracker      budget.Tracker
	log          *zap.Logger
	systemPrompt string

	maxIterations int
	maxExecutions int
	obsMaxChars   int
	thinkTimeout  time.Duration

	mu         sync.Mutex
	order      []string // execution ids, oldest first
	executions map[string]*Execution

	subsMu      sync.Mutex
	subscribers map[string][]*Subscriber
	finished    map[string]struct{}
}

// New creates a fully wired Engine. contexts, auditLog and tracker may be
// nil; with a tracker, model calls run under the conversation's token
// budget. The iteration cap can be configured below DefaultMaxIterations but
// never above it.
func New(llm adapter.Adapter, registry *tools.Registry, classifier *Classifier, contexts reasoningContext.Builder, auditLog audit.Logger, tracker budget.Tracker, cfg Config, log *zap.Logger) Engine {
	if cfg.MaxIterations <= 0 || cfg.MaxIterations > DefaultMaxIterations {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxExecutions <= 0 {
		cfg.MaxExecutions = DefaultMaxExecutions
	}
	if cfg.ObservationMaxChars <= 0 {
		cfg.ObservationMaxChars = DefaultObservationMaxChars
	}
	if cfg.ThinkTimeout <= 0 {
		cfg.ThinkTimeout = DefaultThinkTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	if classifier == nil {
		classifier = NewClassifier(nil, log)
	}

	var defs []tools.Definition
	if registry != nil {
		defs = registry.Definitions()
	}

	return &engineImpl{
		llm:           llm,
		registry:      registry,
		classifier:    classifier,
		contexts:      contexts,
		auditLog:      auditLog,
		tracker:       tracker,
		log:           log,
		systemPrompt:  renderSystemPrompt(defs),
		maxIterations: cfg.MaxIterations,
		maxExecutions: cfg.MaxExecutions,
		obsMaxChars:   cfg.ObservationMaxChars,
		thinkTimeout:  cfg.ThinkTimeout,
		executions:    make(map[string]*Execution),
		subscribers:   make(map[string][]*Subscriber),
		finished:      make(map[string]struct{}),
	}
}

// ─── Public surface ─────────────────────────────────────────────────────────

func (e *engineImpl) Ask(ctx context.Context, req Request) (*Execution, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("query is required")
	}

	id := strings.TrimSpace(req.ExecutionID)
	if id == "" {
		id = uuid.NewString()
	}

	prediction := e.classifier.Decide(query)
	exec := &Execution{
		ID:              id,
		ConversationID:  req.ConversationID,
		Query:           query,
		State:           StateRunning,
		PredictedIntent: prediction.Intent,
		Confidence:      prediction.Confidence,
		StartedAt:       time.Now().UTC(),
	}
	e.remember(exec)

	metrics.QueriesTotal.WithLabelValues("react", string(prediction.Intent)).Inc()
	if e.auditLog != nil {
		e.auditLog.Log(ctx, audit.NewEvent(audit.EventReasoningStarted).
			WithCorrelationID(exec.ID).
			WithConversationID(req.ConversationID).
			WithDescription(fmt.Sprintf("Reasoning started (predicted %s): %s",
				prediction.Intent, truncateText(query, 120))).
			WithResult(audit.ResultPending))
	}
	e.log.Info("reasoning started",
		zap.String("execution_id", exec.ID),
		zap.String("conversation_id", req.ConversationID),
		zap.String("predicted_intent", string(prediction.Intent)),
		zap.Float64("confidence", prediction.Confidence))

	e.run(ctx, exec, e.buildPreamble(ctx, req.ConversationID, query, prediction))

	snap, _ := e.Get(exec.ID)
	return snap, nil
}

func (e *engineImpl) Get(id string) (*Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[id]
	if !ok {
		return nil, false
	}
	return copyExecution(exec), true
}

func (e *engineImpl) List(limit int) []*Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.order)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Execution, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyExecution(e.executions[e.order[i]]))
	}
	return out
}

func (e *engineImpl) Subscribe(executionID string) *Subscriber {
	sub := &Subscriber{ExecutionID: executionID, Ch: make(chan Event, 64)}
	e.subsMu.Lock()
	if _, done := e.finished[executionID]; done {
		e.subsMu.Unlock()
		close(sub.Ch)
		return sub
	}
	e.subscribers[executionID] = append(e.subscribers[executionID], sub)
	e.subsMu.Unlock()
	return sub
}

func (e *engineImpl) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	e.subsMu.Lock()
	subs := e.subscribers[sub.ExecutionID]
	for i, s := range subs {
		if s == sub {
			e.subscribers[sub.ExecutionID] = append(subs[:i], subs[i+1:]...)
			e.subsMu.Unlock()
			close(sub.Ch)
			return
		}
	}
	e.subsMu.Unlock()
}

// ─── Loop ───────────────────────────────────────────────────────────────────

func (e *engineImpl) run(ctx context.Context, exec *Execution, preamble string) {
	if e.llm == nil || !e.llm.Configured() {
		e.fail(ctx, exec, "reasoning model not configured")
		return
	}

	llm := e.llm
	if e.tracker != nil && exec.ConversationID != "" {
		llm = adapter.NewBudgetedAdapter(e.llm, e.tracker, exec.ConversationID)
	}

	for i := 1; i <= e.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			e.fail(ctx, exec, fmt.Sprintf("cancelled before iteration %d: %v", i, err))
			return
		}

		stepStart := time.Now().UTC()
		parsed, thinkErr := e.think(ctx, llm, exec.Query, preamble, e.steps(exec))
		if thinkErr != nil {
			// A breached budget will not heal within this run.
			if errors.Is(thinkErr, budget.ErrBudgetExceeded) {
				e.fail(ctx, exec, "token budget exceeded")
				return
			}
			e.observeError(exec, i, stepStart, thinkErr)
			continue
		}

		if parsed.Action == actionFinish {
			answer := finishAnswer(parsed)
			e.appendStep(exec, models.ReasoningStep{
				Index:       i,
				Thought:     parsed.Thought,
				Action:      actionFinish,
				ActionInput: compactInput(parsed.Input),
				Observation: e.clip("FINAL_ANSWER: " + answer),
				StartedAt:   stepStart,
				CompletedAt: time.Now().UTC(),
			})
			e.conclude(ctx, exec, answer)
			return
		}

		result := e.registry.Invoke(tools.WithConversationID(ctx, exec.ConversationID), models.ToolCall{
			ID:        uuid.NewString(),
			ToolName:  parsed.Action,
			Arguments: parsed.Input,
			Timestamp: time.Now().UTC(),
		})
		e.publish(exec.ID, Event{
			ExecutionID: exec.ID,
			Type:        EventTool,
			Tool:        parsed.Action,
			ToolResult:  &result,
			State:       StateRunning,
			Timestamp:   time.Now().UTC(),
		})

		e.appendStep(exec, models.ReasoningStep{
			Index:       i,
			Thought:     parsed.Thought,
			Action:      parsed.Action,
			ActionInput: compactInput(parsed.Input),
			Observation: e.observation(result),
			StartedAt:   stepStart,
			CompletedAt: time.Now().UTC(),
		})
		if result.Success {
			e.noteTool(exec, parsed.Action)
		}
	}

	e.exhaust(ctx, exec)
}

// think renders the prompt, calls the model under its timeout and parses
// the step out of the completion.
func (e *engineImpl) think(ctx context.Context, llm adapter.Adapter, query, preamble string, steps []models.ReasoningStep) (parsedStep, error) {
	messages := []types.Message{
		{Role: "system", Content: e.systemPrompt},
		{Role: "user", Content: renderUserPrompt(query, preamble, steps)},
	}

	thinkCtx, cancel := context.WithTimeout(ctx, e.thinkTimeout)
	defer cancel()

	resp, err := llm.Complete(thinkCtx, messages)
	if err != nil {
		return parsedStep{}, fmt.Errorf("model call failed: %w", err)
	}
	parsed, err := parseStep(resp.Content)
	if err != nil {
		return parsedStep{}, fmt.Errorf("malformed model output: %w", err)
	}
	return parsed, nil
}

// buildPreamble combines the classifier hint with conversation context for
// follow-ups. A context read failure degrades to the hint alone.
func (e *engineImpl) buildPreamble(ctx context.Context, conversationID, query string, prediction Prediction) string {
	hint := renderHint(prediction)
	if e.contexts == nil {
		return hint
	}
	block, err := e.contexts.Build(ctx, conversationID, query)
	if err != nil {
		e.log.Warn("conversation context unavailable",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return hint
	}
	if block == "" {
		return hint
	}
	e.log.Debug("conversation context attached",
		zap.String("conversation_id", conversationID),
		zap.Int("approx_tokens", e.contexts.EstimateTokens(block)))
	if hint == "" {
		return block
	}
	return block + "\n" + hint
}

// ─── Terminal states ────────────────────────────────────────────────────────

func (e *engineImpl) conclude(ctx context.Context, exec *Execution, answer string) {
	e.mu.Lock()
	exec.State = StateConcluded
	exec.FinalAnswer = answer
	e.mu.Unlock()
	e.finalize(ctx, exec)
}

func (e *engineImpl) exhaust(ctx context.Context, exec *Execution) {
	answer := exhaustedAnswer(e.steps(exec))
	e.mu.Lock()
	exec.State = StateExhausted
	exec.FinalAnswer = answer
	exec.Incomplete = true
	e.mu.Unlock()
	metrics.ReasoningExhausted.Inc()
	e.finalize(ctx, exec)
}

func (e *engineImpl) fail(ctx context.Context, exec *Execution, reason string) {
	e.mu.Lock()
	exec.State = StateFailed
	exec.Error = reason
	e.mu.Unlock()
	e.finalize(ctx, exec)
}

// finalize stamps timing, runs the learning step, emits the terminal event
// and closes subscribers. Runs exactly once per execution.
func (e *engineImpl) finalize(ctx context.Context, exec *Execution) {
	e.mu.Lock()
	exec.FinishedAt = time.Now().UTC()
	elapsed := exec.FinishedAt.Sub(exec.StartedAt)
	exec.ElapsedMs = elapsed.Milliseconds()
	state := exec.State
	iterations := len(exec.Steps)
	toolsUsed := append([]string(nil), exec.ToolsUsed...)
	predicted := exec.PredictedIntent
	query := exec.Query
	answer := exec.FinalAnswer
	incomplete := exec.Incomplete
	failure := exec.Error
	e.mu.Unlock()

	metrics.ReasoningIterations.Observe(float64(iterations))
	metrics.ReasoningDuration.Observe(elapsed.Seconds())
	metrics.QueryDuration.WithLabelValues("react").Observe(elapsed.Seconds())

	if realized, ok := realizeIntent(toolsUsed); ok {
		e.mu.Lock()
		exec.RealizedIntent = realized
		e.mu.Unlock()

		e.classifier.Record(predicted, realized)
		if realized != predicted && realized.Valid() {
			if err := e.classifier.Learn(ctx, query, predicted, realized); err != nil {
				e.log.Warn("classifier learning failed", zap.Error(err))
			} else if e.auditLog != nil {
				e.auditLog.Log(ctx, audit.NewEvent(audit.EventPatternLearned).
					WithCorrelationID(exec.ID).
					WithDescription(fmt.Sprintf("Classifier corrected %s to %s", predicted, realized)).
					WithResult(audit.ResultSuccess))
			}
		}
	}

	now := time.Now().UTC()
	if state == StateFailed {
		e.publish(exec.ID, Event{
			ExecutionID: exec.ID,
			Type:        EventError,
			Error:       failure,
			State:       state,
			Timestamp:   now,
		})
	} else {
		e.publish(exec.ID, Event{
			ExecutionID: exec.ID,
			Type:        EventFinal,
			Answer:      answer,
			Incomplete:  incomplete,
			State:       state,
			Timestamp:   now,
		})
	}
	e.closeSubs(exec.ID)

	if e.auditLog != nil {
		switch state {
		case StateConcluded:
			e.auditLog.Log(ctx, audit.NewEvent(audit.EventReasoningConcluded).
				WithCorrelationID(exec.ID).
				WithDuration(elapsed).
				WithDescription(fmt.Sprintf("Concluded after %d iterations", iterations)).
				WithResult(audit.ResultSuccess))
		case StateExhausted:
			e.auditLog.Log(ctx, audit.NewEvent(audit.EventReasoningExhausted).
				WithCorrelationID(exec.ID).
				WithDuration(elapsed).
				WithDescription(fmt.Sprintf("Iteration cap hit after %d steps; partial answer returned", iterations)).
				WithResult(audit.ResultSuccess))
		case StateFailed:
			e.auditLog.Log(ctx, audit.NewEvent(audit.EventReasoningFailed).
				WithCorrelationID(exec.ID).
				WithDuration(elapsed).
				WithDescription(failure).
				WithResult(audit.ResultFailure))
		}
	}
	e.log.Info("reasoning finished",
		zap.String("execution_id", exec.ID),
		zap.String("state", string(state)),
		zap.Int("iterations", iterations),
		zap.Strings("tools_used", toolsUsed),
		zap.Duration("elapsed", elapsed))
}

// ─── Trace bookkeeping ──────────────────────────────────────────────────────

func (e *engineImpl) remember(exec *Execution) {
	var evicted []string
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.order = append(e.order, exec.ID)
	for len(e.order) > e.maxExecutions {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.executions, oldest)
		evicted = append(evicted, oldest)
	}
	e.mu.Unlock()

	if len(evicted) > 0 {
		e.subsMu.Lock()
		for _, id := range evicted {
			delete(e.finished, id)
		}
		e.subsMu.Unlock()
	}
}

func (e *engineImpl) appendStep(exec *Execution, step models.ReasoningStep) {
	e.mu.Lock()
	exec.Steps = append(exec.Steps, step)
	e.mu.Unlock()
	e.publish(exec.ID, Event{
		ExecutionID: exec.ID,
		Type:        EventStep,
		Step:        &step,
		State:       StateRunning,
		Timestamp:   time.Now().UTC(),
	})
}

func (e *engineImpl) observeError(exec *Execution, index int, startedAt time.Time, err error) {
	e.appendStep(exec, models.ReasoningStep{
		Index:       index,
		Observation: e.clip("ExecutionError: " + err.Error()),
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	})
	e.log.Warn("reasoning step degraded",
		zap.String("execution_id", exec.ID),
		zap.Int("iteration", index),
		zap.Error(err))
}

func (e *engineImpl) noteTool(exec *Execution, tool string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range exec.ToolsUsed {
		if t == tool {
			return
		}
	}
	exec.ToolsUsed = append(exec.ToolsUsed, tool)
}

func (e *engineImpl) steps(exec *Execution) []models.ReasoningStep {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.ReasoningStep(nil), exec.Steps...)
}

func copyExecution(exec *Execution) *Execution {
	cp := *exec
	cp.Steps = append([]models.ReasoningStep(nil), exec.Steps...)
	cp.ToolsUsed = append([]string(nil), exec.ToolsUsed...)
	return &cp
}

// ─── Events ─────────────────────────────────────────────────────────────────

// publish delivers to every subscriber of the execution. Slow subscribers
// lose events rather than ever blocking the loop.
func (e *engineImpl) publish(id string, ev Event) {
	e.subsMu.Lock()
	subs := e.subscribers[id]
	e.subsMu.Unlock()
	for _, s := range subs {
		select {
		case s.Ch <- ev:
		default:
		}
	}
}

func (e *engineImpl) closeSubs(id string) {
	e.subsMu.Lock()
	subs := e.subscribers[id]
	delete(e.subscribers, id)
	e.finished[id] = struct{}{}
	e.subsMu.Unlock()
	for _, s := range subs {
		close(s.Ch)
	}
}

// ─── Observations and answers ───────────────────────────────────────────────

// observation summarises a tool result into a bounded trace entry.
func (e *engineImpl) observation(result models.ToolResult) string {
	if !result.Success {
		return e.clip(fmt.Sprintf("%s: %s", result.ErrorKind, result.Error))
	}
	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return e.clip(fmt.Sprintf("%v", result.Payload))
	}
	return e.clip(string(payload))
}

func (e *engineImpl) clip(s string) string {
	return truncateText(s, e.obsMaxChars)
}

func finishAnswer(p parsedStep) string {
	if answer, ok := p.Input["answer"].(string); ok && strings.TrimSpace(answer) != "" {
		return strings.TrimSpace(answer)
	}
	if p.Thought != "" {
		return p.Thought
	}
	return "I could not produce an answer."
}

// exhaustedAnswer assembles the partial answer from whatever useful
// observations the trace collected before the cap.
func exhaustedAnswer(steps []models.ReasoningStep) string {
	var findings []string
	for _, s := range steps {
		if s.Observation == "" || isErrorObservation(s.Observation) {
			continue
		}
		findings = append(findings, s.Observation)
	}
	if len(findings) == 0 {
		return ExhaustedMessage
	}
	if len(findings) > 3 {
		findings = findings[len(findings)-3:]
	}
	return ExhaustedMessage + " Partial findings: " + strings.Join(findings, " | ")
}

func isErrorObservation(obs string) bool {
	for _, prefix := range []string{
		string(models.ErrorKindValidation),
		string(models.ErrorKindExecution),
		string(models.ErrorKindNotFound),
	} {
		if strings.HasPrefix(obs, prefix) {
			return true
		}
	}
	return false
}

// realizeIntent maps the tools that successfully served a query back to the
// intent that was realised. Composite intents only ever arise here.
func realizeIntent(toolsUsed []string) (models.Intent, bool) {
	switch len(toolsUsed) {
	case 0:
		return "", false
	case 1:
		switch toolsUsed[0] {
		case tools.NamePremiumCalculator:
			return models.IntentPremiumCalculation, true
		case tools.NamePolicyComparator:
			return models.IntentPolicyComparison, true
		case tools.NameDocumentRetriever:
			return models.IntentDocumentRetrieval, true
		case tools.NameListProducts:
			return models.IntentGeneralInquiry, true
		}
		return "", false
	default:
		set := map[string]bool{}
		for _, t := range toolsUsed {
			set[t] = true
		}
		if len(set) == 2 && set[tools.NamePremiumCalculator] && set[tools.NamePolicyComparator] {
			return models.IntentPremiumAndComparison, true
		}
		return models.IntentComplexQuery, true
	}
}
