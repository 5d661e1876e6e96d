package reasoning_test

// Tests for the reasoning loop. Strategy: inject a scripted fake adapter and
// stub tool handlers so the loop runs without a model or real rate tables.

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/insurelens/insurelens-ai/internal/llm/adapter"
	"github.com/insurelens/insurelens-ai/internal/llm/budget"
	"github.com/insurelens/insurelens-ai/internal/llm/types"
	"github.com/insurelens/insurelens-ai/internal/models"
	"github.com/insurelens/insurelens-ai/internal/reasoning"
	"github.com/insurelens/insurelens-ai/internal/tools"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type scripted struct {
	content string
	err     error
}

// fakeAdapter replays a script of completions. Once the script runs out the
// last entry repeats, so a looping test never blocks on an empty script.
type fakeAdapter struct {
	mu          sync.Mutex
	script      []scripted
	calls       int
	lastUserMsg string
	offline     bool
}

func (f *fakeAdapter) Complete(_ context.Context, messages []types.Message) (types.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range messages {
		if m.Role == "user" {
			f.lastUserMsg = m.Content
		}
	}
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	s := f.script[i]
	if s.err != nil {
		return types.CompletionResponse{}, s.err
	}
	return types.CompletionResponse{Content: s.content}, nil
}

func (f *fakeAdapter) CompleteStream(_ context.Context, _ []types.Message) (<-chan types.StreamChunk, error) {
	return nil, adapter.ErrProviderNotConfigured
}

func (f *fakeAdapter) CountTokens(_ context.Context, _ []types.Message) (int, error) {
	return 100, nil
}

func (f *fakeAdapter) Capabilities() types.Capabilities {
	return types.Capabilities{Provider: "fake", Model: "scripted"}
}

func (f *fakeAdapter) Provider() adapter.ProviderType { return "fake" }

func (f *fakeAdapter) Configured() bool { return !f.offline }

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUserMsg
}

// ─────────────────────────────────────────────────────────────────────────────
// Harness
// ─────────────────────────────────────────────────────────────────────────────

// newTestRegistry registers the full taxonomy with stub handlers. Overrides
// replace the stub for the named tools.
func newTestRegistry(t *testing.T, overrides map[string]tools.Handler) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(nil, nil)
	for _, def := range tools.Taxonomy {
		handler, ok := overrides[def.Name]
		if !ok {
			name := def.Name
			handler = func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"tool": name, "ok": true}, nil
			}
		}
		if err := reg.Register(def, handler); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}
	return reg
}

func newTestEngine(t *testing.T, llm adapter.Adapter, cfg reasoning.Config, overrides map[string]tools.Handler) (reasoning.Engine, *reasoning.Classifier) {
	t.Helper()
	classifier := reasoning.NewClassifier(nil, nil)
	eng := reasoning.New(llm, newTestRegistry(t, overrides), classifier, nil, nil, nil, cfg, nil)
	return eng, classifier
}

func collectEvents(sub *reasoning.Subscriber, timeout time.Duration) []reasoning.Event {
	var events []reasoning.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sub.Ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
}

const (
	searchStep = "Thought: I should check the policy documents first.\n" +
		"Action: document_retriever\n" +
		"Action Input: {\"query\": \"waiting period\"}"
	finishStep = "Thought: I have everything I need.\n" +
		"Action: finish\n" +
		"Action Input: {\"answer\": \"Pre-existing diseases carry a 36 month waiting period.\"}"
)

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestAsk_RequiresQuery(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeAdapter{script: []scripted{{content: finishStep}}}, reasoning.Config{}, nil)
	if _, err := eng.Ask(context.Background(), reasoning.Request{Query: "   "}); err == nil {
		t.Error("expected error for blank query")
	}
}

func TestAsk_ConcludesWithFinish(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: searchStep}, {content: finishStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, nil)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "What is the waiting period for pre-existing diseases?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.State != reasoning.StateConcluded {
		t.Fatalf("expected concluded, got %s", exec.State)
	}
	if exec.FinalAnswer != "Pre-existing diseases carry a 36 month waiting period." {
		t.Errorf("unexpected answer: %q", exec.FinalAnswer)
	}
	if exec.Incomplete {
		t.Error("concluded execution must not be incomplete")
	}
	if len(exec.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(exec.Steps))
	}
	if exec.Steps[0].Action != tools.NameDocumentRetriever {
		t.Errorf("step 1 action = %q", exec.Steps[0].Action)
	}
	if !strings.Contains(exec.Steps[0].Observation, "\"ok\":true") {
		t.Errorf("step 1 observation should carry the tool payload, got %q", exec.Steps[0].Observation)
	}
	if len(exec.ToolsUsed) != 1 || exec.ToolsUsed[0] != tools.NameDocumentRetriever {
		t.Errorf("tools used = %v", exec.ToolsUsed)
	}
	if exec.RealizedIntent != models.IntentDocumentRetrieval {
		t.Errorf("realized intent = %s", exec.RealizedIntent)
	}
	if exec.FinishedAt.Before(exec.StartedAt) {
		t.Error("finished before started")
	}
}

func TestAsk_PromptCarriesObservationsForward(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: searchStep}, {content: finishStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, nil)

	if _, err := eng.Ask(context.Background(), reasoning.Request{Query: "What is covered?"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := llm.lastPrompt()
	if !strings.Contains(prompt, "Steps so far:") {
		t.Errorf("second THINK prompt should replay the trace, got %q", prompt)
	}
	if !strings.Contains(prompt, "Observation:") {
		t.Errorf("second THINK prompt should include the observation, got %q", prompt)
	}
}

func TestAsk_ExhaustsAtConfiguredCap(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: searchStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{MaxIterations: 3}, nil)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "Tell me everything about everything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.State != reasoning.StateExhausted {
		t.Fatalf("expected exhausted, got %s", exec.State)
	}
	if !exec.Incomplete {
		t.Error("exhausted execution must be incomplete")
	}
	if !strings.HasPrefix(exec.FinalAnswer, reasoning.ExhaustedMessage) {
		t.Errorf("answer must lead with the exhaustion message, got %q", exec.FinalAnswer)
	}
	if !strings.Contains(exec.FinalAnswer, "Partial findings:") {
		t.Errorf("answer should surface partial findings, got %q", exec.FinalAnswer)
	}
	if len(exec.Steps) != 3 {
		t.Errorf("expected 3 steps, got %d", len(exec.Steps))
	}
}

func TestAsk_CapIsNeverRaisedAboveDefault(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: searchStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{MaxIterations: 50}, nil)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "loop forever"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.Steps) != reasoning.DefaultMaxIterations {
		t.Errorf("expected the hard cap of %d steps, got %d", reasoning.DefaultMaxIterations, len(exec.Steps))
	}
	if llm.callCount() != reasoning.DefaultMaxIterations {
		t.Errorf("expected %d model calls, got %d", reasoning.DefaultMaxIterations, llm.callCount())
	}
}

func TestAsk_MalformedCompletionBecomesObservation(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{
		{content: "I think the answer is probably 42, but let me muse freely."},
		{content: finishStep},
	}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, nil)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "What is covered?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.State != reasoning.StateConcluded {
		t.Fatalf("loop should recover from malformed output, got %s", exec.State)
	}
	if len(exec.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(exec.Steps))
	}
	if !strings.HasPrefix(exec.Steps[0].Observation, "ExecutionError:") {
		t.Errorf("malformed output must surface as an ExecutionError observation, got %q", exec.Steps[0].Observation)
	}
	if exec.Steps[0].Action != "" {
		t.Errorf("degraded step has no action, got %q", exec.Steps[0].Action)
	}
}

func TestAsk_ModelFailureBecomesObservation(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{
		{err: context.DeadlineExceeded},
		{content: finishStep},
	}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, nil)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "What is covered?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.State != reasoning.StateConcluded {
		t.Fatalf("loop should recover from a model failure, got %s", exec.State)
	}
	if !strings.Contains(exec.Steps[0].Observation, "model call failed") {
		t.Errorf("observation should name the model failure, got %q", exec.Steps[0].Observation)
	}
}

func TestAsk_FailsWhenModelNotConfigured(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeAdapter{offline: true, script: []scripted{{content: finishStep}}}, reasoning.Config{}, nil)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.State != reasoning.StateFailed {
		t.Fatalf("expected failed, got %s", exec.State)
	}
	if !strings.Contains(exec.Error, "not configured") {
		t.Errorf("failure reason should name the missing model, got %q", exec.Error)
	}
}

func TestAsk_CancelledContextFailsExecution(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng, _ := newTestEngine(t, &fakeAdapter{script: []scripted{{content: finishStep}}}, reasoning.Config{}, nil)

	exec, err := eng.Ask(ctx, reasoning.Request{Query: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.State != reasoning.StateFailed {
		t.Fatalf("expected failed, got %s", exec.State)
	}
	if len(exec.Steps) != 0 {
		t.Errorf("no steps should run after cancellation, got %d", len(exec.Steps))
	}
}

func TestAsk_ToolErrorObservedWithoutCrashing(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: searchStep}, {content: finishStep}}}
	overrides := map[string]tools.Handler{
		tools.NameDocumentRetriever: func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
			panic("index corrupted")
		},
	}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, overrides)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "What is covered?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.State != reasoning.StateConcluded {
		t.Fatalf("loop should survive a panicking tool, got %s", exec.State)
	}
	if !strings.HasPrefix(exec.Steps[0].Observation, "ExecutionError:") {
		t.Errorf("tool panic must observe as ExecutionError, got %q", exec.Steps[0].Observation)
	}
	if len(exec.ToolsUsed) != 0 {
		t.Errorf("failed tools must not count as used, got %v", exec.ToolsUsed)
	}
	if exec.RealizedIntent != "" {
		t.Errorf("no realized intent without a successful tool, got %s", exec.RealizedIntent)
	}
}

func TestAsk_CompositeIntentFromTwoTools(t *testing.T) {
	premiumStep := "Thought: Price it first.\n" +
		"Action: premium_calculator\n" +
		"Action Input: {\"product\": \"ActivAssure\", \"policy_type\": \"individual\", \"ages\": [35], \"sum_insured\": 500000}"
	compareStep := "Thought: Now compare against the other product.\n" +
		"Action: policy_comparator\n" +
		"Action Input: {\"products\": [\"ActivAssure\", \"SecureShield\"], \"policy_type\": \"individual\", \"ages\": [35], \"sum_insured\": 500000}"
	llm := &fakeAdapter{script: []scripted{{content: premiumStep}, {content: compareStep}, {content: finishStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, nil)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "Price ActivAssure and tell me if SecureShield beats it"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.RealizedIntent != models.IntentPremiumAndComparison {
		t.Errorf("expected %s, got %s", models.IntentPremiumAndComparison, exec.RealizedIntent)
	}
	if len(exec.ToolsUsed) != 2 {
		t.Errorf("tools used = %v", exec.ToolsUsed)
	}
}

func TestAsk_CorrectionTeachesClassifier(t *testing.T) {
	premiumStep := "Thought: This is really a pricing question.\n" +
		"Action: premium_calculator\n" +
		"Action Input: {\"product\": \"ActivAssure\", \"policy_type\": \"individual\", \"ages\": [62], \"sum_insured\": 500000}"
	llm := &fakeAdapter{script: []scripted{{content: premiumStep}, {content: finishStep}}}
	eng, classifier := newTestEngine(t, llm, reasoning.Config{}, nil)

	// No premium keywords, so the classifier predicts retrieval; the loop
	// realises premium_calculation and the correction becomes a pattern.
	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "Renewal amount for my parents aged sixty"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.PredictedIntent != models.IntentDocumentRetrieval {
		t.Fatalf("predicted = %s", exec.PredictedIntent)
	}
	if exec.RealizedIntent != models.IntentPremiumCalculation {
		t.Fatalf("realized = %s", exec.RealizedIntent)
	}

	stats := classifier.Stats()
	if stats.Predictions != 1 || stats.Correct != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Corrections != 1 || stats.LearnedPatterns != 1 {
		t.Errorf("expected one learned pattern, stats = %+v", stats)
	}
}

func TestGetAndList_NewestFirstWithEviction(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: finishStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{MaxExecutions: 2}, nil)

	var ids []string
	for _, q := range []string{"first question", "second question", "third question"} {
		exec, err := eng.Ask(context.Background(), reasoning.Request{Query: q})
		if err != nil {
			t.Fatalf("ask %q: %v", q, err)
		}
		ids = append(ids, exec.ID)
	}

	execs := eng.List(0)
	if len(execs) != 2 {
		t.Fatalf("expected 2 retained executions, got %d", len(execs))
	}
	if execs[0].ID != ids[2] || execs[1].ID != ids[1] {
		t.Errorf("expected newest first, got %s then %s", execs[0].ID, execs[1].ID)
	}
	if _, ok := eng.Get(ids[0]); ok {
		t.Error("oldest execution should have been evicted")
	}
	if _, ok := eng.Get(ids[2]); !ok {
		t.Error("newest execution should be retrievable")
	}
	if got := eng.List(1); len(got) != 1 || got[0].ID != ids[2] {
		t.Errorf("List(1) = %v", got)
	}
}

func TestSubscribe_TerminalExecutionReturnsClosedChannel(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: finishStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, nil)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "quick one"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub := eng.Subscribe(exec.ID)
	select {
	case _, ok := <-sub.Ch:
		if ok {
			t.Error("expected an immediately closed channel, got an event")
		}
	case <-time.After(time.Second):
		t.Error("channel for a terminal execution must be closed, not open")
	}
}

func TestSubscribe_StreamsStepsAndFinal(t *testing.T) {
	release := make(chan struct{})
	overrides := map[string]tools.Handler{
		tools.NameDocumentRetriever: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return map[string]interface{}{"passages": 1}, nil
		},
	}
	llm := &fakeAdapter{script: []scripted{{content: searchStep}, {content: finishStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, overrides)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = eng.Ask(context.Background(), reasoning.Request{Query: "What is covered?"})
	}()

	// The execution registers before the loop starts, so List finds it while
	// the tool handler is still blocked.
	var id string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if execs := eng.List(1); len(execs) == 1 {
			id = execs[0].ID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if id == "" {
		t.Fatal("execution never registered")
	}

	sub := eng.Subscribe(id)
	close(release)
	events := collectEvents(sub, 3*time.Second)
	<-done

	var sawTool, sawStep, sawFinal bool
	for _, ev := range events {
		switch ev.Type {
		case reasoning.EventTool:
			sawTool = true
		case reasoning.EventStep:
			sawStep = true
		case reasoning.EventFinal:
			sawFinal = true
			if ev.Answer == "" {
				t.Error("final event must carry the answer")
			}
		}
	}
	if !sawTool || !sawStep || !sawFinal {
		t.Errorf("expected tool, step and final events, got %+v", events)
	}
	if len(events) == 0 || events[len(events)-1].Type != reasoning.EventFinal {
		t.Error("final event must be the last one before the channel closes")
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: finishStep}}}
	eng, _ := newTestEngine(t, llm, reasoning.Config{}, nil)

	sub := eng.Subscribe("not-started-yet")
	eng.Unsubscribe(sub)
	if _, ok := <-sub.Ch; ok {
		t.Error("unsubscribed channel must be closed")
	}
	// A second unsubscribe must not panic on the already-removed entry.
	eng.Unsubscribe(sub)
}

// fakeTracker scripts the budget checks and counts recorded usage.
type fakeTracker struct {
	mu        sync.Mutex
	globalErr error
	convErr   error
	records   int
	lastConv  string
}

func (f *fakeTracker) Record(_ context.Context, conversationID, _, _ string, _ types.TokenUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	f.lastConv = conversationID
	return nil
}

func (f *fakeTracker) CheckConversation(_ context.Context, _ string, _ int) error { return f.convErr }

func (f *fakeTracker) CheckGlobal(_ context.Context) error { return f.globalErr }

func (f *fakeTracker) ConversationTotal(_ context.Context, _ string) (int64, error) { return 0, nil }

func (f *fakeTracker) MonthlySpend(_ context.Context) (float64, error) { return 0, nil }

func (f *fakeTracker) EstimateCost(_ string, _, _ int64) float64 { return 0 }

func (f *fakeTracker) recorded() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, f.lastConv
}

func newBudgetedTestEngine(t *testing.T, llm adapter.Adapter, tracker *fakeTracker) reasoning.Engine {
	t.Helper()
	classifier := reasoning.NewClassifier(nil, nil)
	return reasoning.New(llm, newTestRegistry(t, nil), classifier, nil, nil, tracker, reasoning.Config{}, nil)
}

func TestAsk_BudgetExceededFailsFast(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: finishStep}}}
	tracker := &fakeTracker{globalErr: budget.ErrBudgetExceeded}
	eng := newBudgetedTestEngine(t, llm, tracker)

	exec, err := eng.Ask(context.Background(), reasoning.Request{
		ConversationID: "conv-over-budget",
		Query:          "What does my policy cover?",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if exec.State != reasoning.StateFailed {
		t.Fatalf("state = %s, want failed", exec.State)
	}
	if !strings.Contains(exec.Error, "token budget exceeded") {
		t.Errorf("error = %q, want budget message", exec.Error)
	}
	if len(exec.Steps) != 0 {
		t.Errorf("got %d steps, want none: a breached budget must not burn iterations", len(exec.Steps))
	}
	if got := llm.callCount(); got != 0 {
		t.Errorf("model called %d times despite exhausted budget", got)
	}
}

func TestAsk_UsageRecordedPerModelCall(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: searchStep}, {content: finishStep}}}
	tracker := &fakeTracker{}
	eng := newBudgetedTestEngine(t, llm, tracker)

	exec, err := eng.Ask(context.Background(), reasoning.Request{
		ConversationID: "conv-metered",
		Query:          "What is the waiting period for cataract surgery?",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if exec.State != reasoning.StateConcluded {
		t.Fatalf("state = %s, want concluded", exec.State)
	}
	records, conv := tracker.recorded()
	if records != 2 {
		t.Errorf("recorded %d completions, want 2", records)
	}
	if conv != "conv-metered" {
		t.Errorf("usage recorded under %q, want conv-metered", conv)
	}
}

func TestAsk_NoConversationSkipsBudget(t *testing.T) {
	llm := &fakeAdapter{script: []scripted{{content: finishStep}}}
	tracker := &fakeTracker{globalErr: budget.ErrBudgetExceeded}
	eng := newBudgetedTestEngine(t, llm, tracker)

	exec, err := eng.Ask(context.Background(), reasoning.Request{Query: "List the available products."})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if exec.State != reasoning.StateConcluded {
		t.Fatalf("state = %s, want concluded: anonymous queries carry no conversation budget", exec.State)
	}
}
