package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/insurelens/insurelens-ai/internal/db"
	"github.com/insurelens/insurelens-ai/internal/llm/types"
	"github.com/insurelens/insurelens-ai/internal/metrics"
)

// ─── Pricing ──────────────────────────────────────────────────────────────────

// providerPricing maps provider names to (input, output) USD per 1K tokens.
var providerPricing = map[string][2]float64{
	"openai": {0.00015, 0.0006}, // gpt-4o-mini
	"ollama": {0.0, 0.0},        // local, free
}

// ─── Implementation ───────────────────────────────────────────────────────────

type tracker struct {
	store  db.TokenUsageStore
	limits Limits
}

// NewTracker creates a tracker over the persistent usage store.
func NewTracker(store db.TokenUsageStore, limits Limits) Tracker {
	return &tracker{store: store, limits: limits}
}

func (t *tracker) Record(ctx context.Context, conversationID, provider, model string, usage types.TokenUsage) error {
	rec := &db.TokenUsageRecord{
		ConversationID: conversationID,
		Provider:       provider,
		Model:          model,
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
		RecordedAt:     time.Now().UTC(),
	}
	if err := t.store.AppendTokenUsage(ctx, rec); err != nil {
		return fmt.Errorf("recording token usage: %w", err)
	}

	if total, err := t.store.ConversationTokenTotal(ctx, conversationID); err == nil {
		metrics.BudgetTokensUsed.WithLabelValues(conversationID).Set(float64(total))
	}
	return nil
}

func (t *tracker) CheckConversation(ctx context.Context, conversationID string, estimatedTokens int) error {
	if t.limits.PerConversationTokens <= 0 {
		return nil
	}
	total, err := t.store.ConversationTokenTotal(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reading conversation token total: %w", err)
	}
	if total+int64(estimatedTokens) > int64(t.limits.PerConversationTokens) {
		metrics.BudgetExceeded.WithLabelValues(conversationID).Inc()
		return fmt.Errorf("%w: conversation %s has used %d of %d tokens",
			ErrBudgetExceeded, conversationID, total, t.limits.PerConversationTokens)
	}
	return nil
}

func (t *tracker) CheckGlobal(ctx context.Context) error {
	if t.limits.GlobalMonthlyUSD <= 0 {
		return nil
	}
	spend, err := t.MonthlySpend(ctx)
	if err != nil {
		return err
	}
	if spend >= t.limits.GlobalMonthlyUSD {
		metrics.BudgetExceeded.WithLabelValues("global").Inc()
		return fmt.Errorf("%w: monthly spend $%.4f has reached the $%.2f ceiling",
			ErrBudgetExceeded, spend, t.limits.GlobalMonthlyUSD)
	}
	return nil
}

func (t *tracker) ConversationTotal(ctx context.Context, conversationID string) (int64, error) {
	return t.store.ConversationTokenTotal(ctx, conversationID)
}

func (t *tracker) MonthlySpend(ctx context.Context) (float64, error) {
	usage, err := t.store.TokenUsageByProvider(ctx, startOfMonth(), time.Time{})
	if err != nil {
		return 0, fmt.Errorf("reading monthly usage: %w", err)
	}
	spend := 0.0
	for _, u := range usage {
		spend += t.EstimateCost(u.Provider, u.InputTokens, u.OutputTokens)
	}
	return spend, nil
}

func (t *tracker) EstimateCost(provider string, inputTokens, outputTokens int64) float64 {
	pricing, ok := providerPricing[provider]
	if !ok {
		// Unknown providers priced like OpenAI so the ceiling still binds.
		pricing = providerPricing["openai"]
	}
	return float64(inputTokens)/1000.0*pricing[0] + float64(outputTokens)/1000.0*pricing[1]
}

func startOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
