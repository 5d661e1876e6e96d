package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/insurelens/insurelens-ai/internal/db"
	"github.com/insurelens/insurelens-ai/internal/llm/types"
)

func newTestTracker(t *testing.T, limits Limits) Tracker {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewTracker(store, limits)
}

func TestRecordPersistsUsage(t *testing.T) {
	tr := newTestTracker(t, Limits{})
	ctx := context.Background()

	if err := tr.Record(ctx, "conv-1", "openai", "gpt-4o-mini", types.TokenUsage{InputTokens: 1000, OutputTokens: 500}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Record(ctx, "conv-1", "openai", "gpt-4o-mini", types.TokenUsage{InputTokens: 200, OutputTokens: 100}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	total, err := tr.ConversationTotal(ctx, "conv-1")
	if err != nil {
		t.Fatalf("ConversationTotal: %v", err)
	}
	if total != 1800 {
		t.Errorf("expected 1800 tokens, got %d", total)
	}
}

func TestConversationLimitEnforced(t *testing.T) {
	tr := newTestTracker(t, Limits{PerConversationTokens: 1000})
	ctx := context.Background()

	_ = tr.Record(ctx, "conv-cap", "openai", "gpt-4o-mini", types.TokenUsage{InputTokens: 600, OutputTokens: 300})

	if err := tr.CheckConversation(ctx, "conv-cap", 50); err != nil {
		t.Errorf("expected 950+50 to fit within 1000, got %v", err)
	}

	err := tr.CheckConversation(ctx, "conv-cap", 200)
	if err == nil {
		t.Fatal("expected budget exceeded, got nil")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}

	// Other conversations are unaffected.
	if err := tr.CheckConversation(ctx, "conv-other", 200); err != nil {
		t.Errorf("expected fresh conversation to pass, got %v", err)
	}
}

func TestConversationLimitDisabled(t *testing.T) {
	tr := newTestTracker(t, Limits{})
	ctx := context.Background()

	_ = tr.Record(ctx, "conv-big", "openai", "gpt-4o-mini", types.TokenUsage{InputTokens: 500000, OutputTokens: 500000})

	if err := tr.CheckConversation(ctx, "conv-big", 1000000); err != nil {
		t.Errorf("expected no limit with zero config, got %v", err)
	}
}

func TestGlobalCeilingEnforced(t *testing.T) {
	tr := newTestTracker(t, Limits{GlobalMonthlyUSD: 0.10})
	ctx := context.Background()

	if err := tr.CheckGlobal(ctx); err != nil {
		t.Fatalf("expected headroom before any usage, got %v", err)
	}

	// 1M input + 1M output on gpt-4o-mini is $0.15 + $0.60, past the ceiling.
	_ = tr.Record(ctx, "conv-g", "openai", "gpt-4o-mini", types.TokenUsage{InputTokens: 1000000, OutputTokens: 1000000})

	err := tr.CheckGlobal(ctx)
	if err == nil {
		t.Fatal("expected global ceiling breach, got nil")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestOllamaUsageIsFree(t *testing.T) {
	tr := newTestTracker(t, Limits{GlobalMonthlyUSD: 0.01})
	ctx := context.Background()

	_ = tr.Record(ctx, "conv-local", "ollama", "llama3", types.TokenUsage{InputTokens: 5000000, OutputTokens: 5000000})

	spend, err := tr.MonthlySpend(ctx)
	if err != nil {
		t.Fatalf("MonthlySpend: %v", err)
	}
	if spend != 0 {
		t.Errorf("expected zero spend for ollama, got %f", spend)
	}
	if err := tr.CheckGlobal(ctx); err != nil {
		t.Errorf("expected free usage to pass the ceiling, got %v", err)
	}
}

func TestEstimateCost(t *testing.T) {
	tr := newTestTracker(t, Limits{})

	if cost := tr.EstimateCost("openai", 1000, 500); cost <= 0 {
		t.Error("expected positive openai cost")
	}
	if cost := tr.EstimateCost("ollama", 1000, 500); cost != 0 {
		t.Errorf("expected zero ollama cost, got %f", cost)
	}
	// Unknown providers still priced, so ceilings bind.
	if cost := tr.EstimateCost("other", 1000, 500); cost <= 0 {
		t.Error("expected positive cost for unknown provider")
	}
}
