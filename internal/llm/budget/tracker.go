package budget

import (
	"context"
	"errors"

	"github.com/insurelens/insurelens-ai/internal/llm/types"
)

// Package budget enforces token and spend limits for LLM usage.
//
// Responsibilities:
//   - Record every completion's token usage to the database
//   - Enforce the per-conversation token limit before a completion runs
//   - Enforce the global monthly spend ceiling across all conversations
//   - Price usage per provider for spend calculation (Ollama is free)
//
// Limits come from configuration; zero means unlimited. Usage is persisted,
// so limits hold across restarts.

// ErrBudgetExceeded is returned when a limit would be breached. The server
// maps it to HTTP 429.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// Limits holds the configured ceilings. Zero disables a limit.
type Limits struct {
	// PerConversationTokens caps input+output tokens per conversation.
	PerConversationTokens int
	// GlobalMonthlyUSD caps total spend per calendar month.
	GlobalMonthlyUSD float64
}

// Tracker records usage and answers budget checks.
type Tracker interface {
	// Record persists one completion's usage against a conversation.
	Record(ctx context.Context, conversationID, provider, model string, usage types.TokenUsage) error

	// CheckConversation returns ErrBudgetExceeded when the conversation's
	// total plus the estimate would breach the per-conversation limit.
	CheckConversation(ctx context.Context, conversationID string, estimatedTokens int) error

	// CheckGlobal returns ErrBudgetExceeded when month-to-date spend has
	// reached the global ceiling.
	CheckGlobal(ctx context.Context) error

	// ConversationTotal returns input+output tokens consumed by a
	// conversation.
	ConversationTotal(ctx context.Context, conversationID string) (int64, error)

	// MonthlySpend returns the month-to-date cost in USD across providers.
	MonthlySpend(ctx context.Context) (float64, error)

	// EstimateCost prices a token count for a provider.
	EstimateCost(provider string, inputTokens, outputTokens int64) float64
}
