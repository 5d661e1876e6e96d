package context

import (
	"context"

	"github.com/insurelens/insurelens-ai/internal/models"
)

// Package context assembles conversation context for reasoning prompts.
//
// Responsibilities:
//   - Decide whether a query needs history: follow-up indicators or very
//     short queries pull in recent turns, standalone questions do not
//   - Render the selected turns into a prompt block, bounded per turn
//   - Estimate token cost so callers can log and budget context size
//
// Context injection only shapes the prompt; it never changes what any tool
// computes.

// Builder assembles the conversation context block for one query.
type Builder interface {
	// Build returns the rendered context block, or "" when the query stands
	// on its own or has no history. A history read failure is returned so
	// the caller can degrade to no context.
	Build(ctx context.Context, conversationID, query string) (string, error)

	// EstimateTokens approximates the token cost of a context block.
	EstimateTokens(block string) int
}

// HistorySource is the slice of session memory the builder reads. The
// session store satisfies it.
type HistorySource interface {
	Recent(ctx context.Context, conversationID string, n int) ([]models.ConversationTurn, error)
}

// NewBuilder (builder_impl.go) creates a Builder over a history source.
