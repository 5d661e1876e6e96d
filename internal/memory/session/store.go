package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/audit"
	"github.com/insurelens/insurelens-ai/internal/db"
	"github.com/insurelens/insurelens-ai/internal/models"
)

// Package session keeps per-conversation dialogue history.
//
// Responsibilities:
//   - Append user and assistant turns under a conversation id
//   - Serve ordered history for follow-up resolution and prompt context
//   - Bound growth: trim to the configured turn-pair budget, oldest first
//   - Clear conversations on request, with an audit trail entry
//
// Isolation: a turn lives under exactly one conversation id; reads of other
// ids never see it. Appends under one id take their order from commit order;
// callers needing stricter ordering serialize per conversation themselves.

// DefaultMaxTurns bounds history when no limit is configured. A turn pair is
// one user turn plus one assistant turn.
const DefaultMaxTurns = 50

// Turn is one dialogue message to append. Intent is set on user turns once
// the router has classified them.
type Turn struct {
	Role       string
	Content    string
	Intent     string
	TokenCount int
}

// Store is the session memory surface used by the router, the reasoning
// engine and the HTTP handlers.
type Store interface {
	// Append adds a turn and trims the conversation to the history bound.
	Append(ctx context.Context, conversationID string, turn Turn) error

	// History returns the conversation's retained turns, oldest first.
	History(ctx context.Context, conversationID string) ([]models.ConversationTurn, error)

	// Recent returns the last n turns, oldest first.
	Recent(ctx context.Context, conversationID string, n int) ([]models.ConversationTurn, error)

	// Clear removes the conversation and its turns.
	Clear(ctx context.Context, conversationID string) error

	// Sessions lists conversations by most recent activity.
	Sessions(ctx context.Context, limit, offset int) ([]*db.ConversationRecord, error)
}

// NewStore builds session memory over the conversation store. maxTurns is
// the retained turn-pair budget; zero or negative selects DefaultMaxTurns.
// The audit logger may be nil.
func NewStore(store db.ConversationStore, auditLog audit.Logger, maxTurns int, log *zap.Logger) Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &sessionStore{
		db:       store,
		audit:    auditLog,
		maxTurns: maxTurns,
		log:      log,
	}
}
