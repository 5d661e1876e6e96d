package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/audit"
	"github.com/insurelens/insurelens-ai/internal/db"
	"github.com/insurelens/insurelens-ai/internal/metrics"
	"github.com/insurelens/insurelens-ai/internal/models"
)

const titleMaxRunes = 60

type sessionStore struct {
	db       db.ConversationStore
	audit    audit.Logger
	maxTurns int
	log      *zap.Logger
}

func (s *sessionStore) Append(ctx context.Context, conversationID string, turn Turn) error {
	if conversationID == "" {
		return errors.New("conversation id is required")
	}
	if turn.Role != models.RoleUser && turn.Role != models.RoleAssistant {
		return fmt.Errorf("unknown turn role %q", turn.Role)
	}

	now := time.Now().UTC()
	if err := s.touchConversation(ctx, conversationID, turn, now); err != nil {
		return err
	}

	msg := &db.MessageRecord{
		ConversationID: conversationID,
		Role:           turn.Role,
		Content:        turn.Content,
		Intent:         turn.Intent,
		TokenCount:     turn.TokenCount,
		Timestamp:      now,
	}
	if err := s.db.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	// Two messages per retained turn pair.
	removed, err := s.db.TrimMessages(ctx, conversationID, s.maxTurns*2)
	if err != nil {
		return fmt.Errorf("trim conversation: %w", err)
	}
	if removed > 0 {
		metrics.SessionTurnsTrimmed.Add(float64(removed))
		s.log.Debug("trimmed conversation history",
			zap.String("conversation_id", conversationID),
			zap.Int64("removed", removed))
	}
	return nil
}

// touchConversation creates the conversation row on first contact and bumps
// its activity timestamp afterwards. The title comes from the first user
// turn.
func (s *sessionStore) touchConversation(ctx context.Context, conversationID string, turn Turn, now time.Time) error {
	rec, err := s.db.GetConversation(ctx, conversationID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec = &db.ConversationRecord{
			ID:        conversationID,
			CreatedAt: now,
		}
	case err != nil:
		return fmt.Errorf("load conversation: %w", err)
	}

	if rec.Title == "" && turn.Role == models.RoleUser {
		rec.Title = deriveTitle(turn.Content)
	}
	rec.UpdatedAt = now
	if err := s.db.SaveConversation(ctx, rec); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *sessionStore) History(ctx context.Context, conversationID string) ([]models.ConversationTurn, error) {
	msgs, err := s.db.GetMessages(ctx, conversationID, s.maxTurns*2)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return toTurns(msgs), nil
}

func (s *sessionStore) Recent(ctx context.Context, conversationID string, n int) ([]models.ConversationTurn, error) {
	if n <= 0 {
		return nil, nil
	}
	turns, err := s.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns, nil
}

func (s *sessionStore) Clear(ctx context.Context, conversationID string) error {
	if err := s.db.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	if s.audit != nil {
		s.audit.LogSessionCleared(ctx, conversationID)
	}
	s.log.Info("conversation cleared", zap.String("conversation_id", conversationID))
	return nil
}

func (s *sessionStore) Sessions(ctx context.Context, limit, offset int) ([]*db.ConversationRecord, error) {
	return s.db.ListConversations(ctx, limit, offset)
}

func toTurns(msgs []*db.MessageRecord) []models.ConversationTurn {
	turns := make([]models.ConversationTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, models.ConversationTurn{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.Timestamp,
		})
	}
	return turns
}

func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes])
	}
	return title
}
