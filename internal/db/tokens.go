package db

import (
	"context"
	"fmt"
	"time"
)

// ─── Token Usage Implementation ───────────────────────────────────────────────

func (s *sqliteStore) AppendTokenUsage(ctx context.Context, rec *TokenUsageRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO token_usage (conversation_id, provider, model, input_tokens, output_tokens, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ConversationID, rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens, rec.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("append token usage: %w", err)
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) ConversationTokenTotal(ctx context.Context, conversationID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM token_usage
		WHERE conversation_id = ?
	`, conversationID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("conversation token total: %w", err)
	}
	return total, nil
}

func (s *sqliteStore) GlobalTokenTotal(ctx context.Context, from, to time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(input_tokens + output_tokens), 0) FROM token_usage WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, to.UTC())
	}

	var total int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("global token total: %w", err)
	}
	return total, nil
}

func (s *sqliteStore) TokenUsageByProvider(ctx context.Context, from, to time.Time) ([]*ProviderUsage, error) {
	query := `
		SELECT provider, model,
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0)
		FROM token_usage WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` GROUP BY provider, model ORDER BY provider, model`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("token usage by provider: %w", err)
	}
	defer rows.Close()

	var out []*ProviderUsage
	for rows.Next() {
		u := &ProviderUsage{}
		if err := rows.Scan(&u.Provider, &u.Model, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan provider usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
