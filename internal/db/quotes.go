package db

import (
	"context"
	"fmt"
	"time"
)

// ─── Premium Quote Implementation ─────────────────────────────────────────────

func (s *sqliteStore) SaveQuote(ctx context.Context, rec *QuoteRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO premium_quotes (conversation_id, product, policy_type, composition, sum_insured, eldest_age, gross_premium, gst_amount, total_premium, workbook_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ConversationID, rec.Product, rec.PolicyType, rec.Composition,
		rec.SumInsured, rec.EldestAge, rec.GrossPremium, rec.GSTAmount,
		rec.TotalPremium, rec.WorkbookPath, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save quote: %w", err)
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) ListQuotes(ctx context.Context, conversationID string, limit, offset int) ([]*QuoteRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, conversation_id, product, policy_type, composition, sum_insured, eldest_age, gross_premium, gst_amount, total_premium, workbook_path, created_at FROM premium_quotes`
	args := []any{}
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var results []*QuoteRecord
	for rows.Next() {
		var r QuoteRecord
		var ts string
		if err := rows.Scan(
			&r.ID, &r.ConversationID, &r.Product, &r.PolicyType, &r.Composition,
			&r.SumInsured, &r.EldestAge, &r.GrossPremium, &r.GSTAmount,
			&r.TotalPremium, &r.WorkbookPath, &ts,
		); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		r.CreatedAt, _ = parseTime(ts)
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *sqliteStore) QuoteSummary(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query := `SELECT product, COUNT(*) FROM premium_quotes WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` GROUP BY product`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("quote summary: %w", err)
	}
	defer rows.Close()

	summary := map[string]int{}
	for rows.Next() {
		var product string
		var count int
		if err := rows.Scan(&product, &count); err != nil {
			return nil, err
		}
		summary[product] = count
	}
	return summary, rows.Err()
}
