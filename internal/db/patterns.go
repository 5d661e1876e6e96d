package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// ─── Intent Pattern Implementation ────────────────────────────────────────────

// keywordsKey produces the canonical stored form of a keyword set. Sorting
// makes the same set hit the same UNIQUE(intent, keywords) row regardless of
// the order keywords were extracted in.
func keywordsKey(keywords []string) (string, error) {
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.Strings(sorted)
	b, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("marshal keywords: %w", err)
	}
	return string(b), nil
}

func (s *sqliteStore) UpsertIntentPattern(ctx context.Context, rec *IntentPatternRecord) error {
	key, err := keywordsKey(rec.Keywords)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intent_patterns (intent, keywords, weight, times_seen, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(intent, keywords) DO UPDATE SET
			weight     = excluded.weight,
			times_seen = times_seen + 1,
			updated_at = excluded.updated_at
	`, rec.Intent, key, rec.Weight, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert intent pattern: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListIntentPatterns(ctx context.Context) ([]*IntentPatternRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intent, keywords, weight, times_seen, created_at, updated_at
		FROM intent_patterns
		ORDER BY weight DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list intent patterns: %w", err)
	}
	defer rows.Close()

	var results []*IntentPatternRecord
	for rows.Next() {
		var r IntentPatternRecord
		var keywordsJSON, ca, ua string
		if err := rows.Scan(&r.ID, &r.Intent, &keywordsJSON, &r.Weight, &r.TimesSeen, &ca, &ua); err != nil {
			return nil, fmt.Errorf("scan intent pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &r.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords for pattern %d: %w", r.ID, err)
		}
		r.CreatedAt, _ = parseTime(ca)
		r.UpdatedAt, _ = parseTime(ua)
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *sqliteStore) PruneIntentPatterns(ctx context.Context, max int) (int64, error) {
	if max < 0 {
		max = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM intent_patterns
		WHERE id NOT IN (
			SELECT id FROM intent_patterns ORDER BY weight DESC, id ASC LIMIT ?
		)
	`, max)
	if err != nil {
		return 0, fmt.Errorf("prune intent patterns: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
