package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/semnet/internal/reasoning"
)

// SaveHistory inserts records in one batch. Records already stored under the
// same id are skipped, so a retried flush does not duplicate rows.
func (s *Store) SaveHistory(ctx context.Context, records []reasoning.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		detail, err := json.Marshal(r.Detail)
		if err != nil {
			return fmt.Errorf("marshal detail of %s: %w", r.ID, err)
		}
		batch.Queue(`
			INSERT INTO history (id, kind, at, detail)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, string(r.Kind), r.At, detail)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit records, newest first. An empty kind
// matches every kind.
func (s *Store) RecentHistory(ctx context.Context, kind reasoning.EventKind, limit int) ([]reasoning.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, kind, at, detail
		FROM history
		WHERE $1::text = '' OR kind = $1::text
		ORDER BY at DESC
		LIMIT $2`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []reasoning.Record
	for rows.Next() {
		var r reasoning.Record
		var k string
		var detail []byte
		if err := rows.Scan(&r.ID, &k, &r.At, &detail); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Kind = reasoning.EventKind(k)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &r.Detail); err != nil {
				return nil, fmt.Errorf("decode detail of %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountHistory returns the number of stored records.
func (s *Store) CountHistory(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
