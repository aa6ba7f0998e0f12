package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starfall-labs/relay-memory/internal/model"
)

// Link records a relation between two memory records. Strength is clamped to
// [0,1]; re-linking an existing pair refreshes the strength.
func (s *SQLiteStore) Link(ctx context.Context, fromID, toID, rel string, strength float64) error {
	if !model.ValidRels[rel] {
		return fmt.Errorf("relation %q (valid: relates_to, contradicts, depends_on, refines): %w", rel, ErrValidation)
	}
	if fromID == toID {
		return fmt.Errorf("self link: %w", ErrValidation)
	}
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}

	for _, id := range []string{fromID, toID} {
		var one int
		if err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM memories WHERE id = ?`, id).Scan(&one); err != nil {
			return fmt.Errorf("memory %s: %w", id, ErrNotFound)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_links (from_id, to_id, rel, strength, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (from_id, to_id, rel) DO UPDATE SET strength = excluded.strength`,
		fromID, toID, rel, strength, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

// Unlink removes a relation.
func (s *SQLiteStore) Unlink(ctx context.Context, fromID, toID, rel string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_links WHERE from_id = ? AND to_id = ? AND rel = ?`,
		fromID, toID, rel)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("link %s-[%s]->%s: %w", fromID, rel, toID, ErrNotFound)
	}
	return nil
}

// LinksFor returns all relations touching a record, in either direction.
func (s *SQLiteStore) LinksFor(ctx context.Context, id string) ([]model.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, rel, strength, created_at FROM memory_links
		 WHERE from_id = ? OR to_id = ?
		 ORDER BY created_at, rel`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.Relation
	for rows.Next() {
		var l model.Relation
		var createdAt string
		if err := rows.Scan(&l.FromID, &l.ToID, &l.Rel, &l.Strength, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTime(createdAt)
		links = append(links, l)
	}
	return links, rows.Err()
}
