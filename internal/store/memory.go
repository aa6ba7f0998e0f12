package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starfall-labs/relay-memory/internal/model"
)

const recordCols = `id, kind, scope, content, score, valence, origin, keywords,
	created_at, reinforced_at, reinforcement`

// PutMemory stores a new memory record. The write is atomic: either the full
// record is visible afterwards or nothing is.
func (s *SQLiteStore) PutMemory(ctx context.Context, p PutMemoryParams) (*model.MemoryRecord, error) {
	if !model.ValidKinds[p.Kind] {
		return nil, fmt.Errorf("kind %q: %w", p.Kind, ErrValidation)
	}
	if p.Scope == "" {
		return nil, fmt.Errorf("empty scope: %w", ErrValidation)
	}
	if p.Content == "" {
		return nil, fmt.Errorf("empty content: %w", ErrValidation)
	}
	if p.Score < 0 || p.Score > 1 {
		return nil, fmt.Errorf("score %v outside [0,1]: %w", p.Score, ErrValidation)
	}
	if p.Valence < -1 || p.Valence > 1 {
		return nil, fmt.Errorf("valence %v outside [-1,1]: %w", p.Valence, ErrValidation)
	}

	now := time.Now().UTC()
	id := s.newID()

	var origin *string
	if p.Origin != "" {
		origin = &p.Origin
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, kind, scope, content, score, valence, origin, keywords, created_at, reinforcement)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		id, p.Kind, p.Scope, p.Content, p.Score, p.Valence, origin,
		marshalList(p.Keywords), fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	return &model.MemoryRecord{
		ID:        id,
		Kind:      p.Kind,
		Scope:     p.Scope,
		Content:   p.Content,
		Score:     p.Score,
		Valence:   p.Valence,
		Origin:    p.Origin,
		Keywords:  p.Keywords,
		CreatedAt: now,
	}, nil
}

// GetMemory fetches a record by id.
func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*model.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Reinforce adjusts a record's score by delta, clamped to [0,1], and stamps
// the reinforcement. Negative deltas weaken. Reinforcement happens only
// through this call; queries never touch scores.
func (s *SQLiteStore) Reinforce(ctx context.Context, id string, delta float64) (*model.MemoryRecord, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories
		 SET score = MIN(1.0, MAX(0.0, score + ?)),
		     reinforcement = reinforcement + 1,
		     reinforced_at = ?
		 WHERE id = ?`,
		delta, fmtTime(now), id)
	if err != nil {
		return nil, fmt.Errorf("reinforce: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return s.GetMemory(ctx, id)
}

// QueryMemories returns records matching the filters, ranked by score then
// creation recency. Read-only: result ordering and scores are unaffected by
// the query itself.
func (s *SQLiteStore) QueryMemories(ctx context.Context, p QueryParams) ([]model.MemoryRecord, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1=1"}
	var args []interface{}

	if len(p.Scopes) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(p.Scopes)), ",")
		where = append(where, "scope IN ("+ph+")")
		for _, sc := range p.Scopes {
			args = append(args, sc)
		}
	}
	if p.Kind != "" {
		if !model.ValidKinds[p.Kind] {
			return nil, fmt.Errorf("kind %q: %w", p.Kind, ErrValidation)
		}
		where = append(where, "kind = ?")
		args = append(args, p.Kind)
	}
	if p.Text != "" {
		where = append(where, "content LIKE ?")
		args = append(args, "%"+p.Text+"%")
	}
	if p.Origin != "" {
		where = append(where, "origin = ?")
		args = append(args, p.Origin)
	}
	if p.MinScore > 0 {
		where = append(where, "score >= ?")
		args = append(args, p.MinScore)
	}

	query := fmt.Sprintf(
		`SELECT `+recordCols+` FROM memories
		 WHERE %s
		 ORDER BY score DESC, created_at DESC, id DESC
		 LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query memories", err)
	}
	defer rows.Close()

	var records []model.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// EvictOverCapacity removes the lowest-value records in a scope until at most
// capacity remain. Victims are chosen by score ascending, then least recently
// reinforced, then id, so repeated runs over the same state pick the same
// victims. Returns the evicted ids.
func (s *SQLiteStore) EvictOverCapacity(ctx context.Context, scope string, capacity int) ([]string, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("capacity %d: %w", capacity, ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin evict", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE scope = ?`, scope).Scan(&count); err != nil {
		return nil, err
	}
	if count <= capacity {
		return nil, nil
	}

	excess := count - capacity
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM memories WHERE scope = ?
		 ORDER BY score ASC, COALESCE(reinforced_at, created_at) ASC, id ASC
		 LIMIT ?`, scope, excess)
	if err != nil {
		return nil, err
	}
	var victims []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		victims = append(victims, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range victims {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("evict %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return victims, nil
}

// SweepBelowFloor deletes records in a scope whose score has fallen below
// floor, sparing anything created or reinforced within minAge. Returns the
// number removed.
func (s *SQLiteStore) SweepBelowFloor(ctx context.Context, scope string, floor float64, minAge time.Duration) (int, error) {
	cutoff := fmtTime(time.Now().UTC().Add(-minAge))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories
		 WHERE scope = ? AND score < ?
		   AND created_at < ? AND COALESCE(reinforced_at, created_at) < ?`,
		scope, floor, cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ForgetMemory hard-deletes a record. Links to and from it cascade away.
func (s *SQLiteStore) ForgetMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanRecord(row scanner) (model.MemoryRecord, error) {
	var rec model.MemoryRecord
	var origin, keywords, reinforcedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&rec.ID, &rec.Kind, &rec.Scope, &rec.Content, &rec.Score, &rec.Valence,
		&origin, &keywords, &createdAt, &reinforcedAt, &rec.Reinforcement,
	)
	if err != nil {
		return rec, err
	}

	rec.CreatedAt = parseTime(createdAt)
	if origin.Valid {
		rec.Origin = origin.String
	}
	rec.Keywords = unmarshalList(keywords)
	if reinforcedAt.Valid {
		t := parseTime(reinforcedAt.String)
		rec.ReinforcedAt = &t
	}
	return rec, nil
}
