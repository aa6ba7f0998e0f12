package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starfall-labs/relay-memory/internal/model"
)

// AppendNote adds a continuity note for an identity. Notes are append-only:
// nothing in the engine updates or removes them, so concurrent appenders can
// never clobber each other.
func (s *SQLiteStore) AppendNote(ctx context.Context, identity, content string, tags []string) (*model.Note, error) {
	if identity == "" {
		return nil, fmt.Errorf("empty identity: %w", ErrValidation)
	}
	if content == "" {
		return nil, fmt.Errorf("empty content: %w", ErrValidation)
	}

	now := time.Now().UTC()
	id := s.newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin note", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM continuity_notes WHERE identity = ?`,
		identity).Scan(&seq); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO continuity_notes (id, identity, seq, content, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, identity, seq, content, marshalList(tags), fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Note{
		ID: id, Identity: identity, Seq: seq,
		Content: content, Tags: tags, CreatedAt: now,
	}, nil
}

// UpdateProfile sets one profile field for an identity. Fields outside the
// configured set are rejected with ErrUnknownField; each write stamps the
// field's updated_at for audit.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, identity, field, value string) error {
	if identity == "" {
		return fmt.Errorf("empty identity: %w", ErrValidation)
	}
	if !s.fields[field] {
		return fmt.Errorf("field %q: %w", field, ErrUnknownField)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO continuity_profiles (identity, field, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (identity, field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		identity, field, value, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// LoadContinuity returns an identity's profile and its most recent notes,
// newest first, bounded by maxNotes. An identity with no history loads as an
// empty continuity, not an error.
func (s *SQLiteStore) LoadContinuity(ctx context.Context, identity string, maxNotes int) (*model.Continuity, error) {
	if identity == "" {
		return nil, fmt.Errorf("empty identity: %w", ErrValidation)
	}
	if maxNotes <= 0 {
		maxNotes = 20
	}

	c := &model.Continuity{
		Identity: identity,
		Profile:  make(map[string]model.ProfileField),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value, updated_at FROM continuity_profiles WHERE identity = ?`,
		identity)
	if err != nil {
		return nil, unavailable("load profile", err)
	}
	for rows.Next() {
		var field, value, updatedAt string
		if err := rows.Scan(&field, &value, &updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		c.Profile[field] = model.ProfileField{Value: value, UpdatedAt: parseTime(updatedAt)}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	noteRows, err := s.db.QueryContext(ctx,
		`SELECT id, identity, seq, content, tags, created_at
		 FROM continuity_notes WHERE identity = ?
		 ORDER BY seq DESC LIMIT ?`, identity, maxNotes)
	if err != nil {
		return nil, unavailable("load notes", err)
	}
	defer noteRows.Close()

	for noteRows.Next() {
		var n model.Note
		var tags sql.NullString
		var createdAt string
		if err := noteRows.Scan(&n.ID, &n.Identity, &n.Seq, &n.Content, &tags, &createdAt); err != nil {
			return nil, err
		}
		n.Tags = unmarshalList(tags)
		n.CreatedAt = parseTime(createdAt)
		c.Notes = append(c.Notes, n)
	}
	return c, noteRows.Err()
}
