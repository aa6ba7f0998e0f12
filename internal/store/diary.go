package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starfall-labs/relay-memory/internal/chunker"
	"github.com/starfall-labs/relay-memory/internal/model"
	"github.com/starfall-labs/relay-memory/internal/salience"
)

const documentCols = `id, scope, version, content, digested, supersedes, created_at`

// PublishDocument appends a new version to a scope's context diary. Versions
// start at 1 and increase by exactly one; publishes for the same scope are
// serialized so concurrent callers cannot mint the same version.
func (s *SQLiteStore) PublishDocument(ctx context.Context, scope, content string) (*model.ContextDocument, error) {
	if scope == "" {
		return nil, fmt.Errorf("empty scope: %w", ErrValidation)
	}
	if content == "" {
		return nil, fmt.Errorf("empty content: %w", ErrValidation)
	}

	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	id := s.newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin publish", err)
	}
	defer tx.Rollback()

	var prevID string
	var prevVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT id, version FROM documents WHERE scope = ?
		 ORDER BY version DESC LIMIT 1`, scope).Scan(&prevID, &prevVersion)

	version := 1
	var supersedes *string
	if err == nil {
		version = prevVersion + 1
		supersedes = &prevID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, scope, version, content, digested, supersedes, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, scope, version, content, supersedes, fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	doc := &model.ContextDocument{
		ID:        id,
		Scope:     scope,
		Version:   version,
		Content:   content,
		CreatedAt: now,
	}
	if supersedes != nil {
		doc.Supersedes = *supersedes
	}
	return doc, nil
}

// CurrentDocument returns the highest published version for a scope.
func (s *SQLiteStore) CurrentDocument(ctx context.Context, scope string) (*model.ContextDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentCols+` FROM documents WHERE scope = ?
		 ORDER BY version DESC LIMIT 1`, scope)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no document for scope %q: %w", scope, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DocumentHistory returns every version for a scope, oldest first. Earlier
// versions stay readable after they are superseded.
func (s *SQLiteStore) DocumentHistory(ctx context.Context, scope string) ([]model.ContextDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentCols+` FROM documents WHERE scope = ?
		 ORDER BY version ASC`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.ContextDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DigestDocument distills the scope's current document into semantic memory
// records, one per content unit, scored by the salience scorer. Digesting a
// version that was already digested is a no-op reporting the earlier outcome;
// publishing a new version makes the scope digestible again.
func (s *SQLiteStore) DigestDocument(ctx context.Context, scope string) (*DigestResult, error) {
	doc, err := s.CurrentDocument(ctx, scope)
	if err != nil {
		return nil, err
	}

	var prior int
	err = s.db.QueryRowContext(ctx,
		`SELECT records FROM document_digests WHERE scope = ? AND version = ?`,
		scope, doc.Version).Scan(&prior)
	if err == nil {
		return &DigestResult{Scope: scope, Version: doc.Version, Records: prior, AlreadyRun: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	units := chunker.Split(doc.Content, chunker.DefaultOptions())
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin digest", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(units))
	for _, u := range units {
		score := salience.Clamp01(s.scorer.Score(u.Text, salience.Meta{Scope: scope, Kind: "semantic"}))
		id := s.newID()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memories (id, kind, scope, content, score, valence, origin, created_at, reinforcement)
			 VALUES (?, 'semantic', ?, ?, ?, 0, ?, ?, 0)`,
			id, scope, u.Text, score, doc.ID, fmtTime(now))
		if err != nil {
			return nil, fmt.Errorf("insert digest record: %w", err)
		}
		ids = append(ids, id)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET digested = 1 WHERE id = ?`, doc.ID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO document_digests (scope, version, records, digested_at)
		 VALUES (?, ?, ?, ?)`,
		scope, doc.Version, len(ids), fmtTime(now)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &DigestResult{
		Scope:     scope,
		Version:   doc.Version,
		RecordIDs: ids,
		Records:   len(ids),
	}, nil
}

func scanDocument(row scanner) (model.ContextDocument, error) {
	var doc model.ContextDocument
	var supersedes sql.NullString
	var digested int
	var createdAt string

	err := row.Scan(&doc.ID, &doc.Scope, &doc.Version, &doc.Content,
		&digested, &supersedes, &createdAt)
	if err != nil {
		return doc, err
	}

	doc.Digested = digested != 0
	if supersedes.Valid {
		doc.Supersedes = supersedes.String
	}
	doc.CreatedAt = parseTime(createdAt)
	return doc, nil
}
