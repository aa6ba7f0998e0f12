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

const entryCols = `id, participants, opened_at, sealed_at, summary, topic, key_points`

// OpenEntry creates an open archive entry for a session between the given
// participants.
func (s *SQLiteStore) OpenEntry(ctx context.Context, participants []string) (*model.ArchiveEntry, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("no participants: %w", ErrValidation)
	}
	for _, p := range participants {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("blank participant: %w", ErrValidation)
		}
	}

	now := time.Now().UTC()
	id := newEntryID()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archive_entries (id, participants, opened_at) VALUES (?, ?, ?)`,
		id, *marshalList(participants), fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}

	return &model.ArchiveEntry{ID: id, Participants: participants, OpenedAt: now}, nil
}

// GetEntry fetches an entry with its turn count.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*model.ArchiveEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryCols+`,
		        (SELECT COUNT(*) FROM archive_turns WHERE entry_id = archive_entries.id)
		 FROM archive_entries WHERE id = ?`, id)

	var e model.ArchiveEntry
	var participants string
	var sealedAt, summary, topic, keyPoints sql.NullString
	var openedAt string
	err := row.Scan(&e.ID, &participants, &openedAt, &sealedAt,
		&summary, &topic, &keyPoints, &e.TurnCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	e.Participants = unmarshalList(sql.NullString{String: participants, Valid: true})
	e.OpenedAt = parseTime(openedAt)
	if sealedAt.Valid {
		t := parseTime(sealedAt.String)
		e.SealedAt = &t
	}
	if summary.Valid {
		e.Summary = summary.String
	}
	if topic.Valid {
		e.Topic = topic.String
	}
	e.KeyPoints = unmarshalList(keyPoints)
	return &e, nil
}

// ListEntries returns entries newest first.
func (s *SQLiteStore) ListEntries(ctx context.Context, limit int) ([]model.ArchiveEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM archive_entries ORDER BY opened_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries := make([]model.ArchiveEntry, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// AppendTurn appends an utterance to an open entry. Sequence numbers are
// 1-based and gapless. Appending to a sealed entry fails with ErrSealed.
func (s *SQLiteStore) AppendTurn(ctx context.Context, entryID, speaker, content string) (*model.Turn, error) {
	if speaker == "" {
		return nil, fmt.Errorf("empty speaker: %w", ErrValidation)
	}
	if content == "" {
		return nil, fmt.Errorf("empty content: %w", ErrValidation)
	}

	now := time.Now().UTC()
	id := s.newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin append", err)
	}
	defer tx.Rollback()

	var sealedAt sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT sealed_at FROM archive_entries WHERE id = ?`, entryID).Scan(&sealedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if sealedAt.Valid {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrSealed)
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM archive_turns WHERE entry_id = ?`,
		entryID).Scan(&seq); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO archive_turns (id, entry_id, seq, speaker, content, spoken_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, entryID, seq, speaker, content, fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Turn{
		ID: id, EntryID: entryID, Seq: seq,
		Speaker: speaker, Content: content, SpokenAt: now,
	}, nil
}

// SealEntry marks an entry immutable and indexes its turns for search, both
// in one transaction. Open entries are invisible to search because nothing
// reaches the index before this point.
func (s *SQLiteStore) SealEntry(ctx context.Context, entryID string) (*model.ArchiveEntry, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin seal", err)
	}
	defer tx.Rollback()

	var sealedAt sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT sealed_at FROM archive_entries WHERE id = ?`, entryID).Scan(&sealedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if sealedAt.Valid {
		return nil, fmt.Errorf("entry %s already sealed: %w", entryID, ErrSealed)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE archive_entries SET sealed_at = ? WHERE id = ?`,
		fmtTime(now), entryID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO archive_fts (content, entry_id, seq, speaker)
		 SELECT content, entry_id, seq, speaker FROM archive_turns
		 WHERE entry_id = ? ORDER BY seq`, entryID); err != nil {
		return nil, fmt.Errorf("index entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetEntry(ctx, entryID)
}

// SearchArchive searches sealed transcripts and returns short excerpts with
// their entry references. Exact-phrase matches rank above plain term matches;
// within each band results follow term-frequency rank, ties going to the most
// recently sealed entry.
func (s *SQLiteStore) SearchArchive(ctx context.Context, p SearchParams) ([]ArchiveMatch, error) {
	terms := strings.Fields(p.Query)
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty query: %w", ErrValidation)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = ftsQuote(t)
	}

	seen := make(map[string]bool)
	var out []ArchiveMatch

	if len(terms) > 1 {
		phrase := ftsQuote(strings.Join(terms, " "))
		matches, err := s.searchFTS(ctx, phrase, limit)
		if err != nil {
			return nil, err
		}
		out = appendMatches(out, matches, seen, limit)
	}
	if len(out) < limit {
		matches, err := s.searchFTS(ctx, strings.Join(quoted, " "), limit)
		if err != nil {
			return nil, err
		}
		out = appendMatches(out, matches, seen, limit)
	}
	return out, nil
}

func (s *SQLiteStore) searchFTS(ctx context.Context, match string, limit int) ([]ArchiveMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.entry_id, f.seq, f.speaker,
		        snippet(archive_fts, 0, '', '', '…', 16),
		        e.sealed_at
		 FROM archive_fts f
		 JOIN archive_entries e ON e.id = f.entry_id
		 WHERE f.archive_fts MATCH ?
		 ORDER BY f.rank, e.sealed_at DESC
		 LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("archive search: %w", err)
	}
	defer rows.Close()

	var matches []ArchiveMatch
	for rows.Next() {
		var m ArchiveMatch
		var sealedAt string
		if err := rows.Scan(&m.EntryID, &m.Seq, &m.Speaker, &m.Excerpt, &sealedAt); err != nil {
			return nil, err
		}
		m.SealedAt = parseTime(sealedAt)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func appendMatches(out, matches []ArchiveMatch, seen map[string]bool, limit int) []ArchiveMatch {
	for _, m := range matches {
		if len(out) >= limit {
			break
		}
		key := fmt.Sprintf("%s#%d", m.EntryID, m.Seq)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

// ftsQuote wraps a token in FTS5 string syntax so user input cannot inject
// query operators.
func ftsQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Transcript returns an entry's turns in order.
func (s *SQLiteStore) Transcript(ctx context.Context, entryID string) ([]model.Turn, error) {
	if _, err := s.GetEntry(ctx, entryID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, seq, speaker, content, spoken_at
		 FROM archive_turns WHERE entry_id = ? ORDER BY seq`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var spokenAt string
		if err := rows.Scan(&t.ID, &t.EntryID, &t.Seq, &t.Speaker, &t.Content, &spokenAt); err != nil {
			return nil, err
		}
		t.SpokenAt = parseTime(spokenAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// RenderTranscript formats turns as a readable text block.
func RenderTranscript(turns []model.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n",
			t.SpokenAt.Format("2006-01-02 15:04:05"), t.Speaker, t.Content)
	}
	return b.String()
}

// AnnotateEntry attaches summary metadata to a sealed entry. The transcript
// itself stays immutable; only the annotation fields change.
func (s *SQLiteStore) AnnotateEntry(ctx context.Context, entryID, summary, topic string, keyPoints []string) error {
	e, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if !e.Sealed() {
		return fmt.Errorf("entry %s still open: %w", entryID, ErrValidation)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE archive_entries SET summary = ?, topic = ?, key_points = ? WHERE id = ?`,
		summary, topic, marshalList(keyPoints), entryID)
	if err != nil {
		return fmt.Errorf("annotate: %w", err)
	}
	return nil
}

// PurgeEntry removes an entry, its turns, and its search index rows.
func (s *SQLiteStore) PurgeEntry(ctx context.Context, entryID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin purge", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM archive_entries WHERE id = ?`, entryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM archive_turns WHERE entry_id = ?`, entryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM archive_fts WHERE entry_id = ?`, entryID); err != nil {
		return err
	}
	return tx.Commit()
}
