package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/starfall-labs/relay-memory/internal/model"
)

// ExportBundle is the on-disk export format: every collection, verbatim.
type ExportBundle struct {
	ExportedAt time.Time               `json:"exported_at"`
	Memories   []model.MemoryRecord    `json:"memories,omitempty"`
	Links      []model.Relation        `json:"links,omitempty"`
	Documents  []model.ContextDocument `json:"documents,omitempty"`
	Digests    []DigestMark            `json:"digests,omitempty"`
	Entries    []EntryExport           `json:"entries,omitempty"`
	Notes      []model.Note            `json:"notes,omitempty"`
	Profiles   []ProfileExport         `json:"profiles,omitempty"`
}

// EntryExport pairs an archive entry with its full transcript.
type EntryExport struct {
	Entry model.ArchiveEntry `json:"entry"`
	Turns []model.Turn       `json:"turns,omitempty"`
}

// DigestMark records that a diary version was digested.
type DigestMark struct {
	Scope      string    `json:"scope"`
	Version    int       `json:"version"`
	Records    int       `json:"records"`
	DigestedAt time.Time `json:"digested_at"`
}

// ProfileExport is one continuity profile field row.
type ProfileExport struct {
	Identity  string    `json:"identity"`
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImportResult counts rows accepted by ImportAll.
type ImportResult struct {
	Memories  int `json:"memories"`
	Links     int `json:"links"`
	Documents int `json:"documents"`
	Entries   int `json:"entries"`
	Turns     int `json:"turns"`
	Notes     int `json:"notes"`
	Profiles  int `json:"profiles"`
}

// ExportAll writes the entire database as indented JSON.
func (s *SQLiteStore) ExportAll(ctx context.Context, w io.Writer) error {
	bundle := ExportBundle{ExportedAt: time.Now().UTC()}

	records, err := s.QueryMemories(ctx, QueryParams{Limit: 1 << 30})
	if err != nil {
		return err
	}
	bundle.Memories = records

	linkRows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, rel, strength, created_at FROM memory_links ORDER BY created_at`)
	if err != nil {
		return err
	}
	for linkRows.Next() {
		var l model.Relation
		var createdAt string
		if err := linkRows.Scan(&l.FromID, &l.ToID, &l.Rel, &l.Strength, &createdAt); err != nil {
			linkRows.Close()
			return err
		}
		l.CreatedAt = parseTime(createdAt)
		bundle.Links = append(bundle.Links, l)
	}
	linkRows.Close()

	docRows, err := s.db.QueryContext(ctx,
		`SELECT `+documentCols+` FROM documents ORDER BY scope, version`)
	if err != nil {
		return err
	}
	for docRows.Next() {
		doc, err := scanDocument(docRows)
		if err != nil {
			docRows.Close()
			return err
		}
		bundle.Documents = append(bundle.Documents, doc)
	}
	docRows.Close()

	digestRows, err := s.db.QueryContext(ctx,
		`SELECT scope, version, records, digested_at FROM document_digests ORDER BY scope, version`)
	if err != nil {
		return err
	}
	for digestRows.Next() {
		var d DigestMark
		var at string
		if err := digestRows.Scan(&d.Scope, &d.Version, &d.Records, &at); err != nil {
			digestRows.Close()
			return err
		}
		d.DigestedAt = parseTime(at)
		bundle.Digests = append(bundle.Digests, d)
	}
	digestRows.Close()

	entries, err := s.ListEntries(ctx, 1<<30)
	if err != nil {
		return err
	}
	for _, e := range entries {
		turns, err := s.Transcript(ctx, e.ID)
		if err != nil {
			return err
		}
		bundle.Entries = append(bundle.Entries, EntryExport{Entry: e, Turns: turns})
	}

	noteRows, err := s.db.QueryContext(ctx,
		`SELECT id, identity, seq, content, tags, created_at FROM continuity_notes ORDER BY identity, seq`)
	if err != nil {
		return err
	}
	for noteRows.Next() {
		var n model.Note
		var tags sql.NullString
		var createdAt string
		if err := noteRows.Scan(&n.ID, &n.Identity, &n.Seq, &n.Content, &tags, &createdAt); err != nil {
			noteRows.Close()
			return err
		}
		n.Tags = unmarshalList(tags)
		n.CreatedAt = parseTime(createdAt)
		bundle.Notes = append(bundle.Notes, n)
	}
	noteRows.Close()

	profRows, err := s.db.QueryContext(ctx,
		`SELECT identity, field, value, updated_at FROM continuity_profiles ORDER BY identity, field`)
	if err != nil {
		return err
	}
	for profRows.Next() {
		var p ProfileExport
		var at string
		if err := profRows.Scan(&p.Identity, &p.Field, &p.Value, &at); err != nil {
			profRows.Close()
			return err
		}
		p.UpdatedAt = parseTime(at)
		bundle.Profiles = append(bundle.Profiles, p)
	}
	profRows.Close()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(bundle)
}

// ImportAll loads an export bundle, preserving ids, versions, and timestamps.
// Rows that collide with existing ids are skipped. Sealed entries are
// re-indexed for search.
func (s *SQLiteStore) ImportAll(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var bundle ExportBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin import", err)
	}
	defer tx.Rollback()

	res := &ImportResult{}

	for _, m := range bundle.Memories {
		var reinforcedAt *string
		if m.ReinforcedAt != nil {
			v := fmtTime(*m.ReinforcedAt)
			reinforcedAt = &v
		}
		var origin *string
		if m.Origin != "" {
			origin = &m.Origin
		}
		r, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memories (id, kind, scope, content, score, valence, origin, keywords, created_at, reinforced_at, reinforcement)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Kind, m.Scope, m.Content, m.Score, m.Valence, origin,
			marshalList(m.Keywords), fmtTime(m.CreatedAt), reinforcedAt, m.Reinforcement)
		if err != nil {
			return nil, err
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Memories++
		}
	}

	for _, l := range bundle.Links {
		r, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_links (from_id, to_id, rel, strength, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			l.FromID, l.ToID, l.Rel, l.Strength, fmtTime(l.CreatedAt))
		if err != nil {
			return nil, err
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Links++
		}
	}

	for _, d := range bundle.Documents {
		var supersedes *string
		if d.Supersedes != "" {
			supersedes = &d.Supersedes
		}
		digested := 0
		if d.Digested {
			digested = 1
		}
		r, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO documents (id, scope, version, content, digested, supersedes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Scope, d.Version, d.Content, digested, supersedes, fmtTime(d.CreatedAt))
		if err != nil {
			return nil, err
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Documents++
		}
	}

	for _, d := range bundle.Digests {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO document_digests (scope, version, records, digested_at)
			 VALUES (?, ?, ?, ?)`,
			d.Scope, d.Version, d.Records, fmtTime(d.DigestedAt)); err != nil {
			return nil, err
		}
	}

	for _, ee := range bundle.Entries {
		e := ee.Entry
		if len(e.Participants) == 0 {
			return nil, fmt.Errorf("entry %s has no participants: %w", e.ID, ErrValidation)
		}
		var sealedAt *string
		if e.SealedAt != nil {
			v := fmtTime(*e.SealedAt)
			sealedAt = &v
		}
		r, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO archive_entries (id, participants, opened_at, sealed_at, summary, topic, key_points)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, *marshalList(e.Participants), fmtTime(e.OpenedAt), sealedAt,
			e.Summary, e.Topic, marshalList(e.KeyPoints))
		if err != nil {
			return nil, err
		}
		inserted, _ := r.RowsAffected()
		if inserted == 0 {
			continue
		}
		res.Entries++

		for _, t := range ee.Turns {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO archive_turns (id, entry_id, seq, speaker, content, spoken_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				t.ID, t.EntryID, t.Seq, t.Speaker, t.Content, fmtTime(t.SpokenAt)); err != nil {
				return nil, err
			}
			res.Turns++
		}
		if e.SealedAt != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO archive_fts (content, entry_id, seq, speaker)
				 SELECT content, entry_id, seq, speaker FROM archive_turns
				 WHERE entry_id = ? ORDER BY seq`, e.ID); err != nil {
				return nil, err
			}
		}
	}

	for _, n := range bundle.Notes {
		r, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO continuity_notes (id, identity, seq, content, tags, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			n.ID, n.Identity, n.Seq, n.Content, marshalList(n.Tags), fmtTime(n.CreatedAt))
		if err != nil {
			return nil, err
		}
		if cnt, _ := r.RowsAffected(); cnt > 0 {
			res.Notes++
		}
	}

	for _, p := range bundle.Profiles {
		r, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO continuity_profiles (identity, field, value, updated_at)
			 VALUES (?, ?, ?, ?)`,
			p.Identity, p.Field, p.Value, fmtTime(p.UpdatedAt))
		if err != nil {
			return nil, err
		}
		if cnt, _ := r.RowsAffected(); cnt > 0 {
			res.Profiles++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// Reset removes everything from every collection.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tables := []string{
		"memory_links", "memories", "document_digests", "documents",
		"archive_fts", "archive_turns", "archive_entries",
		"continuity_notes", "continuity_profiles",
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin reset", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("reset %s: %w", t, err)
		}
	}
	return tx.Commit()
}
