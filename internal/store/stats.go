package store

import (
	"context"
	"os"
)

// Snapshot holds engine-wide statistics.
type Snapshot struct {
	DBPath         string         `json:"db_path"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
	Memories       int            `json:"memories"`
	MemoriesByKind map[string]int `json:"memories_by_kind"`
	AvgScore       float64        `json:"avg_score"`
	Links          int            `json:"links"`
	Documents      int            `json:"documents"`
	DiaryScopes    int            `json:"diary_scopes"`
	OpenEntries    int            `json:"open_entries"`
	SealedEntries  int            `json:"sealed_entries"`
	Turns          int            `json:"turns"`
	Notes          int            `json:"notes"`
	Identities     int            `json:"identities"`
	Scopes         []ScopeStats   `json:"scopes"`
}

// ScopeStats holds per-scope memory counts.
type ScopeStats struct {
	Scope    string  `json:"scope"`
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
}

// Stats returns counts and score aggregates across all four collections.
func (s *SQLiteStore) Stats(ctx context.Context) (*Snapshot, error) {
	st := &Snapshot{
		DBPath:         s.path,
		MemoriesByKind: make(map[string]int),
	}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.Memories)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(AVG(score), 0) FROM memories`).Scan(&st.AvgScore)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_links`).Scan(&st.Links)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.Documents)
	s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT scope) FROM documents`).Scan(&st.DiaryScopes)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_entries WHERE sealed_at IS NULL`).Scan(&st.OpenEntries)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_entries WHERE sealed_at IS NOT NULL`).Scan(&st.SealedEntries)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_turns`).Scan(&st.Turns)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM continuity_notes`).Scan(&st.Notes)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (
		SELECT identity FROM continuity_notes UNION SELECT identity FROM continuity_profiles)`).Scan(&st.Identities)

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM memories GROUP BY kind`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var kind string
		var n int
		rows.Scan(&kind, &n)
		st.MemoriesByKind[kind] = n
	}
	rows.Close()

	scopeRows, err := s.db.QueryContext(ctx, `
		SELECT scope, COUNT(*) AS cnt, AVG(score)
		FROM memories GROUP BY scope ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer scopeRows.Close()

	for scopeRows.Next() {
		var sc ScopeStats
		scopeRows.Scan(&sc.Scope, &sc.Count, &sc.AvgScore)
		st.Scopes = append(st.Scopes, sc)
	}

	return st, nil
}
