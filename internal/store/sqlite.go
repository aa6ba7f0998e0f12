package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/starfall-labs/relay-memory/internal/model"
	"github.com/starfall-labs/relay-memory/internal/salience"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	scorer  salience.Scorer
	fields  map[string]bool // allowed continuity profile fields
	entropy *rand.Rand

	mu        sync.Mutex // guards entropy and publish lock map
	publishMu map[string]*sync.Mutex
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithScorer overrides the salience scorer used when digesting diary
// documents.
func WithScorer(sc salience.Scorer) Option {
	return func(s *SQLiteStore) { s.scorer = sc }
}

// WithProfileFields overrides the allowed continuity profile field set.
func WithProfileFields(fields []string) Option {
	return func(s *SQLiteStore) {
		s.fields = make(map[string]bool, len(fields))
		for _, f := range fields {
			s.fields[f] = true
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		path:      dbPath,
		scorer:    salience.Default(),
		entropy:   rand.New(rand.NewSource(time.Now().UnixNano())),
		publishMu: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fields == nil {
		WithProfileFields(model.DefaultProfileFields)(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// newEntryID mints an archive entry id.
func newEntryID() string {
	return "conv_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// scopeLock returns the mutex serializing diary publishes for a scope.
func (s *SQLiteStore) scopeLock(scope string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.publishMu[scope]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.publishMu[scope] = m
	return m
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id             TEXT PRIMARY KEY,
		kind           TEXT NOT NULL,
		scope          TEXT NOT NULL,
		content        TEXT NOT NULL,
		score          REAL NOT NULL,
		valence        REAL NOT NULL DEFAULT 0,
		origin         TEXT,
		keywords       TEXT,
		created_at     TEXT NOT NULL,
		reinforced_at  TEXT,
		reinforcement  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_memories_scope_score ON memories(scope, score DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_scope_kind ON memories(scope, kind);
	CREATE INDEX IF NOT EXISTS idx_memories_origin ON memories(origin);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);

	CREATE TABLE IF NOT EXISTS memory_links (
		from_id    TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		to_id      TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		rel        TEXT NOT NULL,
		strength   REAL NOT NULL DEFAULT 0.5,
		created_at TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, rel)
	);
	CREATE INDEX IF NOT EXISTS idx_links_to ON memory_links(to_id);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		scope      TEXT NOT NULL,
		version    INTEGER NOT NULL,
		content    TEXT NOT NULL,
		digested   INTEGER NOT NULL DEFAULT 0,
		supersedes TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (scope, version)
	);

	CREATE TABLE IF NOT EXISTS document_digests (
		scope       TEXT NOT NULL,
		version     INTEGER NOT NULL,
		records     INTEGER NOT NULL,
		digested_at TEXT NOT NULL,
		PRIMARY KEY (scope, version)
	);

	CREATE TABLE IF NOT EXISTS archive_entries (
		id           TEXT PRIMARY KEY,
		participants TEXT NOT NULL,
		opened_at    TEXT NOT NULL,
		sealed_at    TEXT,
		summary      TEXT,
		topic        TEXT,
		key_points   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entries_sealed ON archive_entries(sealed_at DESC);

	CREATE TABLE IF NOT EXISTS archive_turns (
		id        TEXT PRIMARY KEY,
		entry_id  TEXT NOT NULL REFERENCES archive_entries(id) ON DELETE CASCADE,
		seq       INTEGER NOT NULL,
		speaker   TEXT NOT NULL,
		content   TEXT NOT NULL,
		spoken_at TEXT NOT NULL,
		UNIQUE (entry_id, seq)
	);

	CREATE TABLE IF NOT EXISTS continuity_notes (
		id         TEXT PRIMARY KEY,
		identity   TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		content    TEXT NOT NULL,
		tags       TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (identity, seq)
	);

	CREATE TABLE IF NOT EXISTS continuity_profiles (
		identity   TEXT NOT NULL,
		field      TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (identity, field)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Turns are indexed at seal time, so the FTS table is standalone rather
	// than trigger-synced: an open entry has no rows here by construction.
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS archive_fts USING fts5(
		content,
		entry_id UNINDEXED,
		seq UNINDEXED,
		speaker UNINDEXED
	)`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// marshalList encodes a string slice as JSON, or nil for an empty slice.
func marshalList(items []string) *string {
	if len(items) == 0 {
		return nil
	}
	b, _ := json.Marshal(items)
	str := string(b)
	return &str
}

func unmarshalList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var items []string
	json.Unmarshal([]byte(s.String), &items)
	return items
}

// timeLayout pads the fraction to nine digits so stored timestamps sort
// lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
