// Package store provides the persistence layer for the memory engine: scored
// memory records, the versioned context diary, the sealed transcript archive,
// and the continuity ledger, all backed by a single SQLite database.
package store

import (
	"context"
	"io"
	"time"

	"github.com/starfall-labs/relay-memory/internal/model"
)

// PutMemoryParams holds parameters for storing a memory record.
type PutMemoryParams struct {
	Kind     string
	Scope    string
	Content  string
	Score    float64
	Valence  float64
	Origin   string
	Keywords []string
}

// QueryParams holds filters for querying memory records. Queries never mutate
// the records they return.
type QueryParams struct {
	Scopes   []string // empty means all scopes
	Kind     string
	Text     string // substring filter over content
	Origin   string // records distilled from this entry or document
	MinScore float64
	Limit    int
}

// SearchParams holds parameters for searching sealed archive entries.
type SearchParams struct {
	Query string
	Limit int
}

// ArchiveMatch is one search hit: an excerpt from a sealed entry, never the
// whole transcript.
type ArchiveMatch struct {
	EntryID  string    `json:"entry_id"`
	Seq      int       `json:"seq"`
	Speaker  string    `json:"speaker"`
	Excerpt  string    `json:"excerpt"`
	SealedAt time.Time `json:"sealed_at"`
}

// DigestResult reports the outcome of digesting a diary version.
type DigestResult struct {
	Scope      string   `json:"scope"`
	Version    int      `json:"version"`
	RecordIDs  []string `json:"record_ids,omitempty"`
	Records    int      `json:"records"`
	AlreadyRun bool     `json:"already_run"`
}

// Memories is the scored-record portion of the store.
type Memories interface {
	PutMemory(ctx context.Context, p PutMemoryParams) (*model.MemoryRecord, error)
	GetMemory(ctx context.Context, id string) (*model.MemoryRecord, error)
	Reinforce(ctx context.Context, id string, delta float64) (*model.MemoryRecord, error)
	QueryMemories(ctx context.Context, p QueryParams) ([]model.MemoryRecord, error)
	EvictOverCapacity(ctx context.Context, scope string, capacity int) ([]string, error)
	SweepBelowFloor(ctx context.Context, scope string, floor float64, minAge time.Duration) (int, error)
	ForgetMemory(ctx context.Context, id string) error
	Link(ctx context.Context, fromID, toID, rel string, strength float64) error
	Unlink(ctx context.Context, fromID, toID, rel string) error
	LinksFor(ctx context.Context, id string) ([]model.Relation, error)
}

// Diary is the versioned context-document portion of the store.
type Diary interface {
	PublishDocument(ctx context.Context, scope, content string) (*model.ContextDocument, error)
	CurrentDocument(ctx context.Context, scope string) (*model.ContextDocument, error)
	DocumentHistory(ctx context.Context, scope string) ([]model.ContextDocument, error)
	DigestDocument(ctx context.Context, scope string) (*DigestResult, error)
}

// Archive is the transcript portion of the store.
type Archive interface {
	OpenEntry(ctx context.Context, participants []string) (*model.ArchiveEntry, error)
	GetEntry(ctx context.Context, id string) (*model.ArchiveEntry, error)
	ListEntries(ctx context.Context, limit int) ([]model.ArchiveEntry, error)
	AppendTurn(ctx context.Context, entryID, speaker, content string) (*model.Turn, error)
	SealEntry(ctx context.Context, entryID string) (*model.ArchiveEntry, error)
	SearchArchive(ctx context.Context, p SearchParams) ([]ArchiveMatch, error)
	Transcript(ctx context.Context, entryID string) ([]model.Turn, error)
	AnnotateEntry(ctx context.Context, entryID, summary, topic string, keyPoints []string) error
	PurgeEntry(ctx context.Context, entryID string) error
}

// Ledger is the continuity portion of the store.
type Ledger interface {
	AppendNote(ctx context.Context, identity, content string, tags []string) (*model.Note, error)
	UpdateProfile(ctx context.Context, identity, field, value string) error
	LoadContinuity(ctx context.Context, identity string, maxNotes int) (*model.Continuity, error)
}

// Store is the full persistence interface implemented by SQLiteStore.
type Store interface {
	Memories
	Diary
	Archive
	Ledger

	Stats(ctx context.Context) (*Snapshot, error)
	ExportAll(ctx context.Context, w io.Writer) error
	ImportAll(ctx context.Context, r io.Reader) (*ImportResult, error)
	Reset(ctx context.Context) error
	Close() error
}
