package model

import "time"

// ArchiveEntry is one recorded session. Entries accept turns while open and
// become immutable and searchable once sealed.
type ArchiveEntry struct {
	ID           string     `json:"id"`
	Participants []string   `json:"participants"`
	OpenedAt     time.Time  `json:"opened_at"`
	SealedAt     *time.Time `json:"sealed_at,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Topic        string     `json:"topic,omitempty"`
	KeyPoints    []string   `json:"key_points,omitempty"`
	TurnCount    int        `json:"turns,omitempty"`
}

// Sealed reports whether the entry has been sealed.
func (e *ArchiveEntry) Sealed() bool { return e.SealedAt != nil }

// Turn is a single utterance within an archive entry.
type Turn struct {
	ID       string    `json:"id"`
	EntryID  string    `json:"entry_id"`
	Seq      int       `json:"seq"`
	Speaker  string    `json:"speaker"`
	Content  string    `json:"content"`
	SpokenAt time.Time `json:"spoken_at"`
}
