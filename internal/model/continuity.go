package model

import "time"

// Note is one append-only continuity ledger entry for an identity.
type Note struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Seq       int       `json:"seq"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileField is one named profile value with its last-change timestamp.
type ProfileField struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Continuity is the loaded ledger state for one identity: the full profile
// plus a bounded window of the most recent notes, newest first.
type Continuity struct {
	Identity string                  `json:"identity"`
	Profile  map[string]ProfileField `json:"profile"`
	Notes    []Note                  `json:"notes"`
}

// DefaultProfileFields is the stock profile field set. Deployments may
// override it in configuration; writes outside the active set are rejected.
var DefaultProfileFields = []string{
	"personality",
	"core_values",
	"interests",
	"relationship_notes",
	"last_interaction",
}
