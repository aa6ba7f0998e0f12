// Package model defines the core data types shared across the engine.
package model

import "time"

// ScopeShared is the scope visible to every session participant.
const ScopeShared = "shared"

// MemoryRecord is a scored, evictable unit of long-lived memory.
type MemoryRecord struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Scope         string     `json:"scope"`
	Content       string     `json:"content"`
	Score         float64    `json:"score"`
	Valence       float64    `json:"valence"`
	Origin        string     `json:"origin,omitempty"`
	Keywords      []string   `json:"keywords,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ReinforcedAt  *time.Time `json:"reinforced_at,omitempty"`
	Reinforcement int        `json:"reinforcement"`
}

// Relation links two memory records.
type Relation struct {
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Rel       string    `json:"rel"`
	Strength  float64   `json:"strength"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidKinds are the allowed memory kinds.
var ValidKinds = map[string]bool{
	"episodic":   true,
	"semantic":   true,
	"relational": true,
}

// ValidRels are the allowed relation types.
var ValidRels = map[string]bool{
	"relates_to":  true,
	"contradicts": true,
	"depends_on":  true,
	"refines":     true,
}
