package model

import "time"

// ContextDocument is one version of a scope's context diary. Versions are
// immutable once published; the newest version is the scope's current document.
type ContextDocument struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	Version    int       `json:"version"`
	Content    string    `json:"content"`
	Digested   bool      `json:"digested"`
	Supersedes string    `json:"supersedes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
