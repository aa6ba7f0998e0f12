// Package policy loads and validates relay session files. A session file
// names the participants, how they are backed, and how the exchange runs.
package policy

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Session is a parsed session file.
type Session struct {
	Name         string           `yaml:"name" json:"name"`
	Kickoff      string           `yaml:"kickoff,omitempty" json:"kickoff,omitempty"`
	MaxExchanges int              `yaml:"max_exchanges,omitempty" json:"max_exchanges,omitempty"`
	MaxTokens    int              `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Pace         string           `yaml:"pace,omitempty" json:"pace,omitempty"`
	Participants []Participant    `yaml:"participants" json:"participants"`
	Hydration    *HydrationConfig `yaml:"hydration,omitempty" json:"hydration,omitempty"`

	// Computed at load time, not serialized.
	PaceEvery time.Duration `yaml:"-" json:"-"`
}

// Participant is one agent in the session.
type Participant struct {
	Name      string `yaml:"name" json:"name"`
	Provider  string `yaml:"provider" json:"provider"`
	Model     string `yaml:"model" json:"model"`
	Persona   string `yaml:"persona,omitempty" json:"persona,omitempty"`
	Identity  string `yaml:"identity,omitempty" json:"identity,omitempty"`
	Scope     string `yaml:"scope,omitempty" json:"scope,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
}

// HydrationConfig overrides context assembly settings for this session.
type HydrationConfig struct {
	Budget   int `yaml:"budget,omitempty" json:"budget,omitempty"`
	TopN     int `yaml:"top_n,omitempty" json:"top_n,omitempty"`
	MaxNotes int `yaml:"max_notes,omitempty" json:"max_notes,omitempty"`
	Excerpts int `yaml:"excerpts,omitempty" json:"excerpts,omitempty"`
}

// Load reads, validates, and parses a session file.
func Load(path string) (*Session, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session file %s: %w", path, err)
	}
	return Parse(content)
}

// Parse validates session YAML bytes against the schema and decodes them.
func Parse(content []byte) (*Session, error) {
	if err := ValidateSchema(content); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	var sess Session
	if err := yaml.Unmarshal(content, &sess); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := applyDefaults(&sess); err != nil {
		return nil, err
	}
	if err := validate(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// applyDefaults fills in optional fields. Scope defaults to the lowercased
// participant name so each agent owns a scope without declaring one. Pace and
// max_tokens are left zero when unset; the caller decides the fallback.
func applyDefaults(s *Session) error {
	if s.MaxExchanges == 0 {
		s.MaxExchanges = 10
	}
	if s.Pace != "" {
		pace, err := time.ParseDuration(s.Pace)
		if err != nil {
			return fmt.Errorf("pace %q: %w", s.Pace, err)
		}
		s.PaceEvery = pace
	}

	for i := range s.Participants {
		p := &s.Participants[i]
		if p.Scope == "" {
			p.Scope = strings.ToLower(p.Name)
		}
	}
	return nil
}

// validate applies rules the schema cannot express.
func validate(s *Session) error {
	if s.PaceEvery < 0 {
		return fmt.Errorf("pace %q: must not be negative", s.Pace)
	}

	seenName := make(map[string]bool)
	seenScope := make(map[string]bool)
	for _, p := range s.Participants {
		lower := strings.ToLower(p.Name)
		if seenName[lower] {
			return fmt.Errorf("duplicate participant name %q", p.Name)
		}
		seenName[lower] = true

		if seenScope[p.Scope] {
			return fmt.Errorf("participants %q share scope %q", p.Name, p.Scope)
		}
		seenScope[p.Scope] = true

		if p.Scope == "shared" {
			return fmt.Errorf("participant %q: scope %q is reserved", p.Name, p.Scope)
		}
	}
	return nil
}
