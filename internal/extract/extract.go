// Package extract distills sealed session transcripts into long-lived state:
// one episodic record per turn, relational records for participants who
// engaged each other, and continuity updates for identities that took part.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starfall-labs/relay-memory/internal/model"
	"github.com/starfall-labs/relay-memory/internal/salience"
	"github.com/starfall-labs/relay-memory/internal/store"
)

// maxRecordContent caps how much of one turn a single record carries.
const maxRecordContent = 2000

// Store is the persistence surface extraction works through.
type Store interface {
	GetEntry(ctx context.Context, id string) (*model.ArchiveEntry, error)
	Transcript(ctx context.Context, entryID string) ([]model.Turn, error)
	QueryMemories(ctx context.Context, p store.QueryParams) ([]model.MemoryRecord, error)
	PutMemory(ctx context.Context, p store.PutMemoryParams) (*model.MemoryRecord, error)
	Link(ctx context.Context, fromID, toID, rel string, strength float64) error
	AppendNote(ctx context.Context, identity, content string, tags []string) (*model.Note, error)
	UpdateProfile(ctx context.Context, identity, field, value string) error
}

// Scorer scores turns and names the keywords that drove the score.
type Scorer interface {
	Score(text string, meta salience.Meta) float64
	Matched(text string) []string
}

// Params names the entry to extract and maps participant names to their
// continuity identities, where they have one.
type Params struct {
	EntryID    string
	Identities map[string]string
}

// Report summarizes one extraction run.
type Report struct {
	EntryID string         `json:"entry_id"`
	Records int            `json:"records"`
	ByKind  map[string]int `json:"by_kind,omitempty"`
	Notes   int            `json:"notes"`
	Skipped bool           `json:"skipped,omitempty"`
}

// Extractor runs the post-session pipeline.
type Extractor struct {
	store  Store
	scorer Scorer
}

// New builds an Extractor.
func New(st Store, sc Scorer) *Extractor {
	if sc == nil {
		sc = salience.Default()
	}
	return &Extractor{store: st, scorer: sc}
}

// ExtractSession distills a sealed entry. Running it again for the same
// entry is a no-op: existing records with the entry as origin mark it done.
func (x *Extractor) ExtractSession(ctx context.Context, p Params) (*Report, error) {
	entry, err := x.store.GetEntry(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}
	if !entry.Sealed() {
		return nil, fmt.Errorf("entry %s not sealed: %w", p.EntryID, store.ErrValidation)
	}

	existing, err := x.store.QueryMemories(ctx, store.QueryParams{Origin: p.EntryID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &Report{EntryID: p.EntryID, Skipped: true}, nil
	}

	turns, err := x.store.Transcript(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}

	report := &Report{EntryID: p.EntryID, ByKind: make(map[string]int)}

	// One episodic record per turn, owned by the speaker's scope. The first
	// record per speaker anchors relational links below.
	anchor := make(map[string]string)
	for _, t := range turns {
		content := truncate(t.Content, maxRecordContent)
		rec, err := x.store.PutMemory(ctx, store.PutMemoryParams{
			Kind:     "episodic",
			Scope:    t.Speaker,
			Content:  content,
			Score:    x.scorer.Score(content, salience.Meta{Scope: t.Speaker, Kind: "episodic", Speaker: t.Speaker}),
			Valence:  salience.Valence(content),
			Origin:   p.EntryID,
			Keywords: x.scorer.Matched(content),
		})
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", t.Seq, err)
		}
		report.Records++
		report.ByKind["episodic"]++
		if anchor[t.Speaker] == "" {
			anchor[t.Speaker] = rec.ID
		}
	}

	// Relational records for pairs that addressed each other by name.
	for i, a := range entry.Participants {
		for _, b := range entry.Participants[i+1:] {
			mentions := countMentions(turns, a, b) + countMentions(turns, b, a)
			if mentions == 0 {
				continue
			}
			rec, err := x.store.PutMemory(ctx, store.PutMemoryParams{
				Kind:    "relational",
				Scope:   model.ScopeShared,
				Content: fmt.Sprintf("%s and %s addressed each other in %d turns", a, b, mentions),
				Score:   salience.Clamp01(0.5 + 0.05*float64(mentions)),
				Origin:  p.EntryID,
			})
			if err != nil {
				return nil, err
			}
			report.Records++
			report.ByKind["relational"]++

			strength := salience.Clamp01(0.3 + 0.1*float64(mentions))
			for _, name := range []string{a, b} {
				if id := anchor[name]; id != "" {
					if err := x.store.Link(ctx, rec.ID, id, "relates_to", strength); err != nil {
						log.Warn().Err(err).Str("entry", p.EntryID).Msg("extract: link failed")
					}
				}
			}
		}
	}

	// Continuity: identities that took part get a session note and a fresh
	// last_interaction stamp.
	sealedAt := entry.OpenedAt
	if entry.SealedAt != nil {
		sealedAt = *entry.SealedAt
	}
	for _, name := range entry.Participants {
		identity := p.Identities[name]
		if identity == "" {
			continue
		}
		others := otherNames(entry.Participants, name)
		note := fmt.Sprintf("Session %s with %s: %d turns archived",
			p.EntryID, strings.Join(others, ", "), len(turns))
		if _, err := x.store.AppendNote(ctx, identity, note, []string{"session"}); err != nil {
			return nil, err
		}
		report.Notes++

		err := x.store.UpdateProfile(ctx, identity, "last_interaction", sealedAt.Format(time.RFC3339))
		if err != nil && !errors.Is(err, store.ErrUnknownField) {
			return nil, err
		}
	}

	return report, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// countMentions counts speaker's turns that name the other participant.
func countMentions(turns []model.Turn, speaker, other string) int {
	needle := strings.ToLower(other)
	count := 0
	for _, t := range turns {
		if t.Speaker != speaker {
			continue
		}
		if strings.Contains(strings.ToLower(t.Content), needle) {
			count++
		}
	}
	return count
}

func otherNames(participants []string, self string) []string {
	var others []string
	for _, p := range participants {
		if p != self {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		others = []string{"no one"}
	}
	return others
}
