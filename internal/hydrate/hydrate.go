// Package hydrate assembles the context bundle an agent carries into a
// session turn: continuity first, then current diary documents, then the
// strongest memory records, then archive excerpts when the turn shows recall
// intent. Sources degrade independently: a failing source becomes an
// omission in the bundle, never a failed hydration.
package hydrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starfall-labs/relay-memory/internal/model"
	"github.com/starfall-labs/relay-memory/internal/store"
)

// Source identifies where a bundle item came from.
type Source string

const (
	SourceContinuity Source = "continuity"
	SourceDiary      Source = "diary"
	SourceMemory     Source = "memory"
	SourceArchive    Source = "archive"
)

// Store is the slice of the persistence layer hydration reads from.
type Store interface {
	CurrentDocument(ctx context.Context, scope string) (*model.ContextDocument, error)
	QueryMemories(ctx context.Context, p store.QueryParams) ([]model.MemoryRecord, error)
	Reinforce(ctx context.Context, id string, delta float64) (*model.MemoryRecord, error)
	LoadContinuity(ctx context.Context, identity string, maxNotes int) (*model.Continuity, error)
	SearchArchive(ctx context.Context, p store.SearchParams) ([]store.ArchiveMatch, error)
}

// Config tunes bundle assembly.
type Config struct {
	Budget   int           // bundle size cap in characters
	TopN     int           // memory records considered per hydration
	Delta    float64       // reinforcement applied to each included record
	MaxNotes int           // continuity notes loaded
	Excerpts int           // archive excerpts considered
	CacheTTL time.Duration // read-cache lifetime; 0 disables the cache
}

// DefaultConfig returns the stock assembly settings.
func DefaultConfig() Config {
	return Config{
		Budget:   6000,
		TopN:     15,
		Delta:    0.02,
		MaxNotes: 10,
		Excerpts: 5,
		CacheTTL: 30 * time.Second,
	}
}

// Request asks for a bundle on behalf of one participant.
type Request struct {
	Scope    string `json:"scope"`               // the participant's own scope
	Identity string `json:"identity,omitempty"`  // continuity identity, if any
	TurnText string `json:"turn_text,omitempty"` // upcoming turn, drives recall
	Budget   int    `json:"budget,omitempty"`    // overrides Config.Budget
	TopN     int    `json:"top_n,omitempty"`     // overrides Config.TopN
}

// Item is one whole unit in the bundle. Units are included or dropped in
// full; they are never split to fit.
type Item struct {
	Source Source `json:"source"`
	Ref    string `json:"ref,omitempty"`
	Text   string `json:"text"`
}

// Section groups a source's items under its bundle header.
type Section struct {
	Source Source `json:"source"`
	Header string `json:"header"`
	Items  []Item `json:"items"`
}

// SourceStatus reports how one source fared. Ok with zero items means the
// source had nothing to offer; Ok=false carries the omission reason. A
// source can be Ok=false and still show items when only part of it failed.
type SourceStatus struct {
	Source  Source `json:"source"`
	Ok      bool   `json:"ok"`
	Items   int    `json:"items"`
	Dropped int    `json:"dropped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Bundle is an assembled hydration result.
type Bundle struct {
	Scope     string         `json:"scope"`
	Identity  string         `json:"identity,omitempty"`
	Sections  []Section      `json:"sections"`
	Statuses  []SourceStatus `json:"statuses"`
	Budget    int            `json:"budget"`
	Used      int            `json:"used"`
	CreatedAt time.Time      `json:"created_at"`
}

// Engine assembles bundles.
type Engine struct {
	store Store
	cfg   Config
	cache *readCache
}

// New builds an Engine over the given store.
func New(st Store, cfg Config) (*Engine, error) {
	def := DefaultConfig()
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.MaxNotes <= 0 {
		cfg.MaxNotes = def.MaxNotes
	}
	if cfg.Excerpts <= 0 {
		cfg.Excerpts = def.Excerpts
	}

	e := &Engine{store: st, cfg: cfg}
	if cfg.CacheTTL > 0 {
		c, err := newReadCache(cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("hydrate cache: %w", err)
		}
		e.cache = c
	}
	return e, nil
}

// Hydrate assembles a bundle for the requesting participant. Every memory
// record included in the result is reinforced by the configured delta; diary,
// continuity, and archive reads leave their sources untouched.
func (e *Engine) Hydrate(ctx context.Context, req Request) (*Bundle, error) {
	if req.Scope == "" {
		return nil, fmt.Errorf("empty scope: %w", store.ErrValidation)
	}

	budget := req.Budget
	if budget <= 0 {
		budget = e.cfg.Budget
	}
	topN := req.TopN
	if topN <= 0 {
		topN = e.cfg.TopN
	}

	b := &Bundle{
		Scope:     req.Scope,
		Identity:  req.Identity,
		Budget:    budget,
		CreatedAt: time.Now().UTC(),
	}
	p := &packer{bundle: b, budget: budget}

	e.addContinuity(ctx, req, p)
	e.addDiary(ctx, req, p)
	e.addMemories(ctx, req, topN, p)
	e.addArchive(ctx, req, p)
	p.flush()

	return b, nil
}

// addContinuity loads the identity's ledger: profile fields first, then the
// most recent notes.
func (e *Engine) addContinuity(ctx context.Context, req Request, p *packer) {
	if req.Identity == "" {
		p.status(SourceContinuity, true, "no identity")
		return
	}

	cont, err := e.loadContinuity(ctx, req.Identity)
	if err != nil {
		e.omit(p, SourceContinuity, err)
		return
	}

	p.begin(SourceContinuity, fmt.Sprintf("=== Continuity: %s ===", req.Identity))
	for _, field := range sortedFields(cont.Profile) {
		p.add(Item{
			Source: SourceContinuity,
			Ref:    req.Identity + "/" + field,
			Text:   fmt.Sprintf("%s: %s", field, cont.Profile[field].Value),
		})
	}
	for _, n := range cont.Notes {
		p.add(Item{
			Source: SourceContinuity,
			Ref:    n.ID,
			Text:   fmt.Sprintf("- [%s] %s", n.CreatedAt.Format("2006-01-02"), n.Content),
		})
	}
	p.status(SourceContinuity, true, "")
}

// addDiary includes the current document for the shared scope and then the
// participant's own scope. A scope with no published document simply
// contributes nothing.
func (e *Engine) addDiary(ctx context.Context, req Request, p *packer) {
	scopes := []string{model.ScopeShared}
	if req.Scope != model.ScopeShared {
		scopes = append(scopes, req.Scope)
	}

	ok := true
	var reason string
	for _, scope := range scopes {
		doc, err := e.currentDocument(ctx, scope)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			ok = false
			reason = err.Error()
			log.Warn().Err(err).Str("scope", scope).Msg("hydrate: diary omitted")
			continue
		}
		p.begin(SourceDiary, fmt.Sprintf("=== Context: %s (v%d) ===", scope, doc.Version))
		p.add(Item{Source: SourceDiary, Ref: doc.ID, Text: doc.Content})
	}
	p.status(SourceDiary, ok, reason)
}

// addMemories queries the strongest records visible to the participant and
// reinforces the ones that make it into the bundle.
func (e *Engine) addMemories(ctx context.Context, req Request, topN int, p *packer) {
	scopes := []string{req.Scope}
	if req.Scope != model.ScopeShared {
		scopes = append(scopes, model.ScopeShared)
	}

	recs, err := e.store.QueryMemories(ctx, store.QueryParams{Scopes: scopes, Limit: topN})
	if err != nil {
		e.omit(p, SourceMemory, err)
		return
	}
	if len(recs) == 0 {
		p.status(SourceMemory, true, "")
		return
	}

	p.begin(SourceMemory, "=== Relevant Memories ===")
	for _, rec := range recs {
		if !p.add(Item{Source: SourceMemory, Ref: rec.ID, Text: renderRecord(rec)}) {
			continue
		}
		if _, err := e.store.Reinforce(ctx, rec.ID, e.cfg.Delta); err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("hydrate: reinforce failed")
		}
	}
	p.status(SourceMemory, true, "")
}

// addArchive searches sealed transcripts, but only when the turn shows
// recall intent.
func (e *Engine) addArchive(ctx context.Context, req Request, p *packer) {
	if !wantsRecall(req.TurnText) {
		p.status(SourceArchive, true, "no recall intent")
		return
	}
	terms := queryTerms(req.TurnText)
	if len(terms) == 0 {
		p.status(SourceArchive, true, "no usable terms")
		return
	}

	matches, err := e.store.SearchArchive(ctx, store.SearchParams{
		Query: joinTerms(terms),
		Limit: e.cfg.Excerpts,
	})
	if err != nil {
		e.omit(p, SourceArchive, err)
		return
	}

	p.begin(SourceArchive, "=== Archive Excerpts ===")
	for _, m := range matches {
		p.add(Item{
			Source: SourceArchive,
			Ref:    fmt.Sprintf("%s#%d", m.EntryID, m.Seq),
			Text:   fmt.Sprintf("[%s] %s: %s", m.EntryID, m.Speaker, m.Excerpt),
		})
	}
	p.status(SourceArchive, true, "")
}

func (e *Engine) omit(p *packer, src Source, err error) {
	log.Warn().Err(err).Str("source", string(src)).Msg("hydrate: source omitted")
	p.status(src, false, err.Error())
}

// packer enforces the budget. Items are admitted whole, in priority order;
// once one fails to fit, everything after it is dropped, so the kept items
// are always a priority-ordered prefix.
type packer struct {
	bundle *Bundle
	budget int
	used   int
	full   bool

	cur     *Section
	counts  map[Source]int
	dropped map[Source]int
}

func (p *packer) begin(src Source, header string) {
	p.flush()
	p.cur = &Section{Source: src, Header: header}
}

// flush commits the section under construction, discarding it if nothing was
// admitted.
func (p *packer) flush() {
	if p.cur != nil && len(p.cur.Items) > 0 {
		p.bundle.Sections = append(p.bundle.Sections, *p.cur)
	}
	p.cur = nil
}

func (p *packer) add(it Item) bool {
	// Cost mirrors the rendered form exactly: item plus newline, header plus
	// newline for a section's first item, and the blank line between sections.
	cost := len(it.Text) + 1
	if p.cur != nil && len(p.cur.Items) == 0 {
		cost += len(p.cur.Header) + 1
		if p.used > 0 {
			cost++
		}
	}
	if p.full || p.used+cost > p.budget {
		p.full = true
		if p.dropped == nil {
			p.dropped = make(map[Source]int)
		}
		p.dropped[it.Source]++
		return false
	}
	p.used += cost
	p.bundle.Used = p.used
	p.cur.Items = append(p.cur.Items, it)
	if p.counts == nil {
		p.counts = make(map[Source]int)
	}
	p.counts[it.Source]++
	return true
}

func (p *packer) status(src Source, ok bool, reason string) {
	p.flush()
	p.bundle.Statuses = append(p.bundle.Statuses, SourceStatus{
		Source:  src,
		Ok:      ok,
		Items:   p.counts[src],
		Dropped: p.dropped[src],
		Reason:  reason,
	})
}
