// Package relay drives a session: agents take turns speaking, every
// utterance is archived before the next speaker goes, and the entry is
// sealed and distilled when the session ends, cancelled or not.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/starfall-labs/relay-memory/internal/extract"
	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/model"
)

// Message is one utterance in the running session.
type Message struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Agent is one participant. The system string carries hydrated context the
// agent folds into its own prompt.
type Agent interface {
	Name() string
	Scope() string
	Respond(ctx context.Context, history []Message, system string) (string, error)
}

// Store is the archive surface the relay writes through.
type Store interface {
	OpenEntry(ctx context.Context, participants []string) (*model.ArchiveEntry, error)
	AppendTurn(ctx context.Context, entryID, speaker, content string) (*model.Turn, error)
	SealEntry(ctx context.Context, entryID string) (*model.ArchiveEntry, error)
	AnnotateEntry(ctx context.Context, entryID, summary, topic string, keyPoints []string) error
}

// Extractor distills a sealed entry once the session closes.
type Extractor interface {
	ExtractSession(ctx context.Context, p extract.Params) (*extract.Report, error)
}

// Result reports what one session produced. Run returns it even alongside
// an error so callers can locate the partial archive.
type Result struct {
	EntryID   string          `json:"entry_id"`
	Turns     int             `json:"turns"`
	Cancelled bool            `json:"cancelled,omitempty"`
	Extract   *extract.Report `json:"extract,omitempty"`
}

// Relay runs one session to completion.
type Relay struct {
	store        Store
	engine       *hydrate.Engine
	extractor    Extractor
	agents       []Agent
	identities   map[string]string
	limiter      *rate.Limiter
	onMessage    func(Message)
	maxExchanges int
	sessionName  string
}

// Option configures the relay.
type Option func(*Relay)

// WithPace spaces turns at least d apart. Zero disables pacing.
func WithPace(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithMaxExchanges caps how many full rounds the session runs.
func WithMaxExchanges(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxExchanges = n
		}
	}
}

// WithExtractor runs post-session distillation on the sealed entry.
func WithExtractor(x Extractor) Option {
	return func(r *Relay) { r.extractor = x }
}

// WithIdentities maps participant names to continuity identities.
func WithIdentities(m map[string]string) Option {
	return func(r *Relay) { r.identities = m }
}

// WithSessionName labels the archive entry's topic.
func WithSessionName(name string) Option {
	return func(r *Relay) { r.sessionName = name }
}

// WithOnMessage registers a hook called after each turn is archived.
func WithOnMessage(fn func(Message)) Option {
	return func(r *Relay) { r.onMessage = fn }
}

// New builds a relay over the given agents.
func New(st Store, eng *hydrate.Engine, agents []Agent, opts ...Option) *Relay {
	r := &Relay{
		store:        st,
		engine:       eng,
		agents:       agents,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		maxExchanges: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run opens an archive entry, lets the agents talk, and seals the entry
// when they stop. Cancellation ends the session early but the turns
// produced so far stay archived and the entry is still sealed.
func (r *Relay) Run(ctx context.Context, kickoff string) (*Result, error) {
	names := make([]string, len(r.agents))
	for i, a := range r.agents {
		names[i] = a.Name()
	}

	entry, err := r.store.OpenEntry(ctx, names)
	if err != nil {
		return nil, err
	}
	res := &Result{EntryID: entry.ID}

	// Each agent gets its context once, before anyone speaks.
	systems := make(map[string]string, len(r.agents))
	for _, a := range r.agents {
		systems[a.Name()] = r.contextFor(ctx, a, kickoff)
	}

	var history []Message
	if kickoff != "" {
		msg := Message{Speaker: "moderator", Content: kickoff}
		if _, err := r.store.AppendTurn(ctx, entry.ID, msg.Speaker, msg.Content); err != nil {
			return res, err
		}
		history = append(history, msg)
		r.emit(msg)
	}

	runErr := r.exchange(ctx, entry.ID, systems, &history)
	res.Turns = len(history)
	if isCancel(runErr) {
		res.Cancelled = true
		runErr = nil
	}

	// Teardown runs on a fresh context so a cancelled session still seals.
	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	r.close(closeCtx, res, names)

	return res, runErr
}

func (r *Relay) exchange(ctx context.Context, entryID string, systems map[string]string, history *[]Message) error {
	for round := 0; round < r.maxExchanges; round++ {
		for _, a := range r.agents {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}

			reply, err := a.Respond(ctx, *history, systems[a.Name()])
			if err != nil {
				return fmt.Errorf("%s: %w", a.Name(), err)
			}
			reply = strings.TrimSpace(reply)
			if reply == "" {
				continue
			}

			msg := Message{Speaker: a.Name(), Content: reply}
			if _, err := r.store.AppendTurn(ctx, entryID, msg.Speaker, msg.Content); err != nil {
				return fmt.Errorf("archiving %s turn: %w", a.Name(), err)
			}
			*history = append(*history, msg)
			r.emit(msg)
		}
	}
	return nil
}

// contextFor hydrates one agent's context. A hydration failure is logged
// and the agent speaks without context rather than blocking the session.
func (r *Relay) contextFor(ctx context.Context, a Agent, kickoff string) string {
	if r.engine == nil {
		return ""
	}
	bundle, err := r.engine.Hydrate(ctx, hydrate.Request{
		Scope:    a.Scope(),
		Identity: r.identities[a.Name()],
		TurnText: kickoff,
	})
	if err != nil {
		log.Warn().Err(err).Str("agent", a.Name()).Msg("relay: hydration failed")
		return ""
	}
	return bundle.Text()
}

func (r *Relay) close(ctx context.Context, res *Result, names []string) {
	if _, err := r.store.SealEntry(ctx, res.EntryID); err != nil {
		log.Error().Err(err).Str("entry", res.EntryID).Msg("relay: seal failed")
		return
	}

	summary := fmt.Sprintf("%d turns between %s", res.Turns, strings.Join(names, ", "))
	if err := r.store.AnnotateEntry(ctx, res.EntryID, summary, r.sessionName, nil); err != nil {
		log.Warn().Err(err).Str("entry", res.EntryID).Msg("relay: annotate failed")
	}

	if r.extractor == nil {
		return
	}
	report, err := r.extractor.ExtractSession(ctx, extract.Params{
		EntryID:    res.EntryID,
		Identities: r.identities,
	})
	if err != nil {
		log.Error().Err(err).Str("entry", res.EntryID).Msg("relay: extraction failed")
		return
	}
	res.Extract = report

	// Extraction appends ledger notes; cached continuity is stale now.
	if r.engine != nil {
		for _, identity := range r.identities {
			if identity != "" {
				r.engine.InvalidateIdentity(identity)
			}
		}
	}
}

func (r *Relay) emit(msg Message) {
	if r.onMessage != nil {
		r.onMessage(msg)
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
