// Package server exposes the engine over HTTP: read-mostly accessors plus
// the publish, digest, and hydrate operations. Memory writes beyond those
// stay engine-internal.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/store"
)

const defaultTimeout = 60 * time.Second

// Retainer runs one retention pass. *store.SQLiteStore satisfies it.
type Retainer interface {
	RunRetention(ctx context.Context, pol store.RetentionPolicy)
}

// Server holds the HTTP surface's dependencies.
type Server struct {
	router    *chi.Mux
	store     store.Store
	engine    *hydrate.Engine
	hub       *liveHub
	retainer  Retainer
	retention store.RetentionPolicy
	cronExpr  string
	addr      string
	startTime time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithHydration wires the context assembly engine behind POST /v1/hydrate.
func WithHydration(eng *hydrate.Engine) Option {
	return func(s *Server) { s.engine = eng }
}

// WithRetention schedules retention passes on the given cron expression.
func WithRetention(r Retainer, pol store.RetentionPolicy, cronExpr string) Option {
	return func(s *Server) {
		s.retainer = r
		s.retention = pol
		s.cronExpr = cronExpr
	}
}

// NewServer builds a Server over the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     st,
		hub:       newLiveHub(),
		addr:      ":8787",
		cronExpr:  "@hourly",
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Broadcast pushes a relay message to live websocket observers.
func (s *Server) Broadcast(v interface{}) {
	s.hub.broadcast(v)
}

// Routes returns the configured handler. The websocket route sits outside
// the timeout group; middleware.Timeout would sever long-lived connections.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/relay/live", s.hub.handleLive)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(defaultTimeout))

		r.Get("/v1/memories", s.handleMemoryQuery)
		r.Get("/v1/memories/{id}", s.handleMemoryGet)

		r.Get("/v1/diary/{scope}", s.handleDiaryCurrent)
		r.Post("/v1/diary/{scope}", s.handleDiaryPublish)
		r.Get("/v1/diary/{scope}/history", s.handleDiaryHistory)
		r.Post("/v1/diary/{scope}/digest", s.handleDiaryDigest)

		r.Get("/v1/archive", s.handleArchiveList)
		r.Get("/v1/archive/search", s.handleArchiveSearch)
		r.Get("/v1/archive/{id}", s.handleArchiveGet)

		r.Get("/v1/ledger/{identity}", s.handleLedgerGet)

		r.Post("/v1/hydrate", s.handleHydrate)
		r.Get("/v1/stats", s.handleStats)
	})

	return r
}

// Run serves until ctx is cancelled, scheduling retention passes when
// configured.
func (s *Server) Run(ctx context.Context) error {
	if s.retainer != nil {
		c := cron.New()
		_, err := c.AddFunc(s.cronExpr, func() {
			rctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			s.retainer.RunRetention(rctx, s.retention)
		})
		if err != nil {
			return fmt.Errorf("retention cron %q: %w", s.cronExpr, err)
		}
		c.Start()
		defer c.Stop()
		log.Info().Str("cron", s.cronExpr).Msg("server: retention scheduled")
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", s.addr).Msg("server: listening")

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
