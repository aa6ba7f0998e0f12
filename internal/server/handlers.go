package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// writeStoreError maps the store's error taxonomy onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrSealed):
		writeError(w, http.StatusConflict, "sealed", err.Error())
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		log.Error().Err(err).Msg("server: internal error")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleMemoryQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := store.QueryParams{
		Kind:   q.Get("kind"),
		Text:   q.Get("q"),
		Origin: q.Get("origin"),
		Limit:  queryInt(r, "limit", 20),
	}
	if scopes := q.Get("scope"); scopes != "" {
		p.Scopes = strings.Split(scopes, ",")
	}
	if raw := q.Get("min_score"); raw != "" {
		min, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "min_score must be a number")
			return
		}
		p.MinScore = min
	}

	records, err := s.store.QueryMemories(r.Context(), p)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records, "count": len(records)})
}

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetMemory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDiaryCurrent(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.CurrentDocument(r.Context(), chi.URLParam(r, "scope"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type diaryPublishRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleDiaryPublish(w http.ResponseWriter, r *http.Request) {
	var req diaryPublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}

	scope := chi.URLParam(r, "scope")
	doc, err := s.store.PublishDocument(r.Context(), scope, req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if s.engine != nil {
		s.engine.InvalidateScope(scope)
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDiaryHistory(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.DocumentHistory(r.Context(), chi.URLParam(r, "scope"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": docs, "count": len(docs)})
}

func (s *Server) handleDiaryDigest(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.DigestDocument(r.Context(), chi.URLParam(r, "scope"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListEntries(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

func (s *Server) handleArchiveSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}
	matches, err := s.store.SearchArchive(r.Context(), store.SearchParams{
		Query: query,
		Limit: queryInt(r, "limit", 10),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches, "count": len(matches)})
}

func (s *Server) handleArchiveGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.store.GetEntry(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	turns, err := s.store.Transcript(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entry": entry, "turns": turns})
}

func (s *Server) handleLedgerGet(w http.ResponseWriter, r *http.Request) {
	cont, err := s.store.LoadContinuity(r.Context(), chi.URLParam(r, "identity"), queryInt(r, "notes", 20))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cont)
}

type hydrateRequest struct {
	Scope    string `json:"scope"`
	Identity string `json:"identity,omitempty"`
	TurnText string `json:"turn_text,omitempty"`
	Budget   int    `json:"budget,omitempty"`
	TopN     int    `json:"top_n,omitempty"`
}

func (s *Server) handleHydrate(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "hydration is not configured")
		return
	}
	var req hydrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}

	bundle, err := s.engine.Hydrate(r.Context(), hydrate.Request{
		Scope:    req.Scope,
		Identity: req.Identity,
		TurnText: req.TurnText,
		Budget:   req.Budget,
		TopN:     req.TopN,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Stats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
