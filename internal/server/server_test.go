package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/model"
	"github.com/starfall-labs/relay-memory/internal/store"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewServer(s, opts...), s
}

// do sends a request through the handler. A string body is sent raw; anything
// else is marshalled to JSON.
func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv.Routes(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]interface{}
	decode(t, rec, &out)
	assert.Equal(t, "ok", out["status"])
	assert.NotEmpty(t, out["uptime"])
}

func TestMemoryEndpoints(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()
	ctx := context.Background()

	kept, err := st.PutMemory(ctx, store.PutMemoryParams{Kind: "semantic", Scope: "alice", Content: "likes chess", Score: 0.9})
	require.NoError(t, err)
	_, err = st.PutMemory(ctx, store.PutMemoryParams{Kind: "episodic", Scope: "bob", Content: "played chess", Score: 0.4})
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/v1/memories?scope=alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Records []model.MemoryRecord `json:"records"`
		Count   int                  `json:"count"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "likes chess", list.Records[0].Content)

	rec = do(t, h, http.MethodGet, "/v1/memories/"+kept.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var got model.MemoryRecord
	decode(t, rec, &got)
	assert.Equal(t, kept.ID, got.ID)

	rec = do(t, h, http.MethodGet, "/v1/memories/absent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var fail map[string]string
	decode(t, rec, &fail)
	assert.Equal(t, "not_found", fail["error"])

	rec = do(t, h, http.MethodGet, "/v1/memories?kind=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/memories?min_score=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiaryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes()

	rec := do(t, h, http.MethodPost, "/v1/diary/alice", map[string]string{"content": "Focus: endgames. Remember the tournament plan."})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var v1 model.ContextDocument
	decode(t, rec, &v1)
	assert.Equal(t, 1, v1.Version)

	rec = do(t, h, http.MethodPost, "/v1/diary/alice", map[string]string{"content": "Focus: openings."})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var v2 model.ContextDocument
	decode(t, rec, &v2)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, v1.ID, v2.Supersedes)

	rec = do(t, h, http.MethodGet, "/v1/diary/alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var current model.ContextDocument
	decode(t, rec, &current)
	assert.Equal(t, v2.ID, current.ID)

	rec = do(t, h, http.MethodGet, "/v1/diary/alice/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Count int `json:"count"`
	}
	decode(t, rec, &history)
	assert.Equal(t, 2, history.Count)

	rec = do(t, h, http.MethodPost, "/v1/diary/alice/digest", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var digest store.DigestResult
	decode(t, rec, &digest)
	assert.False(t, digest.AlreadyRun)
	assert.Positive(t, digest.Records)

	rec = do(t, h, http.MethodPost, "/v1/diary/alice/digest", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &digest)
	assert.True(t, digest.AlreadyRun)

	rec = do(t, h, http.MethodGet, "/v1/diary/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/diary/alice", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/diary/alice", map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchiveEndpoints(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()
	ctx := context.Background()

	entry, err := st.OpenEntry(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	_, err = st.AppendTurn(ctx, entry.ID, "alice", "The red fox crossed the garden.")
	require.NoError(t, err)
	_, err = st.AppendTurn(ctx, entry.ID, "bob", "I saw it too.")
	require.NoError(t, err)
	_, err = st.SealEntry(ctx, entry.ID)
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/v1/archive", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	rec = do(t, h, http.MethodGet, "/v1/archive/search?q=fox", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var found struct {
		Matches []store.ArchiveMatch `json:"matches"`
		Count   int                  `json:"count"`
	}
	decode(t, rec, &found)
	require.Equal(t, 1, found.Count)
	assert.Equal(t, entry.ID, found.Matches[0].EntryID)

	rec = do(t, h, http.MethodGet, "/v1/archive/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/archive/"+entry.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var show struct {
		Entry model.ArchiveEntry `json:"entry"`
		Turns []model.Turn       `json:"turns"`
	}
	decode(t, rec, &show)
	assert.Equal(t, entry.ID, show.Entry.ID)
	assert.Len(t, show.Turns, 2)

	rec = do(t, h, http.MethodGet, "/v1/archive/conv_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLedgerEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()
	ctx := context.Background()

	_, err := st.AppendNote(ctx, "alice-prime", "Remembered the trellis.", nil)
	require.NoError(t, err)
	require.NoError(t, st.UpdateProfile(ctx, "alice-prime", "interests", "chess"))

	rec := do(t, h, http.MethodGet, "/v1/ledger/alice-prime", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var cont model.Continuity
	decode(t, rec, &cont)
	require.Len(t, cont.Notes, 1)
	assert.Equal(t, "chess", cont.Profile["interests"].Value)

	// Unknown identities read as empty, not missing
	rec = do(t, h, http.MethodGet, "/v1/ledger/ghost", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &cont)
	assert.Empty(t, cont.Notes)
}

func TestHydrateEndpoint(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	eng, err := hydrate.New(s, hydrate.Config{})
	require.NoError(t, err)
	srv := NewServer(s, WithHydration(eng))
	h := srv.Routes()
	ctx := context.Background()

	_, err = s.PublishDocument(ctx, "shared", "Weekly chess night continues.")
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/v1/hydrate", map[string]string{"scope": "alice"})
	assert.Equal(t, http.StatusOK, rec.Code)
	var bundle hydrate.Bundle
	decode(t, rec, &bundle)
	assert.Equal(t, "alice", bundle.Scope)
	assert.Len(t, bundle.Statuses, 4)
	require.NotEmpty(t, bundle.Sections)
	assert.Equal(t, hydrate.SourceDiary, bundle.Sections[0].Source)

	rec = do(t, h, http.MethodPost, "/v1/hydrate", map[string]string{"scope": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/hydrate", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHydrateEndpointUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv.Routes(), http.MethodPost, "/v1/hydrate", map[string]string{"scope": "alice"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.PutMemory(ctx, store.PutMemoryParams{Kind: "semantic", Scope: "alice", Content: "x", Score: 0.5})
	require.NoError(t, err)
	_, err = st.AppendNote(ctx, "alice-prime", "note", nil)
	require.NoError(t, err)

	rec := do(t, srv.Routes(), http.MethodGet, "/v1/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var snap store.Snapshot
	decode(t, rec, &snap)
	assert.Equal(t, 1, snap.Memories)
	assert.Equal(t, 1, snap.Notes)
	assert.Equal(t, 1, snap.Identities)
}

func TestLiveBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/relay/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The dial returns before the hub registers the observer
	require.Eventually(t, func() bool {
		srv.hub.mu.Lock()
		defer srv.hub.mu.Unlock()
		return len(srv.hub.conns) == 1
	}, time.Second, 5*time.Millisecond)

	srv.Broadcast(map[string]string{"speaker": "alice", "content": "hello"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "alice", msg["speaker"])
	assert.Equal(t, "hello", msg["content"])
}
