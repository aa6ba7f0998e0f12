package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func populatedStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.PutMemory(ctx, PutMemoryParams{Kind: "semantic", Scope: "alice", Content: "likes chess", Score: 0.8, Keywords: []string{"hobby"}})
	b, _ := s.PutMemory(ctx, PutMemoryParams{Kind: "episodic", Scope: "bob", Content: "lost a game", Score: 0.4, Valence: -0.3})
	s.Link(ctx, a.ID, b.ID, "relates_to", 0.7)

	s.PublishDocument(ctx, "alice", "Focus: endgames.")
	s.PublishDocument(ctx, "alice", "Focus: openings.")
	s.DigestDocument(ctx, "alice")

	entry, _ := s.OpenEntry(ctx, []string{"alice", "bob"})
	s.AppendTurn(ctx, entry.ID, "alice", "shall we play")
	s.AppendTurn(ctx, entry.ID, "bob", "rematch time")
	s.SealEntry(ctx, entry.ID)
	s.AnnotateEntry(ctx, entry.ID, "a rematch is planned", "chess", nil)

	s.AppendNote(ctx, "alice-prime", "Bob wants a rematch.", []string{"session"})
	s.UpdateProfile(ctx, "alice-prime", "interests", "chess")

	return s, entry.ID
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, entryID := populatedStore(t)

	var buf bytes.Buffer
	if err := src.ExportAll(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(buf.String(), "likes chess") {
		t.Error("export missing memory content")
	}

	dst, err := NewSQLiteStore(filepath.Join(t.TempDir(), "dst.db"))
	if err != nil {
		t.Fatalf("create dst: %v", err)
	}
	t.Cleanup(func() { dst.Close() })

	res, err := dst.ImportAll(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Memories == 0 || res.Links != 1 || res.Documents != 2 || res.Entries != 1 || res.Turns != 2 || res.Notes != 1 || res.Profiles != 1 {
		t.Errorf("unexpected import counts: %+v", res)
	}

	// Spot-check each collection landed intact
	recs, _ := dst.QueryMemories(ctx, QueryParams{Scopes: []string{"alice"}, Text: "likes chess"})
	if len(recs) != 1 || len(recs[0].Keywords) != 1 {
		t.Errorf("memory did not survive roundtrip: %+v", recs)
	}
	doc, err := dst.CurrentDocument(ctx, "alice")
	if err != nil || doc.Version != 2 {
		t.Errorf("diary did not survive roundtrip: %+v %v", doc, err)
	}
	turns, err := dst.Transcript(ctx, entryID)
	if err != nil || len(turns) != 2 {
		t.Errorf("transcript did not survive roundtrip: %d turns, %v", len(turns), err)
	}
	entry, _ := dst.GetEntry(ctx, entryID)
	if entry == nil || !entry.Sealed() || entry.Summary != "a rematch is planned" {
		t.Errorf("entry state lost: %+v", entry)
	}
	cont, _ := dst.LoadContinuity(ctx, "alice-prime", 10)
	if len(cont.Notes) != 1 || cont.Profile["interests"].Value != "chess" {
		t.Errorf("continuity did not survive roundtrip: %+v", cont)
	}

	// Sealed entries stay searchable after import
	matches, err := dst.SearchArchive(ctx, SearchParams{Query: "rematch"})
	if err != nil || len(matches) == 0 {
		t.Errorf("imported entry not searchable: %v %v", matches, err)
	}

	// Re-importing the same bundle skips existing rows
	again, err := dst.ImportAll(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if again.Memories != 0 || again.Entries != 0 || again.Notes != 0 {
		t.Errorf("second import duplicated rows: %+v", again)
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.ImportAll(ctx, strings.NewReader("not json"))
	if err == nil {
		t.Fatal("expected error for malformed bundle")
	}

	_, err = s.ImportAll(ctx, strings.NewReader(`{"entries":[{"entry":{"id":"conv_x"}}]}`))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for entry without participants, got %v", err)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s, _ := populatedStore(t)

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	snap, _ := s.Stats(ctx)
	if snap.Memories != 0 || snap.Documents != 0 || snap.Turns != 0 || snap.Notes != 0 {
		t.Errorf("reset left data behind: %+v", snap)
	}
	matches, _ := s.SearchArchive(ctx, SearchParams{Query: "rematch"})
	if len(matches) != 0 {
		t.Errorf("reset left search index behind: %+v", matches)
	}
}
