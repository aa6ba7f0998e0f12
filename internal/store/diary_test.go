package store

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPublishAndCurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v1, err := s.PublishDocument(ctx, "alice", "Focus: chess openings.")
	if err != nil {
		t.Fatalf("publish v1: %v", err)
	}
	if v1.Version != 1 {
		t.Errorf("expected version 1, got %d", v1.Version)
	}
	if v1.Supersedes != "" {
		t.Errorf("first version should supersede nothing, got %q", v1.Supersedes)
	}

	v2, err := s.PublishDocument(ctx, "alice", "Focus: endgames.")
	if err != nil {
		t.Fatalf("publish v2: %v", err)
	}
	if v2.Version != 2 {
		t.Errorf("expected version 2, got %d", v2.Version)
	}
	if v2.Supersedes != v1.ID {
		t.Errorf("expected supersedes %s, got %s", v1.ID, v2.Supersedes)
	}

	cur, err := s.CurrentDocument(ctx, "alice")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.ID != v2.ID || cur.Content != "Focus: endgames." {
		t.Errorf("current should be v2, got %+v", cur)
	}

	// Versions are per scope
	b1, _ := s.PublishDocument(ctx, "bob", "Bob's notes.")
	if b1.Version != 1 {
		t.Errorf("expected bob to start at version 1, got %d", b1.Version)
	}

	if _, err := s.CurrentDocument(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PublishDocument(ctx, "", "x"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty scope, got %v", err)
	}
	if _, err := s.PublishDocument(ctx, "alice", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty content, got %v", err)
	}
}

func TestDocumentHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PublishDocument(ctx, "alice", "one")
	s.PublishDocument(ctx, "alice", "two")
	s.PublishDocument(ctx, "alice", "three")

	hist, err := s.DocumentHistory(ctx, "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(hist))
	}
	for i, doc := range hist {
		if doc.Version != i+1 {
			t.Errorf("expected version %d at position %d, got %d", i+1, i, doc.Version)
		}
	}
	// Superseded versions stay readable
	if hist[0].Content != "one" {
		t.Errorf("superseded version lost: %q", hist[0].Content)
	}
}

func TestDigestDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	section := strings.Repeat("Alice is studying rook endgames this month. ", 10)
	content := "# Current focus\n\n" + section + "\n\n# Preferences\n\n" + section
	s.PublishDocument(ctx, "alice", content)

	res, err := s.DigestDocument(ctx, "alice")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if res.AlreadyRun {
		t.Error("first digest marked as already run")
	}
	if res.Records < 2 {
		t.Fatalf("expected at least 2 records, got %d", res.Records)
	}
	if len(res.RecordIDs) != res.Records {
		t.Errorf("record id count mismatch: %d ids for %d records", len(res.RecordIDs), res.Records)
	}

	doc, _ := s.CurrentDocument(ctx, "alice")
	if !doc.Digested {
		t.Error("document not marked digested")
	}
	recs, _ := s.QueryMemories(ctx, QueryParams{Origin: doc.ID, Limit: 100})
	if len(recs) != res.Records {
		t.Errorf("expected %d records with document origin, got %d", res.Records, len(recs))
	}
	for _, r := range recs {
		if r.Kind != "semantic" || r.Scope != "alice" {
			t.Errorf("digest produced wrong record: kind=%s scope=%s", r.Kind, r.Scope)
		}
	}

	// Second digest of the same version is a no-op
	again, err := s.DigestDocument(ctx, "alice")
	if err != nil {
		t.Fatalf("second digest: %v", err)
	}
	if !again.AlreadyRun || again.Records != res.Records {
		t.Errorf("expected idempotent no-op, got %+v", again)
	}
	recs, _ = s.QueryMemories(ctx, QueryParams{Origin: doc.ID, Limit: 100})
	if len(recs) != res.Records {
		t.Errorf("second digest created records: %d", len(recs))
	}

	// A new version is digestible again
	s.PublishDocument(ctx, "alice", "Short update.")
	res2, err := s.DigestDocument(ctx, "alice")
	if err != nil {
		t.Fatalf("digest v2: %v", err)
	}
	if res2.AlreadyRun {
		t.Error("new version should digest fresh")
	}
	if res2.Records != 1 {
		t.Errorf("short document should yield 1 record, got %d", res2.Records)
	}
}

func TestDigestMissingScope(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.DigestDocument(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
