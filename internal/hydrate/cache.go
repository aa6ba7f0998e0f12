package hydrate

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/starfall-labs/relay-memory/internal/model"
)

// readCache holds hot hydration reads (current documents, continuity) for a
// short TTL. Publishers call the Invalidate hooks after writes; the TTL
// bounds staleness when they don't. The cache serves reads only; nothing on
// the write path goes through it.
type readCache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func newReadCache(ttl time.Duration) (*readCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &readCache{c: c, ttl: ttl}, nil
}

func (e *Engine) currentDocument(ctx context.Context, scope string) (*model.ContextDocument, error) {
	key := "doc:" + scope
	if e.cache != nil {
		if v, ok := e.cache.c.Get(key); ok {
			if doc, ok := v.(*model.ContextDocument); ok {
				return doc, nil
			}
		}
	}

	doc, err := e.store.CurrentDocument(ctx, scope)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.c.SetWithTTL(key, doc, int64(len(doc.Content)), e.cache.ttl)
	}
	return doc, nil
}

func (e *Engine) loadContinuity(ctx context.Context, identity string) (*model.Continuity, error) {
	key := "cont:" + identity
	if e.cache != nil {
		if v, ok := e.cache.c.Get(key); ok {
			if cont, ok := v.(*model.Continuity); ok {
				return cont, nil
			}
		}
	}

	cont, err := e.store.LoadContinuity(ctx, identity, e.cfg.MaxNotes)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		cost := int64(64)
		for _, n := range cont.Notes {
			cost += int64(len(n.Content))
		}
		e.cache.c.SetWithTTL(key, cont, cost, e.cache.ttl)
	}
	return cont, nil
}

// InvalidateScope drops the cached current document for a scope. Call after
// publishing a new version.
func (e *Engine) InvalidateScope(scope string) {
	if e.cache != nil {
		e.cache.c.Del("doc:" + scope)
	}
}

// InvalidateIdentity drops the cached continuity for an identity. Call after
// ledger writes.
func (e *Engine) InvalidateIdentity(identity string) {
	if e.cache != nil {
		e.cache.c.Del("cont:" + identity)
	}
}
