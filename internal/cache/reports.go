package cache

import (
	"context"
	"sync/atomic"
	"time"

	"monee/internal/core"
)

const (
	defaultReportEntries = 16
	defaultReportTTL     = 10 * time.Minute
)

// Reports caches summaries per view. Every record event invalidates all of
// them, so it is registered as a store event sink.
type Reports struct {
	lru        *LRU[core.Summary]
	generation atomic.Uint64
	hits       atomic.Int64
	misses     atomic.Int64
}

func NewReports() *Reports {
	return &Reports{lru: NewLRU[core.Summary](defaultReportEntries, defaultReportTTL)}
}

// Get returns the cached summary for key along with the current generation,
// which must be handed back to Set.
func (r *Reports) Get(key string) (core.Summary, uint64, bool) {
	gen := r.generation.Load()
	s, ok := r.lru.Get(key)
	if ok {
		r.hits.Add(1)
	} else {
		r.misses.Add(1)
	}
	return s, gen, ok
}

// Set stores a summary computed while gen was current. It is discarded when
// records changed in the meantime.
func (r *Reports) Set(key string, gen uint64, s core.Summary) {
	if r.generation.Load() != gen {
		return
	}
	r.lru.Set(key, s)
	if r.generation.Load() != gen {
		r.lru.Purge()
	}
}

// Publish invalidates every cached summary. It satisfies store.EventSink.
func (r *Reports) Publish(_ context.Context, _ core.RecordEvent) error {
	r.generation.Add(1)
	r.lru.Purge()
	return nil
}

// Stats returns the hit and miss counts so far.
func (r *Reports) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}
