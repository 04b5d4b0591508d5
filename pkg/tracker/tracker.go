package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker counts fetch outcomes and cache usage per source. A source is
// either a remote host (transport) or a fetch kind (session).
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*Stats
}

// Stats holds counters for one source.
// Fields are accessed atomically.
type Stats struct {
	CacheHits   int64
	CacheMisses int64
	Success     int64
	Failures    int64
	Cancelled   int64
	Stale       int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*Stats),
	}
}

// getStats returns the stats object for a source, creating it if needed.
func (t *Tracker) getStats(source string) *Stats {
	t.mu.RLock()
	s, ok := t.stats[source]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[source]; ok {
		return s
	}
	s = &Stats{}
	t.stats[source] = s
	return s
}

func (t *Tracker) TrackCacheHit(source string) {
	atomic.AddInt64(&t.getStats(source).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(source string) {
	atomic.AddInt64(&t.getStats(source).CacheMisses, 1)
}

func (t *Tracker) TrackSuccess(source string) {
	atomic.AddInt64(&t.getStats(source).Success, 1)
}

func (t *Tracker) TrackFailure(source string) {
	atomic.AddInt64(&t.getStats(source).Failures, 1)
}

func (t *Tracker) TrackCancelled(source string) {
	atomic.AddInt64(&t.getStats(source).Cancelled, 1)
}

// TrackStale counts completions discarded because a newer fetch superseded them.
func (t *Tracker) TrackStale(source string) {
	atomic.AddInt64(&t.getStats(source).Stale, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]Stats, len(t.stats))
	for k, v := range t.stats {
		result[k] = Stats{
			CacheHits:   atomic.LoadInt64(&v.CacheHits),
			CacheMisses: atomic.LoadInt64(&v.CacheMisses),
			Success:     atomic.LoadInt64(&v.Success),
			Failures:    atomic.LoadInt64(&v.Failures),
			Cancelled:   atomic.LoadInt64(&v.Cancelled),
			Stale:       atomic.LoadInt64(&v.Stale),
		}
	}
	return result
}
