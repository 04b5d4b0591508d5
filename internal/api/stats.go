package api

import (
	"net/http"
	"runtime"
	"sort"
	"time"

	"pollenmap/pkg/tracker"
)

// StatsHandler reports fetch and cache counters.
type StatsHandler struct {
	tracker *tracker.Tracker
	started time.Time
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(t *tracker.Tracker) *StatsHandler {
	return &StatsHandler{tracker: t, started: time.Now()}
}

// SourceStatsDTO holds the counters of one source.
type SourceStatsDTO struct {
	Name        string `json:"name"`
	CacheHits   int64  `json:"cache_hits"`
	CacheMisses int64  `json:"cache_misses"`
	Success     int64  `json:"success"`
	Failures    int64  `json:"failures"`
	Cancelled   int64  `json:"cancelled"`
	Stale       int64  `json:"stale"`
	HitRate     int64  `json:"hit_rate"`
}

// DiagnosticsDTO holds process level figures.
type DiagnosticsDTO struct {
	UptimeSec  int64  `json:"uptime_sec"`
	Goroutines int    `json:"goroutines"`
	HeapMB     uint64 `json:"heap_mb"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Diagnostics DiagnosticsDTO   `json:"diagnostics"`
	Sources     []SourceStatsDTO `json:"sources"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatsResponse{
		Diagnostics: DiagnosticsDTO{
			UptimeSec:  int64(time.Since(h.started).Seconds()),
			Goroutines: runtime.NumGoroutine(),
			HeapMB:     bToMb(mem.HeapAlloc),
		},
		Sources: make([]SourceStatsDTO, 0, len(snapshot)),
	}

	for name, s := range snapshot {
		totalCache := s.CacheHits + s.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (s.CacheHits * 100) / totalCache
		}
		resp.Sources = append(resp.Sources, SourceStatsDTO{
			Name:        name,
			CacheHits:   s.CacheHits,
			CacheMisses: s.CacheMisses,
			Success:     s.Success,
			Failures:    s.Failures,
			Cancelled:   s.Cancelled,
			Stale:       s.Stale,
			HitRate:     hitRate,
		})
	}
	sort.Slice(resp.Sources, func(i, j int) bool { return resp.Sources[i].Name < resp.Sources[j].Name })

	writeJSON(w, http.StatusOK, resp)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
