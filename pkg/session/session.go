package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pollenmap/pkg/forecast"
	"pollenmap/pkg/logging"
	"pollenmap/pkg/tracker"
)

var (
	// ErrEmptyAllergen is returned by SetAllergen for a blank name.
	ErrEmptyAllergen = errors.New("allergen must not be empty")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// Config holds the session settings.
type Config struct {
	// Timeout bounds every fetch. Zero disables the bound.
	Timeout time.Duration
	// DefaultAllergen is selected on the first manifest when present in it.
	DefaultAllergen string
	Tracker         *tracker.Tracker
	Logger          *slog.Logger
}

// flight is the token of the one in-flight fetch of a kind.
type flight struct {
	id        uint64
	requestID string
	kind      forecast.Kind
	interval  int
	started   time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// Session owns the manifest, the selection and the area cache. Every
// mutation happens under mu. Fetches run on their own goroutines and
// report back through the stale-completion guard in finish.
type Session struct {
	manifests *forecast.ManifestFetcher
	areas     *forecast.AreaFetcher
	cfg       Config
	tracker   *tracker.Tracker
	logger    *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	manifest   *forecast.Manifest
	allergen   string
	position   int
	positioned bool
	cache      map[int]Entry
	flights    map[forecast.Kind]*flight
	seq        uint64
	closed     bool

	listeners []Listener
	queue     []event
	wake      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a session and starts its notification dispatcher.
// Call Close to release it.
func New(manifests *forecast.ManifestFetcher, areas *forecast.AreaFetcher, cfg Config) *Session {
	if cfg.Tracker == nil {
		cfg.Tracker = tracker.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		manifests:  manifests,
		areas:      areas,
		cfg:        cfg,
		tracker:    cfg.Tracker,
		logger:     cfg.Logger.With("component", "forecast_session"),
		baseCtx:    ctx,
		baseCancel: cancel,
		cache:      make(map[int]Entry),
		flights:    make(map[forecast.Kind]*flight),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.dispatch()
	return s
}

// AddListener subscribes l to all future notifications.
func (s *Session) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy on write, the dispatcher iterates a snapshot.
	ls := make([]Listener, len(s.listeners), len(s.listeners)+1)
	copy(ls, s.listeners)
	s.listeners = append(ls, l)
}

// LoadManifest starts a manifest fetch, superseding any fetch in flight.
// It returns immediately; the result arrives as OnManifestReady or OnFetchFailed.
func (s *Session) LoadManifest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.loadManifestLocked()
}

// OnManifestLoaded replaces the manifest and refetches the current interval.
func (s *Session) OnManifestLoaded(m *forecast.Manifest) {
	if m == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.applyManifestLocked(m)
}

// SetAllergen selects an allergen. The area cache is always invalidated and
// the current interval fetched again, so selecting the same allergen retries.
func (s *Session) SetAllergen(a string) error {
	if strings.TrimSpace(a) == "" {
		return ErrEmptyAllergen
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	prev := s.allergen
	s.allergen = a
	s.cancelFlightLocked(forecast.KindArea)
	clear(s.cache)
	s.logger.Debug("Allergen selected", "allergen", a, "previous", prev)
	s.startAreaLocked()
	return nil
}

// SetIntervalIndex moves the playback position, clamped to the interval range.
// Nothing happens when the clamped position equals the current one.
func (s *Session) SetIntervalIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.manifest == nil {
		return
	}
	s.moveLocked(forecast.Clamp(i, s.manifest.Range.Len()))
}

// Advance moves the position by delta with clamping.
func (s *Session) Advance(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.manifest == nil {
		return
	}
	s.moveLocked(forecast.Clamp(s.position+delta, s.manifest.Range.Len()))
}

// AdvanceWrap moves the position by delta, looping past either end.
func (s *Session) AdvanceWrap(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.manifest == nil {
		return
	}
	s.moveLocked(forecast.Wrap(s.position+delta, s.manifest.Range.Len()))
}

// Retry drops the current interval's entry and fetches it again.
// Without a manifest it reloads the manifest instead.
func (s *Session) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.manifest == nil {
		s.loadManifestLocked()
		return
	}
	s.cancelFlightLocked(forecast.KindArea)
	if interval, ok := s.currentIntervalLocked(); ok {
		delete(s.cache, interval)
	}
	s.startAreaLocked()
}

// CurrentRenderable returns the cache entry for the current interval.
func (s *Session) CurrentRenderable() Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	interval, ok := s.currentIntervalLocked()
	if !ok {
		return Entry{Status: StatusEmpty}
	}
	if e, ok := s.cache[interval]; ok {
		return e
	}
	return Entry{Status: StatusEmpty, Interval: interval}
}

// Manifest returns the active manifest, or nil before the first load.
func (s *Session) Manifest() *forecast.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest
}

// State returns a snapshot of the selection.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		HasManifest:     s.manifest != nil,
		ManifestLoading: s.flights[forecast.KindManifest] != nil,
		Allergen:        s.allergen,
		Position:        s.position,
	}
	if s.manifest != nil {
		st.Allergens = append([]string(nil), s.manifest.Allergens...)
		st.Intervals = s.manifest.Intervals()
	}
	if interval, ok := s.currentIntervalLocked(); ok {
		st.Interval = interval
		st.Status = s.cache[interval].Status
	}
	return st
}

// Close cancels every fetch and stops notification delivery.
// Later operations are ignored. It must not be called from a Listener.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for kind := range s.flights {
		s.cancelFlightLocked(kind)
	}
	s.queue = nil
	s.mu.Unlock()

	s.baseCancel()
	close(s.done)
	s.wg.Wait()
	s.logger.Debug("Session closed")
}

func (s *Session) currentIntervalLocked() (int, bool) {
	if s.manifest == nil {
		return 0, false
	}
	return forecast.IntervalAt(s.position, &s.manifest.Range)
}

func (s *Session) moveLocked(pos int) {
	if pos == s.position {
		return
	}
	s.position = pos
	s.startAreaLocked()
}

func (s *Session) applyManifestLocked(m *forecast.Manifest) {
	s.manifest = m
	s.cancelFlightLocked(forecast.KindArea)
	clear(s.cache)

	switch {
	case m.HasAllergen(s.allergen):
	case m.HasAllergen(s.cfg.DefaultAllergen):
		s.allergen = s.cfg.DefaultAllergen
	case len(m.Allergens) > 0:
		s.allergen = m.Allergens[0]
	default:
		s.allergen = ""
	}

	n := m.Range.Len()
	if !s.positioned {
		// Open on the current hour when the range covers it.
		s.position = forecast.Clamp(-m.Range.Lo, n)
		s.positioned = true
	}
	s.position = forecast.Clamp(s.position, n)

	s.logger.Info("Manifest applied",
		"allergens", len(m.Allergens),
		"range", fmt.Sprintf("[%d,%d]", m.Range.Lo, m.Range.Hi),
		"allergen", s.allergen,
		"position", s.position)

	s.emitLocked(event{typ: eventManifest, manifest: m})
	s.startAreaLocked()
}

// startAreaLocked supersedes the area flight and brings the current interval
// into view: cached results are re-emitted, anything else is fetched.
func (s *Session) startAreaLocked() {
	s.cancelFlightLocked(forecast.KindArea)

	interval, ok := s.currentIntervalLocked()
	if !ok || s.allergen == "" {
		return
	}

	source := string(forecast.KindArea)
	if e, ok := s.cache[interval]; ok {
		switch e.Status {
		case StatusReady:
			s.tracker.TrackCacheHit(source)
			s.emitLocked(event{typ: eventAreas, interval: interval, areas: e.Areas})
			return
		case StatusFailed:
			s.tracker.TrackCacheHit(source)
			s.emitLocked(event{typ: eventFailed, kind: forecast.KindArea, err: e.Err})
			return
		}
	}
	s.tracker.TrackCacheMiss(source)

	u, err := s.areas.Resolve(s.manifest, s.allergen, interval)
	if err != nil {
		s.tracker.TrackFailure(source)
		s.cache[interval] = Entry{Status: StatusFailed, Interval: interval, Err: err}
		s.logger.Warn("Area unavailable", "allergen", s.allergen, "interval", interval, "error", err)
		s.emitLocked(event{typ: eventFailed, kind: forecast.KindArea, err: err})
		return
	}

	s.cache[interval] = Entry{Status: StatusPending, Interval: interval}
	f := s.newFlightLocked(forecast.KindArea, interval)
	s.logger.Debug("Area fetch started", "request_id", f.requestID, "url", u)

	go func() {
		areas, err := s.areas.FetchURL(f.ctx, u)
		s.finish(f, func() {
			if err != nil {
				s.cache[f.interval] = Entry{Status: StatusFailed, Interval: f.interval, Err: err}
				s.emitLocked(event{typ: eventFailed, kind: forecast.KindArea, err: err})
				return
			}
			s.cache[f.interval] = Entry{Status: StatusReady, Interval: f.interval, Areas: areas}
			s.emitLocked(event{typ: eventAreas, interval: f.interval, areas: areas})
		}, err)
	}()
}

func (s *Session) loadManifestLocked() {
	s.cancelFlightLocked(forecast.KindManifest)
	f := s.newFlightLocked(forecast.KindManifest, 0)
	s.logger.Debug("Manifest fetch started", "request_id", f.requestID, "url", s.manifests.URL())

	go func() {
		m, err := s.manifests.Fetch(f.ctx)
		s.finish(f, func() {
			if err != nil {
				// The previous manifest stays active.
				s.emitLocked(event{typ: eventFailed, kind: forecast.KindManifest, err: err})
				return
			}
			s.applyManifestLocked(m)
		}, err)
	}()
}

func (s *Session) newFlightLocked(kind forecast.Kind, interval int) *flight {
	s.seq++
	var ctx context.Context
	var cancel context.CancelFunc
	if s.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.baseCtx, s.cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(s.baseCtx)
	}
	f := &flight{
		id:        s.seq,
		requestID: uuid.NewString(),
		kind:      kind,
		interval:  interval,
		started:   time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.flights[kind] = f
	return f
}

// cancelFlightLocked aborts the in-flight fetch of kind, if any. A pending
// area entry it owned is dropped so navigating back starts a fresh fetch.
func (s *Session) cancelFlightLocked(kind forecast.Kind) {
	f, ok := s.flights[kind]
	if !ok {
		return
	}
	delete(s.flights, kind)
	f.cancel()
	s.tracker.TrackCancelled(string(kind))
	if kind == forecast.KindArea {
		if e, ok := s.cache[f.interval]; ok && e.Status == StatusPending {
			delete(s.cache, f.interval)
		}
	}
	logging.Trace(s.logger, "Fetch superseded", "kind", kind, "request_id", f.requestID)
}

// finish applies a completed fetch if f is still the current flight of its kind.
func (s *Session) finish(f *flight, apply func(), err error) {
	f.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	source := string(f.kind)
	if s.closed || s.flights[f.kind] != f {
		s.tracker.TrackStale(source)
		logging.Trace(s.logger, "Stale completion discarded", "kind", f.kind, "request_id", f.requestID)
		return
	}
	delete(s.flights, f.kind)

	elapsed := time.Since(f.started)
	switch {
	case errors.Is(err, forecast.ErrCancelled):
		// Only reachable when the transport reports cancellation on its own.
		if f.kind == forecast.KindArea {
			delete(s.cache, f.interval)
		}
		return
	case err != nil:
		s.tracker.TrackFailure(source)
		s.logger.Warn("Fetch failed", "kind", f.kind, "request_id", f.requestID, "duration", elapsed, "error", err)
	default:
		s.tracker.TrackSuccess(source)
		s.logger.Debug("Fetch completed", "kind", f.kind, "request_id", f.requestID, "duration", elapsed)
	}
	apply()
}

func (s *Session) emitLocked(ev event) {
	if s.closed {
		return
	}
	s.queue = append(s.queue, ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers queued events one at a time, outside the lock.
func (s *Session) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue[0] = event{}
			s.queue = s.queue[1:]
			listeners := s.listeners
			s.mu.Unlock()

			for _, l := range listeners {
				ev.deliver(l)
			}
		}
	}
}
