package playback

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultPeriod is used when no positive period is configured.
const DefaultPeriod = time.Second

// Stepper is advanced by one position per tick, looping at the end.
type Stepper interface {
	AdvanceWrap(delta int)
}

// Scheduler drives a Stepper on a fixed period while playing.
//
// Ticks run under the scheduler lock and carry the generation they were
// started with, so once Pause returns no tick of the old timer can step.
type Scheduler struct {
	stepper Stepper
	period  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	gen     uint64
	stop    chan struct{}
	playing bool
	closed  bool
	ticks   uint64
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(stepper Stepper, period time.Duration) *Scheduler {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Scheduler{
		stepper: stepper,
		period:  period,
		logger:  slog.With("component", "playback"),
	}
}

// Play starts ticking. While already playing it restarts the timer phase.
func (s *Scheduler) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	restart := s.playing
	s.haltLocked()

	s.gen++
	s.stop = make(chan struct{})
	s.playing = true
	go s.run(s.gen, s.stop)

	s.logger.Debug("Playback started", "period", s.period, "restart", restart)
}

// Pause stops ticking. It is a no-op when already stopped.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.haltLocked()
	s.logger.Debug("Playback paused", "ticks", s.ticks)
}

// Toggle flips between playing and stopped and reports the new state.
func (s *Scheduler) Toggle() bool {
	if s.Playing() {
		s.Pause()
		return false
	}
	s.Play()
	return s.Playing()
}

// Playing reports whether the timer is running.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Period returns the tick period.
func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Ticks returns how many steps have been taken since creation.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Close stops the scheduler for good. Later calls to Play are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltLocked()
	s.closed = true
}

func (s *Scheduler) haltLocked() {
	if !s.playing {
		return
	}
	s.gen++
	close(s.stop)
	s.stop = nil
	s.playing = false
}

func (s *Scheduler) run(gen uint64, stop <-chan struct{}) {
	t := time.NewTicker(s.period)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.ticks++
		s.stepper.AdvanceWrap(1)
		s.mu.Unlock()
	}
}
