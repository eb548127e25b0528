package audio

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultIntervalRange is the delay range between one-shot occurrences.
var DefaultIntervalRange = IntervalRange{Min: 8 * time.Second, Max: 25 * time.Second}

// IntervalRange is a half-open delay range [Min, Max).
type IntervalRange struct {
	Min time.Duration
	Max time.Duration
}

// normalize substitutes DefaultIntervalRange for a zero range and widens an
// empty range so that Next is always defined.
func (r IntervalRange) normalize() IntervalRange {
	if r.Min <= 0 && r.Max <= 0 {
		return DefaultIntervalRange
	}
	if r.Min < 0 {
		r.Min = 0
	}
	if r.Max <= r.Min {
		r.Max = r.Min + time.Millisecond
	}
	return r
}

// Next returns a uniformly distributed delay in [Min, Max).
func (r IntervalRange) Next() time.Duration {
	r = r.normalize()
	return r.Min + rand.N(r.Max-r.Min)
}

// EventScheduler plays a track once at random intervals, the way distant
// thunder rolls in now and then under a rain loop.
//
// Each occurrence waits a delay drawn from the interval range, fetches the
// waveform and plays it once. Whether or not that succeeds, the next delay is
// armed right away, so a broken file skips occurrences instead of silencing
// the schedule. A new occurrence stops a previous one that is still sounding.
type EventScheduler struct {
	out      Output
	cache    *WaveformCache
	url      string
	interval IntervalRange
	log      *zap.Logger

	mu          sync.Mutex
	gain        GainNode
	source      Source
	timer       *time.Timer
	cancel      context.CancelFunc
	scheduling  bool
	volume      float64
	epoch       uint64 // identifies the current schedule; bumped by Stop
	disposed    bool
	occurrences int
	failures    int
}

// NewEventScheduler creates an idle scheduler for url. A zero interval
// selects DefaultIntervalRange.
func NewEventScheduler(out Output, cache *WaveformCache, url string, interval IntervalRange, log *zap.Logger) *EventScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	gain := out.NewGainNode()
	gain.SetGain(1)
	return &EventScheduler{
		out:      out,
		cache:    cache,
		url:      url,
		interval: interval.normalize(),
		log:      log.With(zap.String("url", url)),
		gain:     gain,
		volume:   1,
	}
}

// Start begins scheduling. It is a no-op when already scheduling.
func (s *EventScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	if s.scheduling {
		return nil
	}

	s.scheduling = true
	s.epoch++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.armLocked(ctx, s.epoch)
	return nil
}

// armLocked must be called with s.mu held.
func (s *EventScheduler) armLocked(ctx context.Context, epoch uint64) {
	delay := s.interval.Next()
	s.timer = time.AfterFunc(delay, func() { s.fire(ctx, epoch) })
	s.log.Debug("Next occurrence armed", zap.Duration("delay", delay))
}

func (s *EventScheduler) fire(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	if !s.scheduling || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	err := s.playOnce(ctx, epoch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scheduling || s.epoch != epoch {
		return
	}
	if err != nil {
		s.failures++
		s.log.Warn("Occurrence skipped", zap.Error(err))
	}
	s.armLocked(ctx, epoch)
}

func (s *EventScheduler) playOnce(ctx context.Context, epoch uint64) error {
	w, err := s.cache.Get(ctx, s.url)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scheduling || s.epoch != epoch {
		return nil
	}

	src, err := s.out.NewSource(w, false)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	if err := src.Connect(s.gain); err != nil {
		return fmt.Errorf("failed to connect source: %w", err)
	}
	src.OnEnded(func() { s.handleEnded(src) })

	if s.source != nil {
		s.source.Stop()
	}
	s.source = src
	s.occurrences++
	src.Start()
	return nil
}

// Stop cancels the pending occurrence, silences one that is sounding, and
// leaves the scheduler idle.
func (s *EventScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// stopLocked must be called with s.mu held.
func (s *EventScheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.source != nil {
		s.source.Stop()
		s.source = nil
	}
	s.scheduling = false
	s.epoch++
}

// SetVolume glides to level over DefaultRamp. level is clamped to [0, 1].
func (s *EventScheduler) SetVolume(level float64) {
	s.SetVolumeRamp(level, DefaultRamp)
}

// SetVolumeRamp sets the level of the shared gain node, which affects both
// the occurrence currently sounding and later ones.
func (s *EventScheduler) SetVolumeRamp(level float64, ramp time.Duration) {
	level = clampVolume(level)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.volume = level
	s.gain.RampGain(level, ramp)
}

// Volume returns the target volume last set.
func (s *EventScheduler) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// IsScheduling reports whether occurrences are being scheduled.
func (s *EventScheduler) IsScheduling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduling
}

// IsSounding reports whether an occurrence is currently audible.
func (s *EventScheduler) IsSounding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}

// Occurrences returns how many one-shots have been started.
func (s *EventScheduler) Occurrences() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occurrences
}

// Failures returns how many occurrences were skipped because of an error.
func (s *EventScheduler) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Dispose stops scheduling and releases the gain node.
func (s *EventScheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.stopLocked()
	s.gain.Close()
	s.disposed = true
}

func (s *EventScheduler) handleEnded(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == src {
		s.source = nil
	}
}
