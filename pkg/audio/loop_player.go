package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LoopPlayer plays one track's waveform, optionally looping, through its own
// gain node.
//
// States: idle -> playing on a successful Play, playing -> idle on Stop or on
// natural end of a non-looping track, and any state -> disposed.
type LoopPlayer struct {
	out   Output
	cache *WaveformCache
	url   string
	loop  bool
	log   *zap.Logger

	mu       sync.Mutex
	gain     GainNode
	source   Source
	playing  bool
	volume   float64
	epoch    uint64 // bumped by Stop to invalidate starts still waiting on the cache
	disposed bool
}

// NewLoopPlayer creates an idle player for url. The gain node is created
// immediately at full volume and lives until Dispose.
//
// Parameters:
//   - out: Output backend that creates the gain node and sources
//   - cache: Shared waveform cache
//   - url: Track URL passed to the cache
//   - loop: Whether sources loop forever
//   - log: Logger (nil disables logging)
func NewLoopPlayer(out Output, cache *WaveformCache, url string, loop bool, log *zap.Logger) *LoopPlayer {
	if log == nil {
		log = zap.NewNop()
	}
	gain := out.NewGainNode()
	gain.SetGain(1)
	return &LoopPlayer{
		out:    out,
		cache:  cache,
		url:    url,
		loop:   loop,
		log:    log.With(zap.String("url", url)),
		gain:   gain,
		volume: 1,
	}
}

// Play starts playback. It is a no-op when already playing.
//
// The first call for a URL may block while the waveform is fetched. A fetch
// failure is returned and the player stays idle. If Stop or Dispose is called
// while Play is waiting, the pending start is dropped and Play returns nil
// (or ErrDisposed).
func (p *LoopPlayer) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	epoch := p.epoch
	p.mu.Unlock()

	w, err := p.cache.Get(ctx, p.url)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return ErrDisposed
	}
	if p.playing || p.epoch != epoch {
		return nil
	}

	src, err := p.out.NewSource(w, p.loop)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	if err := src.Connect(p.gain); err != nil {
		return fmt.Errorf("failed to connect source: %w", err)
	}
	src.OnEnded(func() { p.handleEnded(src) })

	p.source = src
	p.playing = true
	src.Start()

	p.log.Debug("Loop started", zap.Bool("loop", p.loop), zap.Duration("length", w.Duration()))
	return nil
}

// Stop silences the current source. It is a no-op when not playing.
func (p *LoopPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// stopLocked must be called with p.mu held.
func (p *LoopPlayer) stopLocked() {
	p.epoch++
	if p.source != nil {
		p.source.Stop()
		p.source = nil
	}
	p.playing = false
}

// SetVolume glides to level over DefaultRamp. level is clamped to [0, 1].
func (p *LoopPlayer) SetVolume(level float64) {
	p.SetVolumeRamp(level, DefaultRamp)
}

// SetVolumeRamp glides to level over ramp, or applies it at once when ramp
// is zero. level is clamped to [0, 1].
func (p *LoopPlayer) SetVolumeRamp(level float64, ramp time.Duration) {
	level = clampVolume(level)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.volume = level
	p.gain.RampGain(level, ramp)
}

// Volume returns the target volume last set.
func (p *LoopPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// IsPlaying reports whether a source is currently sounding.
func (p *LoopPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Dispose stops playback and releases the gain node. The player cannot be
// used afterwards.
func (p *LoopPlayer) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.stopLocked()
	p.gain.Close()
	p.disposed = true
}

func (p *LoopPlayer) handleEnded(src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != src {
		return
	}
	p.source = nil
	p.playing = false
	p.log.Debug("Track reached end")
}
