// Package soundscape composes the catalog, the per-track audio engines and the
// global transport state into one controllable unit.
package soundscape

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zurustar/soundscape/pkg/audio"
	"github.com/zurustar/soundscape/pkg/catalog"
)

// ErrSoundscapeNotFound is returned by SelectSoundscape for an id that is not
// in the catalog.
var ErrSoundscapeNotFound = errors.New("soundscape not found")

// DefaultDisableFade is how long a disabled track fades out before it stops.
const DefaultDisableFade = 200 * time.Millisecond

// Lookup resolves soundscape ids. *catalog.Catalog satisfies it.
type Lookup interface {
	Soundscape(id string) (catalog.Soundscape, bool)
}

// Config tunes the orchestrator. Zero fields take their defaults.
type Config struct {
	// DisableFade is the fade-out before a disabled track stops.
	DisableFade time.Duration

	// VolumeRamp is the glide applied by SetTrackVolume.
	VolumeRamp time.Duration

	// EventInterval is the delay range for event tracks.
	EventInterval audio.IntervalRange
}

func (c Config) withDefaults() Config {
	if c.DisableFade <= 0 {
		c.DisableFade = DefaultDisableFade
	}
	if c.VolumeRamp <= 0 {
		c.VolumeRamp = audio.DefaultRamp
	}
	return c
}

// TrackState is the observable runtime state of one track.
type TrackState struct {
	ID      string
	Label   string
	Enabled bool
	Volume  float64
	Kind    catalog.Kind
	// Active reports whether the engine is sounding (loop) or scheduling
	// (event).
	Active bool
}

// Snapshot is a consistent point-in-time view of the orchestrator.
type Snapshot struct {
	SoundscapeID string
	Playing      bool
	// Session identifies the current selection. Every SelectSoundscape mints
	// a new one, including a reselection of the same id.
	Session string
	Tracks  []TrackState
}

// Orchestrator owns the per-track engines of the selected soundscape and the
// global play/pause state.
//
// Commands are serialized. Queries only take the state lock, so they never
// wait on a fetch that a running Play is awaiting.
type Orchestrator struct {
	// catalog resolves soundscape ids
	catalog Lookup

	// out creates gain nodes and sources for every engine
	out audio.Output

	// cache is shared by all engines and cleared on Dispose
	cache *audio.WaveformCache

	cfg Config
	log *zap.Logger

	// cmdMu serializes commands and delayed stops
	cmdMu sync.Mutex

	// mu guards the fields below for readers
	mu       sync.RWMutex
	current  string
	session  string
	playing  bool
	disposed bool
	tracks   []*trackRuntime
	byID     map[string]*trackRuntime
}

// trackRuntime is the state the orchestrator keeps for one track of the
// selected soundscape.
type trackRuntime struct {
	desc    catalog.Track
	engine  engine
	enabled bool
	volume  float64

	// faded is set while the live gain sits at zero after a disable.
	faded bool

	// disableSeq identifies the pending delayed stop. Bumping it cancels
	// the stop.
	disableSeq uint64
	stopTimer  *time.Timer
}

// engine is the part of LoopPlayer and EventScheduler the orchestrator drives.
type engine interface {
	start(ctx context.Context) error
	active() bool
	Stop()
	SetVolumeRamp(level float64, ramp time.Duration)
	Dispose()
}

type loopEngine struct{ *audio.LoopPlayer }

func (e loopEngine) start(ctx context.Context) error { return e.Play(ctx) }
func (e loopEngine) active() bool                    { return e.IsPlaying() }

type eventEngine struct{ *audio.EventScheduler }

func (e eventEngine) start(context.Context) error { return e.Start() }
func (e eventEngine) active() bool                { return e.IsScheduling() }

// New creates an orchestrator with no soundscape selected.
//
// Parameters:
//   - cat: Catalog used by SelectSoundscape
//   - out: Output backend every track plays through
//   - cache: Waveform cache shared by all tracks
//   - cfg: Fade, ramp and interval settings
//   - log: Logger for per-track failures (nil disables logging)
//
// Returns:
//   - *Orchestrator: An idle orchestrator
func New(cat Lookup, out audio.Output, cache *audio.WaveformCache, cfg Config, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		catalog: cat,
		out:     out,
		cache:   cache,
		cfg:     cfg.withDefaults(),
		log:     log,
		byID:    make(map[string]*trackRuntime),
	}
}

// SelectSoundscape tears down the current soundscape and builds fresh engines
// for id. Playback is paused first if it was running; the new soundscape does
// not start until Play. Selecting the current id again still rebuilds.
//
// Parameters:
//   - id: Catalog id of the soundscape
//
// Returns:
//   - error: ErrSoundscapeNotFound for an unknown id, audio.ErrDisposed after Dispose
func (o *Orchestrator) SelectSoundscape(id string) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	if o.isDisposed() {
		return audio.ErrDisposed
	}

	sc, ok := o.catalog.Soundscape(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSoundscapeNotFound, id)
	}

	o.pauseLocked()
	o.teardownLocked()

	tracks := make([]*trackRuntime, 0, len(sc.Tracks))
	byID := make(map[string]*trackRuntime, len(sc.Tracks))
	for _, desc := range sc.Tracks {
		rt := &trackRuntime{
			desc:    desc,
			engine:  o.newEngine(desc),
			enabled: true,
			volume:  desc.DefaultVolume,
		}
		rt.engine.SetVolumeRamp(desc.DefaultVolume, 0)
		tracks = append(tracks, rt)
		byID[desc.ID] = rt
	}

	session := uuid.NewString()

	o.mu.Lock()
	o.current = sc.ID
	o.session = session
	o.tracks = tracks
	o.byID = byID
	o.mu.Unlock()

	o.log.Info("Soundscape selected",
		zap.String("soundscape", sc.ID),
		zap.String("session", session),
		zap.Int("tracks", len(tracks)))
	return nil
}

func (o *Orchestrator) newEngine(desc catalog.Track) engine {
	log := o.log.With(zap.String("track", desc.ID))
	if desc.Kind == catalog.KindEvent {
		return eventEngine{audio.NewEventScheduler(o.out, o.cache, desc.URL, o.cfg.EventInterval, log)}
	}
	return loopEngine{audio.NewLoopPlayer(o.out, o.cache, desc.URL, desc.Loop, log)}
}

// Play starts every enabled track. It is a no-op when already playing or when
// no soundscape is selected.
//
// Loop tracks are started concurrently and awaited; event tracks start their
// schedules. A track that fails to start is logged and left silent without
// affecting the others. Playing becomes true once every start was issued.
func (o *Orchestrator) Play(ctx context.Context) {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.mu.RLock()
	skip := o.disposed || o.current == "" || o.playing
	tracks := o.tracks
	o.mu.RUnlock()
	if skip {
		return
	}

	var g errgroup.Group
	for _, rt := range tracks {
		if !rt.enabled {
			continue
		}
		g.Go(func() error {
			o.startTrack(ctx, rt)
			return nil
		})
	}
	g.Wait()

	o.setPlaying(true)
}

// startTrack starts one engine and logs a failure. Called with cmdMu held.
func (o *Orchestrator) startTrack(ctx context.Context, rt *trackRuntime) {
	if err := rt.engine.start(ctx); err != nil {
		o.log.Warn("Track failed to start",
			zap.String("track", rt.desc.ID),
			zap.String("url", rt.desc.URL),
			zap.Error(err))
	}
}

// Pause stops every track, enabled or not. It is a no-op when not playing.
func (o *Orchestrator) Pause() {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	o.pauseLocked()
}

// pauseLocked must be called with cmdMu held.
func (o *Orchestrator) pauseLocked() {
	if !o.IsPlaying() {
		return
	}
	for _, rt := range o.tracks {
		rt.engine.Stop()
	}
	o.setPlaying(false)
}

// ToggleTrack enables or disables a track. Unknown ids are ignored.
//
// While playing, enabling starts the track right away and disabling fades it
// to silence over the configured disable fade and then stops it. The stored
// volume is not touched by the fade; re-enabling restores it. While paused
// only the flag changes.
//
// Parameters:
//   - ctx: Bounds the fetch when enabling starts a loop track
//   - id: Track id within the selected soundscape
//   - enabled: New enabled state
func (o *Orchestrator) ToggleTrack(ctx context.Context, id string, enabled bool) {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.mu.Lock()
	rt, ok := o.byID[id]
	if !ok || o.disposed {
		o.mu.Unlock()
		return
	}
	rt.enabled = enabled
	playing := o.playing
	o.mu.Unlock()

	if enabled {
		o.cancelDisableLocked(rt)
		if rt.faded {
			rt.engine.SetVolumeRamp(rt.volume, 0)
			rt.faded = false
		}
		if playing {
			o.startTrack(ctx, rt)
		}
		return
	}

	if !playing {
		return
	}
	rt.engine.SetVolumeRamp(0, o.cfg.DisableFade)
	rt.faded = true
	rt.disableSeq++
	seq := rt.disableSeq
	rt.stopTimer = time.AfterFunc(o.cfg.DisableFade, func() { o.finishDisable(rt, seq) })
}

// finishDisable stops a faded-out track unless the disable was superseded.
func (o *Orchestrator) finishDisable(rt *trackRuntime, seq uint64) {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	if rt.disableSeq != seq {
		return
	}
	rt.stopTimer = nil

	o.mu.RLock()
	stale := o.disposed || o.byID[rt.desc.ID] != rt || rt.enabled
	o.mu.RUnlock()
	if stale {
		return
	}
	rt.engine.Stop()
}

// cancelDisableLocked must be called with cmdMu held.
func (o *Orchestrator) cancelDisableLocked(rt *trackRuntime) {
	rt.disableSeq++
	if rt.stopTimer != nil {
		rt.stopTimer.Stop()
		rt.stopTimer = nil
	}
}

// SetTrackVolume stores volume for the track and glides its live gain there.
// volume is clamped to [0, 1]. Unknown ids are ignored. A track that is fading
// out after a disable keeps its silent gain; the new volume applies when it is
// enabled again.
func (o *Orchestrator) SetTrackVolume(id string, volume float64) {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	volume = clamp(volume)

	o.mu.Lock()
	rt, ok := o.byID[id]
	if !ok || o.disposed {
		o.mu.Unlock()
		return
	}
	rt.volume = volume
	o.mu.Unlock()

	if rt.faded {
		return
	}
	rt.engine.SetVolumeRamp(volume, o.cfg.VolumeRamp)
}

// TrackStates returns the state of every track in catalog order. It is empty
// before a soundscape is selected.
func (o *Orchestrator) TrackStates() []TrackState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.trackStatesLocked()
}

func (o *Orchestrator) trackStatesLocked() []TrackState {
	states := make([]TrackState, 0, len(o.tracks))
	for _, rt := range o.tracks {
		states = append(states, TrackState{
			ID:      rt.desc.ID,
			Label:   rt.desc.Label,
			Enabled: rt.enabled,
			Volume:  rt.volume,
			Kind:    rt.desc.Kind,
			Active:  rt.engine.active(),
		})
	}
	return states
}

// CurrentSoundscapeID returns the selected soundscape id, or "" if none.
func (o *Orchestrator) CurrentSoundscapeID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// IsPlaying reports the global transport state.
func (o *Orchestrator) IsPlaying() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.playing
}

// Snapshot returns the selection, transport and track states in one read.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		SoundscapeID: o.current,
		Playing:      o.playing,
		Session:      o.session,
		Tracks:       o.trackStatesLocked(),
	}
}

// Dispose pauses, releases every engine and clears the waveform cache. The
// orchestrator is unusable afterward.
func (o *Orchestrator) Dispose() {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	if o.isDisposed() {
		return
	}
	o.pauseLocked()
	o.teardownLocked()

	o.mu.Lock()
	o.current = ""
	o.session = ""
	o.disposed = true
	o.mu.Unlock()

	o.cache.Clear()
	o.log.Info("Soundscape engine disposed")
}

// teardownLocked disposes every engine and drops the runtime state. Must be
// called with cmdMu held.
func (o *Orchestrator) teardownLocked() {
	for _, rt := range o.tracks {
		o.cancelDisableLocked(rt)
		rt.engine.Dispose()
	}

	o.mu.Lock()
	o.tracks = nil
	o.byID = make(map[string]*trackRuntime)
	o.mu.Unlock()
}

func (o *Orchestrator) setPlaying(playing bool) {
	o.mu.Lock()
	o.playing = playing
	o.mu.Unlock()
}

func (o *Orchestrator) isDisposed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.disposed
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
