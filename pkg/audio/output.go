package audio

import (
	"errors"
	"math"
	"time"
)

// DefaultRamp is the glide time used for volume changes unless a caller asks
// for a specific ramp.
const DefaultRamp = 200 * time.Millisecond

var (
	// ErrDisposed is returned by operations on a disposed player or scheduler.
	ErrDisposed = errors.New("audio: disposed")

	// ErrIncompatibleNode is returned when a source is connected to a gain
	// node created by a different output backend.
	ErrIncompatibleNode = errors.New("audio: gain node from a different output")

	// ErrEmptyWaveform is returned when a source is requested for a waveform
	// without samples.
	ErrEmptyWaveform = errors.New("audio: empty waveform")
)

// Output is the platform audio graph a track plays through.
type Output interface {
	// NewGainNode creates a volume stage already connected to the
	// destination. It stays connected until Close.
	NewGainNode() GainNode

	// NewSource creates a single-use playback handle for w.
	NewSource(w *Waveform, loop bool) (Source, error)
}

// GainNode is a persistent per-track volume stage.
type GainNode interface {
	// SetGain applies level immediately, cancelling any running ramp.
	SetGain(level float64)

	// RampGain glides linearly from the current level to level over d,
	// superseding any running ramp. d <= 0 behaves like SetGain.
	RampGain(level float64, d time.Duration)

	// Gain returns the level currently applied.
	Gain() float64

	// Close disconnects the node. Further calls are no-ops.
	Close()
}

// Source is transient playback of one waveform through one gain node.
//
// OnEnded fires at most once, from a goroutine other than the caller of
// Start or Stop, and only when playback reaches the end on its own; a looping
// source never ends and a stopped source never reports ending.
type Source interface {
	Connect(node GainNode) error
	Start()
	// Stop silences the source. Stopping twice, or after natural end, is a no-op.
	Stop()
	OnEnded(fn func())
}

// clampVolume restricts v to [0, 1]. NaN maps to 0.
func clampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
