// Package audio implements the playback core of the soundscape engine: a
// decoded-waveform cache, continuous loop players, randomized one-shot event
// schedulers, and the output backends they play through.
package audio

import (
	"time"
)

// SampleRate is the sample rate of every decoded waveform and output backend.
const SampleRate = 44100

// bytesPerFrame is the size of one 16-bit stereo frame.
const bytesPerFrame = 4

// Waveform is fully decoded audio for one source URL: interleaved 16-bit
// little-endian stereo PCM at SampleRate.
//
// A Waveform is shared by every player of its URL and must be treated as
// read-only once it leaves the decoder.
type Waveform struct {
	URL string
	PCM []byte
}

// Frames returns the number of stereo frames in the waveform.
func (w *Waveform) Frames() int64 {
	return int64(len(w.PCM) / bytesPerFrame)
}

// Duration returns the playback length of the waveform.
func (w *Waveform) Duration() time.Duration {
	return time.Duration(w.Frames()) * time.Second / SampleRate
}
