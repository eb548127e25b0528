package audio

import (
	"sync"
	"time"
)

// NullOutput is a silent Output for headless runs. Gain changes and ramps are
// tracked but inaudible, and non-looping sources end after the waveform's
// duration.
type NullOutput struct{}

// NewNullOutput creates a silent output.
func NewNullOutput() *NullOutput {
	return &NullOutput{}
}

func (o *NullOutput) NewGainNode() GainNode {
	return &nullGain{rampingGain: newRampingGain(nil)}
}

func (o *NullOutput) NewSource(w *Waveform, loop bool) (Source, error) {
	if w == nil || w.Frames() == 0 {
		return nil, ErrEmptyWaveform
	}
	return &nullSource{length: w.Duration(), loop: loop}, nil
}

type nullGain struct {
	*rampingGain
}

type nullSource struct {
	length time.Duration
	loop   bool

	mu      sync.Mutex
	timer   *time.Timer
	onEnded func()
	stopped bool
}

func (s *nullSource) Connect(node GainNode) error {
	if _, ok := node.(*nullGain); !ok {
		return ErrIncompatibleNode
	}
	return nil
}

func (s *nullSource) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop || s.stopped || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.length, s.end)
}

func (s *nullSource) end() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	fn := s.onEnded
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (s *nullSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *nullSource) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}
