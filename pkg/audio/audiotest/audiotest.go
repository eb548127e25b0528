// Package audiotest provides a recording Output and a scriptable Decoder for
// tests of code built on package audio.
package audiotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zurustar/soundscape/pkg/audio"
)

// GainChange is one recorded SetGain or RampGain call.
type GainChange struct {
	Level float64
	Ramp  time.Duration
}

// Output records every node and source it creates. Ramps complete
// instantly: the node reports the target level as soon as RampGain returns.
type Output struct {
	mu      sync.Mutex
	nodes   []*GainNode
	sources []*Source

	// SourceErr, when set, is returned by NewSource.
	SourceErr error
}

// NewOutput creates an empty recording output.
func NewOutput() *Output {
	return &Output{}
}

func (o *Output) NewGainNode() audio.GainNode {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := &GainNode{level: 1}
	o.nodes = append(o.nodes, n)
	return n
}

func (o *Output) NewSource(w *audio.Waveform, loop bool) (audio.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.SourceErr != nil {
		return nil, o.SourceErr
	}
	s := &Source{Waveform: w, Loop: loop}
	o.sources = append(o.sources, s)
	return s, nil
}

// Nodes returns the gain nodes created so far.
func (o *Output) Nodes() []*GainNode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*GainNode(nil), o.nodes...)
}

// Sources returns the sources created so far.
func (o *Output) Sources() []*Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Source(nil), o.sources...)
}

// SourcesFor returns the sources created for url.
func (o *Output) SourcesFor(url string) []*Source {
	var out []*Source
	for _, s := range o.Sources() {
		if s.Waveform != nil && s.Waveform.URL == url {
			out = append(out, s)
		}
	}
	return out
}

// Sounding returns the number of sources that are started and neither
// stopped nor finished.
func (o *Output) Sounding() int {
	n := 0
	for _, s := range o.Sources() {
		if s.Sounding() {
			n++
		}
	}
	return n
}

// GainNode is a recording audio.GainNode.
type GainNode struct {
	mu      sync.Mutex
	level   float64
	changes []GainChange
	closed  bool
}

func (n *GainNode) SetGain(level float64) {
	n.RampGain(level, 0)
}

func (n *GainNode) RampGain(level float64, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if d < 0 {
		d = 0
	}
	n.level = level
	n.changes = append(n.changes, GainChange{Level: level, Ramp: d})
}

func (n *GainNode) Gain() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.level
}

func (n *GainNode) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
}

// Closed reports whether Close was called.
func (n *GainNode) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// Changes returns the recorded gain changes in call order.
func (n *GainNode) Changes() []GainChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]GainChange(nil), n.changes...)
}

// LastChange returns the most recent gain change.
func (n *GainNode) LastChange() (GainChange, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.changes) == 0 {
		return GainChange{}, false
	}
	return n.changes[len(n.changes)-1], true
}

// Source is a recording audio.Source.
type Source struct {
	Waveform *audio.Waveform
	Loop     bool

	mu        sync.Mutex
	node      audio.GainNode
	started   bool
	stopCount int
	finished  bool
	onEnded   func()
}

func (s *Source) Connect(node audio.GainNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.node = node
	return nil
}

func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCount++
}

func (s *Source) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Finish simulates the source reaching its natural end. It must not be
// called while holding locks the ended callback takes.
func (s *Source) Finish() {
	s.mu.Lock()
	if s.finished || s.stopCount > 0 || s.Loop {
		s.mu.Unlock()
		return
	}
	s.finished = true
	fn := s.onEnded
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Node returns the gain node the source was connected to.
func (s *Source) Node() audio.GainNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node
}

// Started reports whether Start was called.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// StopCount returns how many times Stop was called.
func (s *Source) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCount
}

// Sounding reports whether the source is started and neither stopped nor
// finished.
func (s *Source) Sounding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && s.stopCount == 0 && !s.finished
}

// Decoder is a scriptable audio.Decoder that counts calls per URL. URLs
// decode successfully unless marked with Fail.
type Decoder struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	gate  chan struct{}
}

// NewDecoder creates a decoder where every URL succeeds.
func NewDecoder() *Decoder {
	return &Decoder{
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

// Decode returns a short fresh waveform for url, or the scripted error.
// While the decoder is blocked, Decode waits for Release or ctx.
func (d *Decoder) Decode(ctx context.Context, url string) (*audio.Waveform, error) {
	d.mu.Lock()
	d.calls[url]++
	gate := d.gate
	err := d.fail[url]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", audio.ErrFetch, url, err)
	}
	return &audio.Waveform{URL: url, PCM: make([]byte, 4*audio.SampleRate/10)}, nil
}

// Fail makes every later decode of url fail with err.
func (d *Decoder) Fail(url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[url] = err
}

// Succeed clears a failure set with Fail.
func (d *Decoder) Succeed(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fail, url)
}

// Block makes decodes wait until Release is called.
func (d *Decoder) Block() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate == nil {
		d.gate = make(chan struct{})
	}
}

// Release lets blocked and later decodes proceed.
func (d *Decoder) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// Calls returns how many times url was decoded.
func (d *Decoder) Calls(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[url]
}

// TotalCalls returns the number of decodes across all URLs.
func (d *Decoder) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}
