package audio

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"go.uber.org/zap"
)

// endPollInterval is how often a one-shot source checks whether its player
// has drained.
const endPollInterval = 50 * time.Millisecond

// EbitenOutput plays through an Ebitengine audio context. Every source is an
// audio.Player; the context mixes all of them into the device output.
type EbitenOutput struct {
	ctx *audio.Context
	log *zap.Logger
}

// NewEbitenOutput creates an output on ctx. A nil ctx reuses the process-wide
// Ebitengine context, creating it at SampleRate if none exists yet.
//
// Parameters:
//   - ctx: Existing Ebitengine audio context, or nil
//   - log: Logger (nil disables logging)
//
// Returns:
//   - *EbitenOutput: The output backend
func NewEbitenOutput(ctx *audio.Context, log *zap.Logger) *EbitenOutput {
	if ctx == nil {
		ctx = audio.CurrentContext()
	}
	if ctx == nil {
		ctx = audio.NewContext(SampleRate)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EbitenOutput{ctx: ctx, log: log}
}

// Context returns the underlying Ebitengine audio context.
func (o *EbitenOutput) Context() *audio.Context {
	return o.ctx
}

func (o *EbitenOutput) NewGainNode() GainNode {
	g := &ebitenGain{players: make(map[*audio.Player]struct{})}
	g.rampingGain = newRampingGain(func(level float64) {
		for p := range g.players {
			p.SetVolume(level)
		}
	})
	return g
}

func (o *EbitenOutput) NewSource(w *Waveform, loop bool) (Source, error) {
	if w == nil || w.Frames() == 0 {
		return nil, ErrEmptyWaveform
	}

	var src io.Reader = bytes.NewReader(w.PCM)
	if loop {
		src = audio.NewInfiniteLoop(bytes.NewReader(w.PCM), int64(len(w.PCM)))
	}

	player, err := o.ctx.NewPlayer(src)
	if err != nil {
		return nil, err
	}
	return &ebitenSource{
		player: player,
		loop:   loop,
		log:    o.log,
		done:   make(chan struct{}),
	}, nil
}

// ebitenGain applies its level to every attached player. The player set is
// guarded by the embedded rampingGain lock.
type ebitenGain struct {
	*rampingGain
	players map[*audio.Player]struct{}
}

func (g *ebitenGain) attach(p *audio.Player) {
	g.locked(func(level float64) {
		g.players[p] = struct{}{}
		p.SetVolume(level)
	})
}

func (g *ebitenGain) detach(p *audio.Player) {
	g.locked(func(float64) {
		delete(g.players, p)
	})
}

type ebitenSource struct {
	player *audio.Player
	loop   bool
	log    *zap.Logger

	mu      sync.Mutex
	node    *ebitenGain
	onEnded func()
	started bool
	stopped bool
	done    chan struct{}
}

func (s *ebitenSource) Connect(node GainNode) error {
	g, ok := node.(*ebitenGain)
	if !ok {
		return ErrIncompatibleNode
	}
	s.mu.Lock()
	s.node = g
	s.mu.Unlock()
	g.attach(s.player)
	return nil
}

func (s *ebitenSource) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.player.Play()
	if !s.loop {
		go s.watch()
	}
}

// watch polls the player until it drains, then reports the natural end.
func (s *ebitenSource) watch() {
	ticker := time.NewTicker(endPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.player.IsPlaying() {
				continue
			}
			s.mu.Lock()
			if s.stopped {
				s.mu.Unlock()
				return
			}
			fn := s.onEnded
			s.releaseLocked()
			s.mu.Unlock()

			if fn != nil {
				fn()
			}
			return
		}
	}
}

func (s *ebitenSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.releaseLocked()
}

// releaseLocked must be called with s.mu held.
func (s *ebitenSource) releaseLocked() {
	s.stopped = true
	close(s.done)
	if s.node != nil {
		s.node.detach(s.player)
	}
	if err := s.player.Close(); err != nil {
		s.log.Debug("Closing player failed", zap.Error(err))
	}
}

func (s *ebitenSource) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}
