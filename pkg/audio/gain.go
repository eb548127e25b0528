package audio

import (
	"sync"
	"time"
)

// rampStep is the update period of a running gain ramp.
const rampStep = 10 * time.Millisecond

// rampingGain is the level bookkeeping shared by the output backends. apply
// pushes a level to whatever actually produces sound and is always called
// with mu held.
type rampingGain struct {
	mu     sync.Mutex
	level  float64
	apply  func(level float64)
	ramp   chan struct{} // closed to abort the running ramp
	closed bool
}

func newRampingGain(apply func(level float64)) *rampingGain {
	if apply == nil {
		apply = func(float64) {}
	}
	return &rampingGain{level: 1, apply: apply}
}

func (g *rampingGain) SetGain(level float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.stopRampLocked()
	g.setLocked(clampVolume(level))
}

func (g *rampingGain) RampGain(level float64, d time.Duration) {
	if d <= 0 {
		g.SetGain(level)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.stopRampLocked()

	stop := make(chan struct{})
	g.ramp = stop
	go g.run(g.level, clampVolume(level), d, stop)
}

func (g *rampingGain) Gain() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

func (g *rampingGain) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.stopRampLocked()
	g.closed = true
}

// locked runs fn with the current level while holding the node lock, so that
// fn cannot interleave with a level change.
func (g *rampingGain) locked(fn func(level float64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.level)
}

func (g *rampingGain) run(from, to float64, d time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(rampStep)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			frac := float64(now.Sub(start)) / float64(d)

			g.mu.Lock()
			if g.ramp != stop {
				g.mu.Unlock()
				return
			}
			if frac >= 1 {
				g.setLocked(to)
				g.ramp = nil
				g.mu.Unlock()
				return
			}
			g.setLocked(from + (to-from)*frac)
			g.mu.Unlock()
		}
	}
}

func (g *rampingGain) setLocked(level float64) {
	g.level = level
	g.apply(level)
}

func (g *rampingGain) stopRampLocked() {
	if g.ramp != nil {
		close(g.ramp)
		g.ramp = nil
	}
}
