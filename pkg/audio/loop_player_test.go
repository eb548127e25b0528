package audio_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zurustar/soundscape/pkg/audio"
	"github.com/zurustar/soundscape/pkg/audio/audiotest"
)

func newLoopPlayer(loop bool) (*audio.LoopPlayer, *audiotest.Output, *audiotest.Decoder) {
	out := audiotest.NewOutput()
	dec := audiotest.NewDecoder()
	cache := audio.NewWaveformCache(dec, nil)
	return audio.NewLoopPlayer(out, cache, rainURL, loop, nil), out, dec
}

func TestLoopPlayer_Play(t *testing.T) {
	p, out, _ := newLoopPlayer(true)

	if p.IsPlaying() {
		t.Fatal("new player should be idle")
	}
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !p.IsPlaying() {
		t.Error("player should be playing after Play")
	}

	sources := out.Sources()
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	src := sources[0]
	if !src.Loop {
		t.Error("source should loop")
	}
	if !src.Started() {
		t.Error("source should be started")
	}
	if src.Node() != out.Nodes()[0] {
		t.Error("source should be connected to the player's gain node")
	}
}

func TestLoopPlayer_PlayTwiceKeepsOneSource(t *testing.T) {
	p, out, _ := newLoopPlayer(true)

	for i := 0; i < 2; i++ {
		if err := p.Play(context.Background()); err != nil {
			t.Fatalf("Play %d failed: %v", i+1, err)
		}
	}

	if len(out.Sources()) != 1 {
		t.Errorf("expected exactly 1 source, got %d", len(out.Sources()))
	}
	if out.Sounding() != 1 {
		t.Errorf("expected 1 sounding source, got %d", out.Sounding())
	}
}

func TestLoopPlayer_ConcurrentPlayWhileLoading(t *testing.T) {
	p, out, dec := newLoopPlayer(true)
	dec.Block()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Play(context.Background())
		}(i)
	}

	waitFor(t, time.Second, func() bool { return dec.Calls(rainURL) == 1 })
	dec.Release()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Play %d failed: %v", i, err)
		}
	}
	if len(out.Sources()) != 1 {
		t.Errorf("expected exactly 1 source, got %d", len(out.Sources()))
	}
}

func TestLoopPlayer_StopTwice(t *testing.T) {
	p, out, _ := newLoopPlayer(true)

	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	p.Stop()
	p.Stop()

	if p.IsPlaying() {
		t.Error("player should be idle after Stop")
	}
	if got := out.Sources()[0].StopCount(); got != 1 {
		t.Errorf("source should be stopped exactly once, got %d", got)
	}
}

func TestLoopPlayer_StopWhenIdle(t *testing.T) {
	p, out, _ := newLoopPlayer(true)
	p.Stop()
	if p.IsPlaying() || len(out.Sources()) != 0 {
		t.Error("Stop on an idle player should do nothing")
	}
}

func TestLoopPlayer_PlayFailure(t *testing.T) {
	p, out, dec := newLoopPlayer(true)
	dec.Fail(rainURL, errors.New("404"))

	err := p.Play(context.Background())
	if !errors.Is(err, audio.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if p.IsPlaying() {
		t.Error("player should stay idle after a failed Play")
	}
	if len(out.Sources()) != 0 {
		t.Error("no source should be created when the fetch fails")
	}

	dec.Succeed(rainURL)
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !p.IsPlaying() {
		t.Error("retry should start playback")
	}
}

func TestLoopPlayer_SourceCreationFailure(t *testing.T) {
	p, out, _ := newLoopPlayer(true)
	out.SourceErr = errors.New("device lost")

	if err := p.Play(context.Background()); err == nil {
		t.Fatal("Play should fail when the output cannot create a source")
	}
	if p.IsPlaying() {
		t.Error("player should stay idle")
	}
}

func TestLoopPlayer_StopWhileLoading(t *testing.T) {
	p, out, dec := newLoopPlayer(true)
	dec.Block()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Play(context.Background()) }()
	waitFor(t, time.Second, func() bool { return dec.Calls(rainURL) == 1 })

	p.Stop()
	dec.Release()

	if err := <-errCh; err != nil {
		t.Fatalf("Play returned %v", err)
	}
	if p.IsPlaying() {
		t.Error("a Stop issued during loading should cancel the pending start")
	}
	if len(out.Sources()) != 0 {
		t.Errorf("expected no source, got %d", len(out.Sources()))
	}
}

func TestLoopPlayer_NaturalEnd(t *testing.T) {
	p, out, _ := newLoopPlayer(false)

	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	first := out.Sources()[0]
	if first.Loop {
		t.Fatal("source should not loop")
	}

	first.Finish()
	if p.IsPlaying() {
		t.Error("player should be idle after the track ends")
	}

	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}
	if len(out.Sources()) != 2 {
		t.Errorf("replay should create a new source, got %d sources", len(out.Sources()))
	}

	// A late end notification from the first source must not stop the second.
	first.Finish()
	if !p.IsPlaying() {
		t.Error("stale end notification affected the new source")
	}
}

func TestLoopPlayer_VolumeClamping(t *testing.T) {
	p, out, _ := newLoopPlayer(true)
	node := out.Nodes()[0]

	tests := []struct {
		in   float64
		want float64
	}{
		{-5, 0},
		{5, 1},
		{0.3, 0.3},
		{0, 0},
		{1, 1},
	}
	for _, tt := range tests {
		p.SetVolumeRamp(tt.in, 0)
		if p.Volume() != tt.want {
			t.Errorf("SetVolume(%v): Volume() = %v, want %v", tt.in, p.Volume(), tt.want)
		}
		if node.Gain() != tt.want {
			t.Errorf("SetVolume(%v): gain = %v, want %v", tt.in, node.Gain(), tt.want)
		}
	}
}

func TestLoopPlayer_VolumeClampingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("volume always lands in [0,1]", prop.ForAll(
		func(level float64) bool {
			p, _, _ := newLoopPlayer(true)
			p.SetVolume(level)
			v := p.Volume()
			switch {
			case level < 0:
				return v == 0
			case level > 1:
				return v == 1
			default:
				return v == level
			}
		},
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}

func TestLoopPlayer_VolumeRamp(t *testing.T) {
	p, out, _ := newLoopPlayer(true)
	node := out.Nodes()[0]

	p.SetVolume(0.5)
	change, ok := node.LastChange()
	if !ok || change.Level != 0.5 || change.Ramp != audio.DefaultRamp {
		t.Errorf("SetVolume should ramp over %v, got %+v", audio.DefaultRamp, change)
	}

	p.SetVolumeRamp(0.8, 0)
	change, _ = node.LastChange()
	if change.Level != 0.8 || change.Ramp != 0 {
		t.Errorf("zero ramp should apply immediately, got %+v", change)
	}

	p.SetVolumeRamp(0.1, time.Second)
	change, _ = node.LastChange()
	if change.Ramp != time.Second {
		t.Errorf("custom ramp not forwarded, got %+v", change)
	}
}

func TestLoopPlayer_Dispose(t *testing.T) {
	p, out, _ := newLoopPlayer(true)

	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	p.Dispose()
	p.Dispose()

	if p.IsPlaying() {
		t.Error("disposed player should not be playing")
	}
	if !out.Nodes()[0].Closed() {
		t.Error("Dispose should release the gain node")
	}
	if out.Sources()[0].StopCount() != 1 {
		t.Error("Dispose should stop the active source")
	}
	if err := p.Play(context.Background()); !errors.Is(err, audio.ErrDisposed) {
		t.Errorf("Play after Dispose: expected ErrDisposed, got %v", err)
	}
}
