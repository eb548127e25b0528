package audio

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// WaveformCache memoizes decoded waveforms by URL and deduplicates
// concurrent decodes of the same URL.
//
// A URL is in one of three states: absent, pending (one decode in flight that
// every concurrent caller waits on), or resolved (kept until Clear). A failed
// decode leaves the URL absent so the next Get retries from scratch.
type WaveformCache struct {
	decoder Decoder
	log     *zap.Logger

	group singleflight.Group

	mu         sync.RWMutex
	resolved   map[string]*Waveform
	pending    map[string]uint64 // URL -> generation the decode started in
	generation uint64
}

// NewWaveformCache creates an empty cache backed by decoder.
func NewWaveformCache(decoder Decoder, log *zap.Logger) *WaveformCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &WaveformCache{
		decoder:  decoder,
		log:      log,
		resolved: make(map[string]*Waveform),
		pending:  make(map[string]uint64),
	}
}

// Get returns the waveform for url, decoding it on first use.
//
// All callers that arrive while a decode for url is in flight observe that
// decode's result, success or failure. ctx only bounds how long this caller
// waits; cancelling it does not abort the shared decode.
func (c *WaveformCache) Get(ctx context.Context, url string) (*Waveform, error) {
	c.mu.RLock()
	w, ok := c.resolved[url]
	c.mu.RUnlock()
	if ok {
		return w, nil
	}

	ch := c.group.DoChan(url, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Waveform), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load runs inside the singleflight group, at most once per URL at a time.
func (c *WaveformCache) load(ctx context.Context, url string) (*Waveform, error) {
	c.mu.Lock()
	// A decode may have resolved between Get's lookup and joining the group.
	if w, ok := c.resolved[url]; ok {
		c.mu.Unlock()
		return w, nil
	}
	gen := c.generation
	c.pending[url] = gen
	c.mu.Unlock()

	w, err := c.decoder.Decode(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Results of decodes started before a Clear are handed to their
	// waiters but not recorded.
	if c.generation != gen {
		return w, err
	}
	delete(c.pending, url)
	if err != nil {
		c.log.Warn("Waveform decode failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	c.resolved[url] = w
	c.log.Debug("Waveform cached", zap.String("url", url), zap.Int("entries", len(c.resolved)))
	return w, nil
}

// Clear drops every resolved and pending entry. In-flight decodes keep
// running for the callers already waiting on them, but later callers start
// fresh decodes.
func (c *WaveformCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for url := range c.pending {
		c.group.Forget(url)
	}
	clear(c.pending)
	clear(c.resolved)
	c.generation++
}

// Size returns the number of resolved entries.
func (c *WaveformCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resolved)
}
