package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"go.uber.org/zap"

	"github.com/zurustar/soundscape/pkg/fileutil"
)

// Fetch and decode errors. Every failure returned by a Decoder wraps one of
// these.
var (
	// ErrFetch is returned when the raw bytes of a track cannot be retrieved.
	ErrFetch = errors.New("audio: fetch failed")

	// ErrDecode is returned when the raw bytes are not valid audio.
	ErrDecode = errors.New("audio: decode failed")

	// ErrUnsupportedFormat is returned for file extensions without a decoder.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrNoSoundFont is returned when a MIDI track is decoded without a
	// configured SoundFont.
	ErrNoSoundFont = errors.New("audio: SoundFont file is required for MIDI tracks")
)

// DefaultFetchTimeout bounds a single HTTP fetch.
const DefaultFetchTimeout = 30 * time.Second

// Decoder turns a track URL into a playable waveform.
type Decoder interface {
	Decode(ctx context.Context, url string) (*Waveform, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, url string) (*Waveform, error)

// Decode calls f(ctx, url).
func (f DecoderFunc) Decode(ctx context.Context, url string) (*Waveform, error) {
	return f(ctx, url)
}

// FetcherOptions configures a Fetcher. The zero value is usable.
type FetcherOptions struct {
	// HTTPClient is used for http and https URLs. Defaults to a client with
	// DefaultFetchTimeout.
	HTTPClient *http.Client

	// SoundFontPath is the .sf2 file used to render MIDI tracks.
	SoundFontPath string

	Logger *zap.Logger
}

// Fetcher is the production Decoder. http and https URLs are downloaded;
// anything else is read from the asset FileSystem. The file extension selects
// the codec: .wav, .mp3, .ogg/.oga, or .mid/.midi rendered with a SoundFont.
type Fetcher struct {
	assets    fileutil.FileSystem
	client    *http.Client
	log       *zap.Logger
	soundFont func() (*meltysynth.SoundFont, error)
}

// NewFetcher creates a Fetcher reading local assets from assets, which may be
// nil when every track is remote.
func NewFetcher(assets fileutil.FileSystem, opts FetcherOptions) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	sfPath := opts.SoundFontPath
	return &Fetcher{
		assets: assets,
		client: client,
		log:    log,
		soundFont: sync.OnceValues(func() (*meltysynth.SoundFont, error) {
			if sfPath == "" {
				return nil, ErrNoSoundFont
			}
			return loadSoundFont(nil, sfPath)
		}),
	}
}

// Decode fetches rawURL and decodes it into a Waveform.
func (f *Fetcher) Decode(ctx context.Context, rawURL string) (*Waveform, error) {
	start := time.Now()

	data, err := f.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	pcm, err := f.decode(rawURL, data)
	if err != nil {
		return nil, err
	}
	if len(pcm) < bytesPerFrame {
		return nil, fmt.Errorf("%w: %s: no samples", ErrDecode, rawURL)
	}

	w := &Waveform{URL: rawURL, PCM: pcm[:len(pcm)-len(pcm)%bytesPerFrame]}
	f.log.Debug("Waveform decoded",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Duration("length", w.Duration()),
		zap.Duration("elapsed", time.Since(start)))
	return w, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if isRemote(rawURL) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s: HTTP %d", ErrFetch, rawURL, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
		}
		return data, nil
	}

	if f.assets == nil {
		return nil, fmt.Errorf("%w: %s: no asset directory configured", ErrFetch, rawURL)
	}
	data, err := f.assets.ReadFile(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return data, nil
}

func (f *Fetcher) decode(rawURL string, data []byte) ([]byte, error) {
	ext := extension(rawURL)

	var (
		stream io.Reader
		err    error
	)
	switch ext {
	case ".wav":
		stream, err = wav.DecodeWithSampleRate(SampleRate, bytes.NewReader(data))
	case ".mp3":
		stream, err = mp3.DecodeWithSampleRate(SampleRate, bytes.NewReader(data))
	case ".ogg", ".oga":
		stream, err = vorbis.DecodeWithSampleRate(SampleRate, bytes.NewReader(data))
	case ".mid", ".midi":
		sf, sfErr := f.soundFont()
		if sfErr != nil {
			return nil, sfErr
		}
		pcm, err := renderMIDI(sf, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, rawURL, err)
		}
		return pcm, nil
	default:
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, ext, rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, rawURL, err)
	}

	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, rawURL, err)
	}
	return pcm, nil
}

func isRemote(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// extension returns the lower-cased extension of the URL path, ignoring any
// query string or fragment.
func extension(rawURL string) string {
	p := rawURL
	if isRemote(rawURL) {
		if u, err := url.Parse(rawURL); err == nil {
			p = u.Path
		}
	}
	return strings.ToLower(path.Ext(p))
}
