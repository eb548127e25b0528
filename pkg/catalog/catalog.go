// Package catalog provides the read-only soundscape catalog: the list of
// soundscapes and, for each one, the tracks that play together.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when a catalog document fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Kind distinguishes continuous loops from randomized one-shot events.
type Kind string

const (
	// KindLoop tracks play continuously through a LoopPlayer.
	KindLoop Kind = "loop"
	// KindEvent tracks fire at random intervals through an EventScheduler.
	KindEvent Kind = "event"
)

// Track describes one audio source within a soundscape.
type Track struct {
	ID            string
	Label         string
	URL           string
	Loop          bool
	DefaultVolume float64
	Kind          Kind
	Icon          string
}

// Soundscape is a named bundle of tracks intended to play together.
type Soundscape struct {
	ID     string
	Name   string
	Icon   string
	Tracks []Track
}

// Catalog is an immutable, ordered set of soundscapes.
type Catalog struct {
	soundscapes []Soundscape
	index       map[string]int
}

// document is the on-disk YAML layout.
type document struct {
	Soundscapes []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Icon   string `yaml:"icon"`
		Tracks []struct {
			ID            string   `yaml:"id"`
			Label         string   `yaml:"label"`
			URL           string   `yaml:"url"`
			Loop          bool     `yaml:"loop"`
			DefaultVolume *float64 `yaml:"defaultVolume"`
			Kind          Kind     `yaml:"kind"`
			Icon          string   `yaml:"icon"`
		} `yaml:"tracks"`
	} `yaml:"soundscapes"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads and parses a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document and validates it.
//
// Tracks without a label get one derived from their id ("light_rain" becomes
// "Light Rain"), tracks without a kind are loops, and tracks without a
// defaultVolume play at full volume.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	c := &Catalog{index: make(map[string]int, len(doc.Soundscapes))}
	for _, s := range doc.Soundscapes {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: soundscape without id", ErrInvalidCatalog)
		}
		if _, dup := c.index[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate soundscape id %q", ErrInvalidCatalog, s.ID)
		}

		sc := Soundscape{ID: s.ID, Name: s.Name, Icon: s.Icon}
		if sc.Name == "" {
			sc.Name = labelFromID(s.ID)
		}

		seen := make(map[string]bool, len(s.Tracks))
		for _, t := range s.Tracks {
			if t.ID == "" {
				return nil, fmt.Errorf("%w: soundscape %q has a track without id", ErrInvalidCatalog, s.ID)
			}
			if seen[t.ID] {
				return nil, fmt.Errorf("%w: duplicate track id %q in soundscape %q", ErrInvalidCatalog, t.ID, s.ID)
			}
			seen[t.ID] = true

			if t.URL == "" {
				return nil, fmt.Errorf("%w: track %q has no url", ErrInvalidCatalog, t.ID)
			}

			kind := t.Kind
			switch kind {
			case "":
				kind = KindLoop
			case KindLoop, KindEvent:
			default:
				return nil, fmt.Errorf("%w: track %q has unknown kind %q", ErrInvalidCatalog, t.ID, t.Kind)
			}

			volume := 1.0
			if t.DefaultVolume != nil {
				volume = *t.DefaultVolume
			}
			if volume < 0 || volume > 1 {
				return nil, fmt.Errorf("%w: track %q defaultVolume %v outside [0,1]", ErrInvalidCatalog, t.ID, volume)
			}

			label := t.Label
			if label == "" {
				label = labelFromID(t.ID)
			}

			sc.Tracks = append(sc.Tracks, Track{
				ID:            t.ID,
				Label:         label,
				URL:           t.URL,
				Loop:          t.Loop,
				DefaultVolume: volume,
				Kind:          kind,
				Icon:          t.Icon,
			})
		}

		c.index[sc.ID] = len(c.soundscapes)
		c.soundscapes = append(c.soundscapes, sc)
	}

	return c, nil
}

// Soundscape looks up a soundscape by id. The returned value is a copy.
func (c *Catalog) Soundscape(id string) (Soundscape, bool) {
	i, ok := c.index[id]
	if !ok {
		return Soundscape{}, false
	}
	return c.soundscapes[i].clone(), true
}

// List returns all soundscapes in declaration order.
func (c *Catalog) List() []Soundscape {
	out := make([]Soundscape, len(c.soundscapes))
	for i, s := range c.soundscapes {
		out[i] = s.clone()
	}
	return out
}

// Len returns the number of soundscapes.
func (c *Catalog) Len() int {
	return len(c.soundscapes)
}

func (s Soundscape) clone() Soundscape {
	s.Tracks = append([]Track(nil), s.Tracks...)
	return s
}

func labelFromID(id string) string {
	words := strings.NewReplacer("_", " ", "-", " ").Replace(id)
	return cases.Title(language.English).String(words)
}
