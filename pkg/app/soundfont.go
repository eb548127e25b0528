package app

import (
	"os"
	"path/filepath"
)

// DefaultSoundFontName is the default SoundFont filename to search for.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// findSoundFont returns the SoundFont used for MIDI tracks, searching in the
// following order:
// 1. The explicitly configured path
// 2. The assets directory
// 3. Current directory
//
// Parameters:
//   - configured: Path given on the command line or in the environment
//   - assetsDir: Directory the track files are read from
//
// Returns:
//   - string: Path to the SoundFont file, or "" if none was found
func findSoundFont(configured, assetsDir string) string {
	// 1. An explicit path is used as is; a missing file surfaces when a MIDI
	// track is first decoded.
	if configured != "" {
		return configured
	}

	// 2. Assets directory
	if assetsDir != "" {
		p := filepath.Join(assetsDir, DefaultSoundFontName)
		if fileExists(p) {
			return p
		}
	}

	// 3. Current directory
	if fileExists(DefaultSoundFontName) {
		return DefaultSoundFontName
	}

	return ""
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
