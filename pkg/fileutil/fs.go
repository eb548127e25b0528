// Package fileutil provides unified read access to audio assets stored either
// in a directory on disk or in an embedded file system.
package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileSystem resolves asset names to their contents.
type FileSystem interface {
	// ReadFile reads the named asset. Lookup falls back to a
	// case-insensitive match on the last path element.
	ReadFile(name string) ([]byte, error)
	// BasePath returns the root the asset names are resolved against.
	BasePath() string
}

// RealFS reads assets from a directory on disk.
type RealFS struct {
	basePath string
}

// NewRealFS creates a FileSystem rooted at basePath.
func NewRealFS(basePath string) *RealFS {
	return &RealFS{basePath: basePath}
}

func (r *RealFS) ReadFile(name string) ([]byte, error) {
	p := filepath.Join(r.basePath, filepath.FromSlash(cleanName(name)))
	if _, err := os.Stat(p); err != nil {
		actual, findErr := FindFileCaseInsensitive(filepath.Dir(p), filepath.Base(p))
		if findErr != nil {
			return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, name)
		}
		p = actual
	}
	return os.ReadFile(p)
}

func (r *RealFS) BasePath() string {
	return r.basePath
}

// FSys reads assets from an fs.FS such as an embed.FS.
type FSys struct {
	fsys     fs.FS
	basePath string
}

// NewFSys creates a FileSystem over fsys with names resolved under basePath.
func NewFSys(fsys fs.FS, basePath string) *FSys {
	return &FSys{fsys: fsys, basePath: basePath}
}

func (e *FSys) ReadFile(name string) ([]byte, error) {
	p := cleanName(name)
	if e.basePath != "" {
		p = path.Join(e.basePath, p)
	}
	data, err := fs.ReadFile(e.fsys, p)
	if err == nil {
		return data, nil
	}
	actual, findErr := FindFileCaseInsensitiveFS(e.fsys, path.Dir(p), path.Base(p))
	if findErr != nil {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, name)
	}
	return fs.ReadFile(e.fsys, actual)
}

func (e *FSys) BasePath() string {
	return e.basePath
}

// cleanName strips leading separators and normalizes to forward slashes.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimLeft(name, "/")
}
