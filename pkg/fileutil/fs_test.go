package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestRealFS_ReadFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "sounds"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "sounds", "Rain.OGG"), []byte("rain"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	rfs := NewRealFS(tmpDir)

	tests := []struct {
		name       string
		file       string
		shouldFind bool
	}{
		{"exact match", "sounds/Rain.OGG", true},
		{"case-insensitive match", "sounds/rain.ogg", true},
		{"leading slash", "/sounds/rain.ogg", true},
		{"backslashes", "sounds\\RAIN.ogg", true},
		{"missing file", "sounds/wind.ogg", false},
		{"missing directory", "nowhere/rain.ogg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := rfs.ReadFile(tt.file)
			if tt.shouldFind {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if string(data) != "rain" {
					t.Errorf("got %q, want %q", data, "rain")
				}
				return
			}
			if !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("expected fs.ErrNotExist, got %v", err)
			}
		})
	}

	if rfs.BasePath() != tmpDir {
		t.Errorf("BasePath() = %q, want %q", rfs.BasePath(), tmpDir)
	}
}

func TestFSys_ReadFile(t *testing.T) {
	mapFS := fstest.MapFS{
		"assets/sounds/Thunder.wav": &fstest.MapFile{Data: []byte("boom")},
		"top.wav":                   &fstest.MapFile{Data: []byte("top")},
	}

	tests := []struct {
		name     string
		basePath string
		file     string
		want     string
		wantErr  bool
	}{
		{"with base path", "assets", "sounds/Thunder.wav", "boom", false},
		{"case-insensitive", "assets", "sounds/THUNDER.WAV", "boom", false},
		{"no base path", "", "top.wav", "top", false},
		{"case-insensitive at root", "", "TOP.WAV", "top", false},
		{"missing", "assets", "sounds/wind.wav", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := NewFSys(mapFS, tt.basePath).ReadFile(tt.file)
			if tt.wantErr {
				if !errors.Is(err, fs.ErrNotExist) {
					t.Errorf("expected fs.ErrNotExist, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %q, want %q", data, tt.want)
			}
		})
	}
}

func TestFindFileCaseInsensitive_SkipsDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, "rain.ogg"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	if _, err := FindFileCaseInsensitive(tmpDir, "RAIN.OGG"); err == nil {
		t.Error("directories must not match")
	}
}

func TestFindFileCaseInsensitive_NonexistentDir(t *testing.T) {
	if _, err := FindFileCaseInsensitive("/nonexistent/directory/path", "test.txt"); err == nil {
		t.Error("expected error for nonexistent directory")
	}
}
