package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// execute はコマンドを実行し、Run に渡された設定を返す
func execute(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var got *Config
	root := NewRootCommand(Handlers{
		Run: func(cmd *cobra.Command, cfg *Config) error {
			got = cfg
			return nil
		},
	})
	root.SetArgs(args)
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))
	err := root.Execute()
	return got, err
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParseArgs_ValidArgs(t *testing.T) {
	defaults := Config{
		LogLevel:    "info",
		DisableFade: 200 * time.Millisecond,
		EventMin:    8 * time.Second,
		EventMax:    25 * time.Second,
		VolumeRamp:  200 * time.Millisecond,
	}
	with := func(fn func(*Config)) Config {
		c := defaults
		fn(&c)
		return c
	}

	tests := []struct {
		name     string
		args     []string
		expected Config
	}{
		{
			name:     "デフォルト設定",
			args:     []string{},
			expected: defaults,
		},
		{
			name:     "タイムアウト指定",
			args:     []string{"--timeout", "10s"},
			expected: with(func(c *Config) { c.Timeout = 10 * time.Second }),
		},
		{
			name:     "タイムアウト指定（短縮形）",
			args:     []string{"-t", "1m"},
			expected: with(func(c *Config) { c.Timeout = time.Minute }),
		},
		{
			name:     "ログレベル指定（短縮形）",
			args:     []string{"-l", "error"},
			expected: with(func(c *Config) { c.LogLevel = "error" }),
		},
		{
			name:     "ログレベルは大文字小文字を区別しない",
			args:     []string{"--log-level", "DEBUG"},
			expected: with(func(c *Config) { c.LogLevel = "debug" }),
		},
		{
			name:     "ヘッドレスモード",
			args:     []string{"--headless"},
			expected: with(func(c *Config) { c.Headless = true }),
		},
		{
			name: "カタログとアセット",
			args: []string{"--catalog", "my.yaml", "--assets", "/srv/sounds", "--soundfont", "gm.sf2"},
			expected: with(func(c *Config) {
				c.CatalogFile = "my.yaml"
				c.AssetsDir = "/srv/sounds"
				c.SoundFont = "gm.sf2"
			}),
		},
		{
			name: "複数オプション",
			args: []string{"-s", "ocean", "--event-min", "2s", "--event-max", "4s", "--disable-fade", "0s", "--log-file", "x.log"},
			expected: with(func(c *Config) {
				c.Soundscape = "ocean"
				c.EventMin = 2 * time.Second
				c.EventMax = 4 * time.Second
				c.DisableFade = 0
				c.LogFile = "x.log"
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *config != tt.expected {
				t.Errorf("config = %+v, want %+v", *config, tt.expected)
			}
		})
	}
}

func TestParseArgs_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"負のタイムアウト", []string{"--timeout", "-10s"}},
		{"無効なログレベル", []string{"--log-level", "invalid"}},
		{"無効なログレベル（短縮形）", []string{"-l", "trace"}},
		{"不正な間隔", []string{"--event-min", "10s", "--event-max", "5s"}},
		{"位置引数", []string{"thunderstorm"}},
		{"未知のフラグ", []string{"--volume", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseArgs_Env(t *testing.T) {
	t.Setenv("SOUNDSCAPE_HEADLESS", "1")
	t.Setenv("SOUNDSCAPE_LOG_LEVEL", "warn")
	t.Setenv("SOUNDSCAPE_TIMEOUT", "30s")
	t.Setenv("SOUNDSCAPE_SOUNDSCAPE", "cafe")

	config, err := execute(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !config.Headless || config.LogLevel != "warn" || config.Timeout != 30*time.Second || config.Soundscape != "cafe" {
		t.Errorf("environment not applied: %+v", *config)
	}

	// コマンドラインフラグが優先
	config, err = execute(t, "--log-level", "debug", "-s", "ocean")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.LogLevel != "debug" || config.Soundscape != "ocean" {
		t.Errorf("flags should win over environment: %+v", *config)
	}
}

func TestParseArgs_InvalidEnv(t *testing.T) {
	t.Setenv("SOUNDSCAPE_TIMEOUT", "soon")

	if _, err := execute(t); err == nil {
		t.Error("expected error for malformed environment value")
	}
}

func TestParseArgs_DotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SOUNDSCAPE_EVENT_MIN=1s\nSOUNDSCAPE_EVENT_MAX=3s\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Chdir(dir)
	t.Cleanup(func() {
		os.Unsetenv("SOUNDSCAPE_EVENT_MIN")
		os.Unsetenv("SOUNDSCAPE_EVENT_MAX")
	})

	config, err := execute(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.EventMin != time.Second || config.EventMax != 3*time.Second {
		t.Errorf(".env not applied: %+v", *config)
	}
}

func TestListCommand(t *testing.T) {
	var got *Config
	root := NewRootCommand(Handlers{
		List: func(cmd *cobra.Command, cfg *Config) error {
			got = cfg
			return nil
		},
	})
	root.SetArgs([]string{"list", "--catalog", "extra.yaml"})

	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.CatalogFile != "extra.yaml" {
		t.Errorf("list should receive the persistent flags, got %+v", got)
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"log-level":    "SOUNDSCAPE_LOG_LEVEL",
		"headless":     "SOUNDSCAPE_HEADLESS",
		"disable-fade": "SOUNDSCAPE_DISABLE_FADE",
	}
	for flag, want := range tests {
		if got := EnvName(flag); got != want {
			t.Errorf("EnvName(%q) = %q, want %q", flag, got, want)
		}
	}
}
