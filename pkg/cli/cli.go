// Package cli はコマンドツリーと実行時設定を提供する
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix は設定を上書きする環境変数の接頭辞
// フラグ名の "-" を "_" に置き換えて大文字にしたものが続く（例: SOUNDSCAPE_LOG_LEVEL）
const EnvPrefix = "SOUNDSCAPE_"

// Config はコマンドライン引数と環境変数から解析された設定を保持する
type Config struct {
	CatalogFile string        // カタログYAMLのパス（空なら組み込みカタログ）
	AssetsDir   string        // 音声ファイルのディレクトリ（空ならカレントディレクトリ）
	SoundFont   string        // MIDIトラック用のSoundFont（.sf2）
	LogLevel    string        // ログレベル（debug, info, warn, error）
	LogFile     string        // ログファイル（空ならコンソールのみ）
	Headless    bool          // 音を出さないヘッドレスモード
	Timeout     time.Duration // タイムアウト時間（0は無制限）
	Soundscape  string        // 起動時に選択して再生するサウンドスケープ
	DisableFade time.Duration // トラック無効化時のフェードアウト時間
	EventMin    time.Duration // イベントトラックの最短間隔
	EventMax    time.Duration // イベントトラックの最長間隔
	VolumeRamp  time.Duration // 音量変更のランプ時間
}

// Handlers はサブコマンドの実処理
type Handlers struct {
	// Run はインタラクティブプレイヤーを起動する
	Run func(cmd *cobra.Command, cfg *Config) error
	// List はカタログを表示する
	List func(cmd *cobra.Command, cfg *Config) error
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NewRootCommand コマンドツリーを作成する
// フラグが優先され、指定されなかったフラグは環境変数（.env を含む）から補われる
func NewRootCommand(h Handlers) *cobra.Command {
	cfg := &Config{}

	root := &cobra.Command{
		Use:   "soundscape",
		Short: "Ambient soundscape player",
		Long: `soundscape plays layered ambient soundscapes: continuous loops such as
rain or waves, plus one-shot events such as distant thunder at random
intervals. Commands are read from standard input.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(); err != nil {
				return err
			}
			if err := applyEnv(cmd.Flags()); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if h.Run == nil {
				return cmd.Help()
			}
			return h.Run(cmd, cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.CatalogFile, "catalog", "", "catalog YAML file (default: built-in catalog)")
	pf.StringVar(&cfg.AssetsDir, "assets", "", "directory track paths are resolved against (default: working directory)")
	pf.StringVar(&cfg.SoundFont, "soundfont", "", "SoundFont (.sf2) used to render MIDI tracks")
	pf.StringVarP(&cfg.LogLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	pf.StringVar(&cfg.LogFile, "log-file", "", "also write JSON logs to this file, rotated")

	f := root.Flags()
	f.BoolVar(&cfg.Headless, "headless", false, "silent output, for servers and tests")
	f.DurationVarP(&cfg.Timeout, "timeout", "t", 0, "exit after this long (0 runs until quit)")
	f.StringVarP(&cfg.Soundscape, "soundscape", "s", "", "soundscape to select and play on start")
	f.DurationVar(&cfg.DisableFade, "disable-fade", 200*time.Millisecond, "fade-out before a disabled track stops")
	f.DurationVar(&cfg.EventMin, "event-min", 8*time.Second, "shortest delay between event occurrences")
	f.DurationVar(&cfg.EventMax, "event-max", 25*time.Second, "longest delay between event occurrences")
	f.DurationVar(&cfg.VolumeRamp, "volume-ramp", 200*time.Millisecond, "glide time for volume changes")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the soundscapes in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if h.List == nil {
				return nil
			}
			return h.List(cmd, cfg)
		},
	}
	root.AddCommand(list)

	return root
}

// Validate 設定値を検証する
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Timeout)
	}
	if c.DisableFade < 0 || c.VolumeRamp < 0 {
		return fmt.Errorf("fade and ramp durations must be non-negative")
	}
	if c.EventMin <= 0 || c.EventMax <= c.EventMin {
		return fmt.Errorf("event interval must satisfy 0 < min < max, got [%v, %v)", c.EventMin, c.EventMax)
	}
	return nil
}

// EnvName フラグ名に対応する環境変数名を返す
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// applyEnv 指定されなかったフラグに環境変数の値を設定する
func applyEnv(flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "help" {
			return
		}
		value, ok := os.LookupEnv(EnvName(f.Name))
		if !ok || value == "" {
			return
		}
		if err := flags.Set(f.Name, value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", EnvName(f.Name), err))
		}
	})
	return errors.Join(errs...)
}

// loadDotEnv カレントディレクトリの .env を読み込む（既存の環境変数は上書きしない）
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load .env: %w", err)
}
