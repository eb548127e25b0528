// Package app はサウンドスケープエンジンの組み立てと実行を担う
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zurustar/soundscape/pkg/audio"
	"github.com/zurustar/soundscape/pkg/catalog"
	"github.com/zurustar/soundscape/pkg/cli"
	"github.com/zurustar/soundscape/pkg/fileutil"
	"github.com/zurustar/soundscape/pkg/logger"
	"github.com/zurustar/soundscape/pkg/soundscape"
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	in     io.Reader
	out    io.Writer
	config *cli.Config
	log    *zap.Logger

	// newOutput は出力バックエンドを作成する（テストで差し替える）
	newOutput func(headless bool, log *zap.Logger) audio.Output
}

// New Applicationを作成
// コマンドは in から読み、結果は out に書く
func New(in io.Reader, out io.Writer) *Application {
	return &Application{
		in:        in,
		out:       out,
		newOutput: defaultOutput,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	root := cli.NewRootCommand(cli.Handlers{
		Run:  app.runPlayer,
		List: app.listSoundscapes,
	})
	root.SetArgs(args)
	root.SetIn(app.in)
	root.SetOut(app.out)
	return root.Execute()
}

// runPlayer エンジンを組み立ててコンソールを実行する
func (app *Application) runPlayer(cmd *cobra.Command, config *cli.Config) error {
	app.config = config

	// 1. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	app.log.Info("Application started",
		zap.Bool("headless", config.Headless),
		zap.Duration("timeout", config.Timeout))

	// 2. カタログの読み込み
	cat, err := app.loadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	app.log.Info("Catalog loaded", zap.Int("soundscapes", cat.Len()))

	// 3. エンジンの組み立て
	orch := app.buildEngine(cat)
	defer orch.Dispose()

	// 4. タイムアウトとシグナル
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	con := newConsole(orch, cat, app.out, app.log)

	// 5. 起動時のサウンドスケープ
	if config.Soundscape != "" {
		if err := orch.SelectSoundscape(config.Soundscape); err != nil {
			return err
		}
		orch.Play(ctx)
		con.printStatus()
	}

	// 6. コマンドループ
	if err := con.run(ctx, app.in); err != nil {
		return err
	}

	app.log.Info("Application terminated normally")
	return nil
}

// listSoundscapes カタログの内容を表示する
func (app *Application) listSoundscapes(cmd *cobra.Command, config *cli.Config) error {
	app.config = config

	cat, err := app.loadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	printCatalog(app.out, cat)
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLogger(app.config.LogLevel, app.config.LogFile); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// loadCatalog 外部カタログが指定されていればそれを、なければ組み込みカタログを読み込む
func (app *Application) loadCatalog() (*catalog.Catalog, error) {
	if app.config.CatalogFile != "" {
		return catalog.LoadFile(app.config.CatalogFile)
	}
	return catalog.Default()
}

// buildEngine 出力・フェッチャー・キャッシュ・オーケストレーターを組み立てる
func (app *Application) buildEngine(cat *catalog.Catalog) *soundscape.Orchestrator {
	assetsDir := app.config.AssetsDir
	if assetsDir == "" {
		assetsDir = "."
	}

	sfPath := findSoundFont(app.config.SoundFont, assetsDir)
	if sfPath == "" {
		app.log.Warn("No SoundFont found, MIDI tracks will not play")
	} else {
		app.log.Info("SoundFont found", zap.String("path", sfPath))
	}

	fetcher := audio.NewFetcher(fileutil.NewRealFS(assetsDir), audio.FetcherOptions{
		SoundFontPath: sfPath,
		Logger:        app.log.Named("fetch"),
	})
	cache := audio.NewWaveformCache(fetcher, app.log.Named("cache"))
	out := app.newOutput(app.config.Headless, app.log.Named("output"))

	return soundscape.New(cat, out, cache, soundscape.Config{
		DisableFade: app.config.DisableFade,
		VolumeRamp:  app.config.VolumeRamp,
		EventInterval: audio.IntervalRange{
			Min: app.config.EventMin,
			Max: app.config.EventMax,
		},
	}, app.log.Named("engine"))
}

// defaultOutput ヘッドレスモードでは無音の出力を、それ以外はEbitengineの出力を使う
func defaultOutput(headless bool, log *zap.Logger) audio.Output {
	if headless {
		log.Info("Headless mode: audio output is silent")
		return audio.NewNullOutput()
	}
	return audio.NewEbitenOutput(nil, log)
}

// printCatalog サウンドスケープとトラックの一覧を表示する
func printCatalog(w io.Writer, cat *catalog.Catalog) {
	for _, s := range cat.List() {
		fmt.Fprintf(w, "%-14s %s\n", s.ID, s.Name)
		for _, t := range s.Tracks {
			fmt.Fprintf(w, "    %-12s %-5s %.2f  %s\n", t.ID, t.Kind, t.DefaultVolume, t.Label)
		}
	}
}
