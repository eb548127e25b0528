package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zurustar/soundscape/pkg/catalog"
	"github.com/zurustar/soundscape/pkg/soundscape"
)

const consoleHelp = `commands:
  list                      show the soundscapes in the catalog
  select <soundscape>       switch soundscape (pauses playback)
  play                      start every enabled track
  pause                     stop every track
  toggle <track> on|off     enable or disable a track
  volume <track> <0..1>     set a track's volume
  status                    show the current state
  help                      show this help
  quit                      exit`

// console は標準入力から読んだコマンドをオーケストレーターに渡す
type console struct {
	orch *soundscape.Orchestrator
	cat  *catalog.Catalog
	out  io.Writer
	log  *zap.Logger
}

func newConsole(orch *soundscape.Orchestrator, cat *catalog.Catalog, out io.Writer, log *zap.Logger) *console {
	if log == nil {
		log = zap.NewNop()
	}
	return &console{orch: orch, cat: cat, out: out, log: log}
}

// run は in が尽きるか、quit か、ctx が終了するまでコマンドを処理する
func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			// タイムアウトやシグナルは正常終了として扱う
			c.log.Info("Console stopped", zap.Error(context.Cause(ctx)))
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("failed to read commands: %w", err)
					}
				default:
				}
				return nil
			}
			if c.exec(ctx, line) {
				return nil
			}
		}
	}
}

// exec は1行のコマンドを実行し、終了要求なら true を返す
func (c *console) exec(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "quit", "exit":
		return true

	case "help":
		fmt.Fprintln(c.out, consoleHelp)

	case "list":
		printCatalog(c.out, c.cat)

	case "select":
		if len(args) != 1 {
			c.usage("select <soundscape>")
			return false
		}
		if err := c.orch.SelectSoundscape(args[0]); err != nil {
			if errors.Is(err, soundscape.ErrSoundscapeNotFound) {
				fmt.Fprintf(c.out, "unknown soundscape %q (try \"list\")\n", args[0])
			} else {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			return false
		}
		c.printStatus()

	case "play":
		if c.orch.CurrentSoundscapeID() == "" {
			fmt.Fprintln(c.out, "no soundscape selected")
			return false
		}
		c.orch.Play(ctx)
		c.printStatus()

	case "pause":
		c.orch.Pause()
		c.printStatus()

	case "toggle":
		if len(args) != 2 {
			c.usage("toggle <track> on|off")
			return false
		}
		enabled, err := parseSwitch(args[1])
		if err != nil {
			c.usage("toggle <track> on|off")
			return false
		}
		if !c.hasTrack(args[0]) {
			return false
		}
		c.orch.ToggleTrack(ctx, args[0], enabled)

	case "volume":
		if len(args) != 2 {
			c.usage("volume <track> <0..1>")
			return false
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			c.usage("volume <track> <0..1>")
			return false
		}
		if !c.hasTrack(args[0]) {
			return false
		}
		c.orch.SetTrackVolume(args[0], v)

	case "status":
		c.printStatus()

	default:
		fmt.Fprintf(c.out, "unknown command %q (try \"help\")\n", cmd)
	}
	return false
}

func (c *console) usage(s string) {
	fmt.Fprintf(c.out, "usage: %s\n", s)
}

func (c *console) hasTrack(id string) bool {
	for _, t := range c.orch.TrackStates() {
		if t.ID == id {
			return true
		}
	}
	fmt.Fprintf(c.out, "unknown track %q\n", id)
	return false
}

// printStatus はスナップショットを表示する
func (c *console) printStatus() {
	snap := c.orch.Snapshot()
	if snap.SoundscapeID == "" {
		fmt.Fprintln(c.out, "no soundscape selected")
		return
	}

	state := "paused"
	if snap.Playing {
		state = "playing"
	}
	fmt.Fprintf(c.out, "%s [%s]\n", snap.SoundscapeID, state)
	for _, t := range snap.Tracks {
		mark := " "
		if t.Active {
			mark = "*"
		}
		onOff := "off"
		if t.Enabled {
			onOff = "on"
		}
		fmt.Fprintf(c.out, "  %s %-12s %-5s %-3s %.2f\n", mark, t.ID, t.Kind, onOff, t.Volume)
	}
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid switch %q", s)
}
