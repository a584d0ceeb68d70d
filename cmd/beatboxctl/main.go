// Command beatboxctl controls a guild's player from the terminal through the
// dashboard socket. Actions show their predicted result straight away and
// the confirmed state once the bot broadcasts it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/sonroyaalmerol/beatbox/internal/mirror"
	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/utils"
)

const usage = `usage: beatboxctl [flags] <command> [args]

commands:
  watch                 print every state change
  pause | resume | skip | previous | stop | shuffle | clear
  seek <position>       seconds, 1m30s or 1:30
  volume <0-100>
  repeat <off|track|queue>
  add <query>
  remove <position>
  move <from> <to>

flags:
`

var errUsage = errors.New("bad usage")

func main() {
	fs := flag.NewFlagSet("beatboxctl", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:3001/ws", "dashboard socket URL")
	guild := fs.String("guild", os.Getenv("BEATBOX_GUILD"), "guild ID")
	user := fs.String("user", os.Getenv("BEATBOX_USER"), "your Discord user ID")
	requeue := fs.Bool("requeue", true, "bot requeues finished tracks in queue repeat mode")
	wait := fs.Duration("wait", 3*time.Second, "how long to wait for the confirmed state")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if fs.NArg() == 0 || *guild == "" {
		fs.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, options{
		url: *url, guild: *guild, user: *user, requeue: *requeue, wait: *wait,
	}, fs.Args())
	if errors.Is(err, errUsage) {
		fs.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		color.New(color.FgHiRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type options struct {
	url     string
	guild   string
	user    string
	requeue bool
	wait    time.Duration
}

func run(ctx context.Context, opts options, args []string) error {
	action, err := parseAction(args)
	if err != nil {
		return err
	}

	out := newPrinter(os.Stdout)
	c, err := mirror.Dial(ctx, opts.url, opts.guild, mirror.ClientOptions{
		UserID:          opts.user,
		RequeueOnRepeat: opts.requeue,
		OnError: func(p state.PlayerErrorPayload) {
			out.failure(p.Message)
		},
		OnResults: func(r state.SearchResult) {
			out.results(r)
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	joinCtx, cancelJoin := context.WithTimeout(ctx, 10*time.Second)
	defer cancelJoin()
	if err := c.WaitJoined(joinCtx); err != nil {
		return fmt.Errorf("join guild %s: %w", opts.guild, err)
	}

	if action == nil {
		out.state(c.Store().State())
		c.Store().OnChange(out.state)
		select {
		case <-ctx.Done():
			return c.Leave()
		case <-c.Done():
			return errors.New("connection closed")
		}
	}

	changes := make(chan state.PlayerState, 16)
	c.Store().OnChange(func(ps state.PlayerState) {
		select {
		case changes <- ps:
		default:
		}
	})
	if err := action(c); err != nil {
		return err
	}
	// predicted changes print first, then the server's answer
	timer := time.NewTimer(opts.wait)
	defer timer.Stop()
	for {
		select {
		case ps := <-changes:
			out.state(ps)
		case <-timer.C:
			return c.Leave()
		case <-ctx.Done():
			return c.Leave()
		case <-c.Done():
			return nil
		}
	}
}

type action func(*mirror.Client) error

func intArg(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, errUsage
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number: %w", args[i], errUsage)
	}
	return n, nil
}

// parseAction maps command line arguments to a client action. watch maps to
// a nil action.
func parseAction(args []string) (action, error) {
	if len(args) == 0 {
		return nil, errUsage
	}
	switch args[0] {
	case "watch":
		return nil, nil
	case "pause":
		return (*mirror.Client).Pause, nil
	case "resume":
		return (*mirror.Client).Resume, nil
	case "skip":
		return (*mirror.Client).Skip, nil
	case "previous":
		return (*mirror.Client).Previous, nil
	case "stop":
		return (*mirror.Client).Stop, nil
	case "shuffle":
		return (*mirror.Client).Shuffle, nil
	case "clear":
		return (*mirror.Client).Clear, nil
	case "seek":
		if len(args) < 2 {
			return nil, errUsage
		}
		secs := utils.ParseDurationString(args[1])
		if secs < 0 {
			return nil, fmt.Errorf("bad position %q: %w", args[1], errUsage)
		}
		return func(c *mirror.Client) error { return c.Seek(int64(secs) * 1000) }, nil
	case "volume":
		v, err := intArg(args, 1)
		if err != nil {
			return nil, err
		}
		if v < 0 || v > state.MaxVolume {
			return nil, fmt.Errorf("volume %d out of range: %w", v, errUsage)
		}
		return func(c *mirror.Client) error { return c.SetVolume(v) }, nil
	case "repeat":
		if len(args) < 2 {
			return nil, errUsage
		}
		mode, err := state.ParseRepeatMode(args[1])
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, errUsage)
		}
		return func(c *mirror.Client) error { return c.SetRepeat(mode) }, nil
	case "add":
		if len(args) < 2 {
			return nil, errUsage
		}
		query := strings.Join(args[1:], " ")
		return func(c *mirror.Client) error { return c.Add(query) }, nil
	case "remove":
		pos, err := intArg(args, 1)
		if err != nil {
			return nil, err
		}
		return func(c *mirror.Client) error { return c.Remove(pos - 1) }, nil
	case "move":
		from, err := intArg(args, 1)
		if err != nil {
			return nil, err
		}
		to, err := intArg(args, 2)
		if err != nil {
			return nil, err
		}
		return func(c *mirror.Client) error { return c.Move(from-1, to-1) }, nil
	}
	return nil, fmt.Errorf("unknown command %q: %w", args[0], errUsage)
}
