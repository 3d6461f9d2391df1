package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/unreadbell/internal/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	command := "relay"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("unreadbell "+command, flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (optional, defaults to ~/.config/unreadbell/config.toml)")
	pollSeconds := fs.Int("poll", 0, "tick interval in seconds (optional, overrides tick_period)")
	address := fs.String("address", "", "listener address, or pipe path with the pipe transport (optional)")
	prefsPath := fs.String("prefs", "", "watch UI preferences path (optional)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: unreadbell [relay|listen|watch] [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		Address:    *address,
	}
	if poll := *pollSeconds; poll > 0 {
		opts.PollEvery = poll
	}

	var err error
	switch command {
	case "relay":
		err = app.Run(ctx, opts)
	case "listen":
		err = app.Listen(ctx, opts)
	case "watch":
		err = app.Watch(ctx, opts)
	default:
		fmt.Fprintf(os.Stderr, "unreadbell: unknown command %q\n", command)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "unreadbell: %v\n", err)
		return 1
	}
	return 0
}
