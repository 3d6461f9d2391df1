package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/unreadbell/internal/config"
	"github.com/five82/unreadbell/internal/conn"
	"github.com/five82/unreadbell/internal/detector"
	"github.com/five82/unreadbell/internal/hostapi"
	"github.com/five82/unreadbell/internal/listener"
	"github.com/five82/unreadbell/internal/logging"
	"github.com/five82/unreadbell/internal/metrics"
	"github.com/five82/unreadbell/internal/prefs"
	"github.com/five82/unreadbell/internal/snapshot"
	"github.com/five82/unreadbell/internal/state"
	"github.com/five82/unreadbell/internal/transport"
	"github.com/five82/unreadbell/internal/ui"
)

// Options configure every unreadbell command.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/unreadbell/prefs.toml
	PollEvery  int    // seconds; zero keeps the configured tick period
	// Address overrides the listener address, or the pipe path when the
	// pipe transport is selected.
	Address string
}

// Run relays unread state to the listener until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	base, cleanup, err := logging.New(logOptions(cfg, false))
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer cleanup()
	logger := base.Named(logging.ComponentRelay).Sugar()

	m := metrics.New()

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	dialer, prober, err := transport.New(transport.Kind(cfg.Transport))
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}
	if !cfg.Probe {
		prober = nil
	}

	manager, err := conn.New(conn.Options{
		Address:        cfg.Target(),
		Dialer:         dialer,
		Prober:         prober,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         base.Named(logging.ComponentConn).Sugar(),
		Metrics:        m,
	})
	if err != nil {
		return fmt.Errorf("init connection: %w", err)
	}

	sched := NewScheduler(SchedulerOptions{
		Source:      snapshot.NewFallback(source, base.Named(logging.ComponentSource).Sugar()),
		Detector:    detector.New(cfg.ForceInterval),
		Sender:      manager,
		TickPeriod:  cfg.TickPeriod,
		WarmupDelay: cfg.WarmupDelay,
		Logger:      base.Named(logging.ComponentScheduler).Sugar(),
		Metrics:     m,
	})
	manager.OnConnected(sched.RequestResync)

	logger.Infow("Relay starting",
		"transport", cfg.Transport,
		"target", cfg.Target(),
		"source", cfg.Source.Kind,
		"tick", cfg.TickPeriod,
		"force_interval", cfg.ForceInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	serveMetrics(gctx, g, cfg, m, base)

	err = g.Wait()
	logger.Infow("Relay stopped")
	return ignoreCanceled(err)
}

// Listen runs the receiving side until the context is cancelled.
func Listen(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	base, cleanup, err := logging.New(logOptions(cfg, false))
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer cleanup()

	m := metrics.New()
	g, gctx := errgroup.WithContext(ctx)
	startListener(gctx, g, cfg, &state.Store{}, m, base)
	serveMetrics(gctx, g, cfg, m, base)
	return ignoreCanceled(g.Wait())
}

// Watch runs the listener in the background and the terminal view in the
// foreground. Logs go to the log file only, which the view tails.
func Watch(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	base, cleanup, err := logging.New(logOptions(cfg, true))
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer cleanup()

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := &state.Store{}
	m := metrics.New()
	g, gctx := errgroup.WithContext(ctx)
	startListener(gctx, g, cfg, store, m, base)
	serveMetrics(gctx, g, cfg, m, base)

	uiErr := ui.Run(ui.Options{
		Store:      store,
		LogPath:    cfg.LogFilePath(),
		Source:     listenSource(cfg),
		PollTick:   time.Second,
		StaleAfter: 2 * cfg.ForceInterval,
		Prefs:      prefs.Load(prefsPath),
		PrefsPath:  prefsPath,
	})
	cancel()
	if err := ignoreCanceled(g.Wait()); err != nil {
		return err
	}
	return uiErr
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(&cfg, opts); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// applyOverrides layers command-line values over the loaded configuration.
func applyOverrides(cfg *config.Config, opts Options) error {
	if opts.PollEvery > 0 {
		cfg.TickPeriod = time.Duration(opts.PollEvery) * time.Second
	}
	if addr := strings.TrimSpace(opts.Address); addr != "" {
		if cfg.Transport == config.TransportPipe {
			cfg.PipePath = addr
		} else {
			cfg.Address = addr
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func logOptions(cfg config.Config, quiet bool) logging.Options {
	file := cfg.Log.File
	if quiet {
		file = cfg.LogFilePath()
	}
	return logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		File:   file,
		Quiet:  quiet,
	}
}

// newSource builds the configured unread state source.
func newSource(cfg config.Config) (snapshot.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceStatic:
		return snapshot.Static(snapshot.Empty()), nil
	case config.SourceFile:
		return snapshot.FileSource{Path: cfg.Source.Path}, nil
	case config.SourceHTTP:
		client, err := hostapi.NewClient(cfg.Source.URL, cfg.Source.Token)
		if err != nil {
			return nil, fmt.Errorf("init host api client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

func startListener(ctx context.Context, g *errgroup.Group, cfg config.Config, store *state.Store, m *metrics.Metrics, base *zap.Logger) {
	logger := base.Named(logging.ComponentListener).Sugar()

	var status *listener.PipeStatus
	if cfg.Listen.Output != "" {
		status = &listener.PipeStatus{Path: cfg.Listen.Output, Logger: logger}
	}
	lopts := listener.Options{Store: store, Logger: logger, Metrics: m}
	if status != nil {
		lopts.Status = status
	}
	l := listener.New(lopts)

	logger.Infow("Listener starting", "transport", cfg.Transport, "source", listenSource(cfg))
	g.Go(func() error {
		if status != nil {
			defer status.Close()
		}
		if cfg.Transport == config.TransportPipe {
			return l.ServePipe(ctx, cfg.ListenPipePath())
		}
		return l.ServeWebsocket(ctx, cfg.Listen.Bind)
	})
}

func listenSource(cfg config.Config) string {
	if cfg.Transport == config.TransportPipe {
		return cfg.ListenPipePath()
	}
	return cfg.Listen.Bind
}

func serveMetrics(ctx context.Context, g *errgroup.Group, cfg config.Config, m *metrics.Metrics, base *zap.Logger) {
	if cfg.MetricsBind == "" {
		return
	}
	base.Named(logging.ComponentMetrics).Sugar().Infow("Serving metrics", "bind", cfg.MetricsBind)
	g.Go(func() error { return m.Serve(ctx, cfg.MetricsBind) })
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
