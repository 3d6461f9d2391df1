package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the resolved relay and listener configuration.
type Config struct {
	Address     string
	AddressFile string
	Transport   string
	PipePath    string

	TickPeriod     time.Duration
	WarmupDelay    time.Duration
	ReconnectDelay time.Duration
	ForceInterval  time.Duration
	Probe          bool

	Source      SourceConfig
	Log         LogConfig
	MetricsBind string
	Listen      ListenConfig
}

// SourceConfig selects where snapshots come from.
type SourceConfig struct {
	Kind  string // static, file or http
	URL   string
	Token string
	Path  string
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// ListenConfig controls the receiving side.
type ListenConfig struct {
	Bind     string
	PipePath string
	Output   string
}

const (
	TransportWebsocket = "websocket"
	TransportPipe      = "pipe"

	SourceStatic = "static"
	SourceFile   = "file"
	SourceHTTP   = "http"
)

const (
	defaultConfigPath     = "~/.config/unreadbell/config.toml"
	defaultAddress        = "ws://127.0.0.1:3631"
	defaultPipePath       = "/tmp/unread-bell-discord.pipe"
	defaultTickPeriod     = time.Second
	defaultWarmupDelay    = 2500 * time.Millisecond
	defaultReconnectDelay = 5 * time.Second
	defaultForceInterval  = 120 * time.Second
	defaultSourcePath     = "~/.local/share/unreadbell/unread.json"
	defaultLogFile        = "~/.local/share/unreadbell/logs/unreadbell.log"
	defaultListenBind     = "127.0.0.1:3631"

	envPrefix = "UNREADBELL_"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Address:        defaultAddress,
		Transport:      TransportWebsocket,
		PipePath:       defaultPipePath,
		TickPeriod:     defaultTickPeriod,
		WarmupDelay:    defaultWarmupDelay,
		ReconnectDelay: defaultReconnectDelay,
		ForceInterval:  defaultForceInterval,
		Probe:          true,
		Source:         SourceConfig{Kind: SourceFile, Path: mustExpand(defaultSourcePath)},
		Log:            LogConfig{Level: "info", Format: "console"},
		Listen:         ListenConfig{Bind: defaultListenBind},
	}
}

type rawConfig struct {
	Address        string `toml:"address"`
	AddressFile    string `toml:"address_file"`
	Transport      string `toml:"transport"`
	PipePath       string `toml:"pipe_path"`
	TickPeriod     string `toml:"tick_period"`
	WarmupDelay    string `toml:"warmup_delay"`
	ReconnectDelay string `toml:"reconnect_delay"`
	ForceInterval  string `toml:"force_interval"`
	Probe          *bool  `toml:"probe"`
	MetricsBind    string `toml:"metrics_bind"`

	Source struct {
		Kind  string `toml:"kind"`
		URL   string `toml:"url"`
		Token string `toml:"token"`
		Path  string `toml:"path"`
	} `toml:"source"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		File   string `toml:"file"`
	} `toml:"log"`

	Listen struct {
		Bind     string `toml:"bind"`
		PipePath string `toml:"pipe_path"`
		Output   string `toml:"output"`
	} `toml:"listen"`
}

// Load reads the TOML config at path (default ~/.config/unreadbell/config.toml),
// falls back to defaults when it is missing, then applies the address file and
// UNREADBELL_* environment overrides. A .env file in the working directory is
// loaded first when present.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	raw, err := readRaw(resolved)
	if err != nil {
		return Config{}, err
	}
	if raw != nil {
		if err := cfg.apply(raw); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyAddressFile(); err != nil {
		return Config{}, err
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readRaw(path string) (*rawConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &raw, nil
}

func (c *Config) apply(raw *rawConfig) error {
	setString(&c.Address, raw.Address)
	setPath(&c.AddressFile, raw.AddressFile)
	setString(&c.Transport, strings.ToLower(raw.Transport))
	setPath(&c.PipePath, raw.PipePath)
	setString(&c.MetricsBind, raw.MetricsBind)
	if raw.Probe != nil {
		c.Probe = *raw.Probe
	}

	for _, d := range []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"tick_period", raw.TickPeriod, &c.TickPeriod},
		{"warmup_delay", raw.WarmupDelay, &c.WarmupDelay},
		{"reconnect_delay", raw.ReconnectDelay, &c.ReconnectDelay},
		{"force_interval", raw.ForceInterval, &c.ForceInterval},
	} {
		if err := setDuration(d.dst, d.key, d.value); err != nil {
			return err
		}
	}

	setString(&c.Source.Kind, strings.ToLower(raw.Source.Kind))
	setString(&c.Source.URL, raw.Source.URL)
	setString(&c.Source.Token, raw.Source.Token)
	setPath(&c.Source.Path, raw.Source.Path)

	setString(&c.Log.Level, raw.Log.Level)
	setString(&c.Log.Format, strings.ToLower(raw.Log.Format))
	setPath(&c.Log.File, raw.Log.File)

	setString(&c.Listen.Bind, raw.Listen.Bind)
	setPath(&c.Listen.PipePath, raw.Listen.PipePath)
	setPath(&c.Listen.Output, raw.Listen.Output)
	return nil
}

// applyAddressFile replaces Address with the first non-empty line of the
// address file. A missing file leaves Address unchanged.
func (c *Config) applyAddressFile() error {
	if c.AddressFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.AddressFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read address file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			c.Address = line
			break
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("ADDRESS"); ok {
		c.Address = v
	}
	if v, ok := get("TRANSPORT"); ok {
		c.Transport = strings.ToLower(v)
	}
	if v, ok := get("PIPE_PATH"); ok {
		c.PipePath = mustExpand(v)
	}
	if v, ok := get("PROBE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sPROBE: %w", envPrefix, err)
		}
		c.Probe = b
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"TICK_PERIOD", &c.TickPeriod},
		{"WARMUP_DELAY", &c.WarmupDelay},
		{"RECONNECT_DELAY", &c.ReconnectDelay},
		{"FORCE_INTERVAL", &c.ForceInterval},
	} {
		if v, ok := get(d.key); ok {
			if err := setDuration(d.dst, envPrefix+d.key, v); err != nil {
				return err
			}
		}
	}
	if v, ok := get("SOURCE_KIND"); ok {
		c.Source.Kind = strings.ToLower(v)
	}
	if v, ok := get("SOURCE_URL"); ok {
		c.Source.URL = v
	}
	if v, ok := get("SOURCE_TOKEN"); ok {
		c.Source.Token = v
	}
	if v, ok := get("SOURCE_PATH"); ok {
		c.Source.Path = mustExpand(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := get("LOG_FILE"); ok {
		c.Log.File = mustExpand(v)
	}
	if v, ok := get("METRICS_BIND"); ok {
		c.MetricsBind = v
	}
	if v, ok := get("LISTEN_BIND"); ok {
		c.Listen.Bind = v
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportWebsocket:
		u, err := url.Parse(c.Address)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", c.Address, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("invalid address %q: scheme must be ws or wss", c.Address)
		}
	case TransportPipe:
		if c.PipePath == "" {
			return fmt.Errorf("pipe transport requires pipe_path")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	for name, d := range map[string]time.Duration{
		"tick_period":     c.TickPeriod,
		"reconnect_delay": c.ReconnectDelay,
		"force_interval":  c.ForceInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.WarmupDelay < 0 {
		return fmt.Errorf("warmup_delay must not be negative, got %s", c.WarmupDelay)
	}

	switch c.Source.Kind {
	case SourceStatic:
	case SourceFile:
		if c.Source.Path == "" {
			return fmt.Errorf("file source requires source.path")
		}
	case SourceHTTP:
		if c.Source.URL == "" {
			return fmt.Errorf("http source requires source.url")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	return nil
}

// Target returns the address the relay dials for the configured transport.
func (c Config) Target() string {
	if c.Transport == TransportPipe {
		return c.PipePath
	}
	return c.Address
}

// ListenPipePath returns the FIFO the listener reads in pipe mode.
func (c Config) ListenPipePath() string {
	if c.Listen.PipePath != "" {
		return c.Listen.PipePath
	}
	return c.PipePath
}

// LogFilePath returns the configured log file, or the default location when
// unset. The watch UI always needs a file to tail.
func (c Config) LogFilePath() string {
	if strings.TrimSpace(c.Log.File) != "" {
		return c.Log.File
	}
	return mustExpand(defaultLogFile)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setPath(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = mustExpand(v)
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
