// Package config holds partkit's file configuration.
//
// Configuration files may be YAML (.yaml, .yml) or TOML (.toml). Every field
// is optional; missing fields keep the values from Default.
//
//	resolver:
//	  command: tsci
//	  subcommand: import
//	  selection_timeout: 2m
//	library:
//	  dir: ./lib
//	  ignore: ["*.test.tsx"]
//	logging:
//	  level: debug
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/partkit/library"
	"github.com/randalmurphal/partkit/resolver"
)

// Config is the complete partkit configuration.
type Config struct {
	Resolver ResolverConfig `json:"resolver" yaml:"resolver" toml:"resolver" mapstructure:"resolver"`
	Library  LibraryConfig  `json:"library" yaml:"library" toml:"library" mapstructure:"library"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging" toml:"logging" mapstructure:"logging"`
}

// ResolverConfig configures the resolver CLI and session handling.
type ResolverConfig struct {
	// Command is the resolver binary.
	// Default: "tsci"
	Command string `json:"command" yaml:"command" toml:"command" mapstructure:"command"`

	// Subcommand is passed before the query. Empty passes the query alone.
	// Default: "import"
	Subcommand string `json:"subcommand" yaml:"subcommand" toml:"subcommand" mapstructure:"subcommand"`

	// WorkDir is the resolver's working directory.
	// Default: the current directory.
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir" mapstructure:"work_dir"`

	// PTY runs the resolver on a pseudo-terminal.
	PTY bool `json:"pty" yaml:"pty" toml:"pty" mapstructure:"pty"`

	// Env provides additional environment variables for the resolver.
	Env map[string]string `json:"env" yaml:"env" toml:"env" mapstructure:"env"`

	// NoResultsSentinel is the line the resolver prints when nothing matches.
	NoResultsSentinel string `json:"no_results_sentinel" yaml:"no_results_sentinel" toml:"no_results_sentinel" mapstructure:"no_results_sentinel"`

	// OptionSettle is how long the resolver must stay quiet after an option
	// before the candidates are reported.
	// Default: 100ms.
	OptionSettle time.Duration `json:"option_settle" yaml:"option_settle" toml:"option_settle" mapstructure:"option_settle"`

	// LaunchTimeout bounds the wait for the first options. 0 waits forever.
	LaunchTimeout time.Duration `json:"launch_timeout" yaml:"launch_timeout" toml:"launch_timeout" mapstructure:"launch_timeout"`

	// SelectionTimeout bounds the wait for an import confirmation.
	// 0 waits forever.
	SelectionTimeout time.Duration `json:"selection_timeout" yaml:"selection_timeout" toml:"selection_timeout" mapstructure:"selection_timeout"`

	// KillGrace is how long a terminated resolver gets before SIGKILL.
	// Default: 5 seconds.
	KillGrace time.Duration `json:"kill_grace" yaml:"kill_grace" toml:"kill_grace" mapstructure:"kill_grace"`

	// MaxSessions caps concurrently pending selections.
	// Default: 100.
	MaxSessions int `json:"max_sessions" yaml:"max_sessions" toml:"max_sessions" mapstructure:"max_sessions"`

	// SessionTTL closes sessions idle for longer. 0 disables expiry.
	SessionTTL time.Duration `json:"session_ttl" yaml:"session_ttl" toml:"session_ttl" mapstructure:"session_ttl"`
}

// LibraryConfig configures the local component library.
type LibraryConfig struct {
	// Dir is the library directory.
	// Default: $VHL_LIBRARY_DIR, else ./lib
	Dir string `json:"dir" yaml:"dir" toml:"dir" mapstructure:"dir"`

	// Extension is the component file extension.
	// Default: ".tsx"
	Extension string `json:"extension" yaml:"extension" toml:"extension" mapstructure:"extension"`

	// Ignore lists glob patterns of file names to skip.
	Ignore []string `json:"ignore" yaml:"ignore" toml:"ignore" mapstructure:"ignore"`

	// Watch keeps a cached listing invalidated by filesystem events.
	Watch bool `json:"watch" yaml:"watch" toml:"watch" mapstructure:"watch"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `json:"level" yaml:"level" toml:"level" mapstructure:"level"`

	// Format is "text" or "json".
	// Default: "text"
	Format string `json:"format" yaml:"format" toml:"format" mapstructure:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Resolver: ResolverConfig{
			Command:           "tsci",
			Subcommand:        "import",
			NoResultsSentinel: resolver.NoResultsMessage,
			OptionSettle:      resolver.DefaultOptionSettle,
			KillGrace:         5 * time.Second,
			MaxSessions:       100,
		},
		Library: LibraryConfig{
			Extension: library.DefaultExtension,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads a YAML or TOML file on top of Default, applies environment
// overrides and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q, expected .yaml, .yml or .toml", ext)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvLibraryDir      = library.EnvLibraryDir
	EnvResolverCommand = "PARTKIT_RESOLVER_COMMAND"
)

// ApplyEnv overrides fields from the environment. Unset or empty variables
// leave the configuration unchanged.
func (c *Config) ApplyEnv() {
	if dir := os.Getenv(EnvLibraryDir); dir != "" {
		c.Library.Dir = dir
	}
	if cmd := os.Getenv(EnvResolverCommand); cmd != "" {
		c.Resolver.Command = cmd
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Resolver.Command == "" {
		errs = append(errs, errors.New("resolver.command is required"))
	}
	if c.Resolver.OptionSettle < 0 {
		errs = append(errs, errors.New("resolver.option_settle must not be negative"))
	}
	if c.Resolver.LaunchTimeout < 0 {
		errs = append(errs, errors.New("resolver.launch_timeout must not be negative"))
	}
	if c.Resolver.SelectionTimeout < 0 {
		errs = append(errs, errors.New("resolver.selection_timeout must not be negative"))
	}
	if c.Resolver.KillGrace < 0 {
		errs = append(errs, errors.New("resolver.kill_grace must not be negative"))
	}
	if c.Resolver.SessionTTL < 0 {
		errs = append(errs, errors.New("resolver.session_ttl must not be negative"))
	}
	if c.Resolver.MaxSessions < 0 {
		errs = append(errs, errors.New("resolver.max_sessions must not be negative"))
	}
	if ext := c.Library.Extension; ext != "" && !strings.HasPrefix(ext, ".") {
		errs = append(errs, fmt.Errorf("library.extension %q must start with a dot", ext))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q, expected one of: text, json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// LibraryOptions converts the library section to library options.
func (c *Config) LibraryOptions(logger *slog.Logger) []library.Option {
	opts := []library.Option{
		library.WithExtension(c.Library.Extension),
		library.WithIgnore(c.Library.Ignore...),
	}
	if c.Library.Dir != "" {
		opts = append(opts, library.WithDir(c.Library.Dir))
	}
	if logger != nil {
		opts = append(opts, library.WithLogger(logger))
	}
	return opts
}

// ResolverOptions converts the resolver section to resolver options. store
// is the local library the resolver consults first.
func (c *Config) ResolverOptions(store resolver.LocalStore, logger *slog.Logger) []resolver.Option {
	r := c.Resolver
	opts := []resolver.Option{
		resolver.WithCommand(r.Command),
		resolver.WithSubcommand(r.Subcommand),
		resolver.WithWorkDir(r.WorkDir),
		resolver.WithPTY(r.PTY),
		resolver.WithEnv(r.Env),
		resolver.WithOptionSettle(r.OptionSettle),
		resolver.WithLaunchTimeout(r.LaunchTimeout),
		resolver.WithSelectionTimeout(r.SelectionTimeout),
		resolver.WithKillGrace(r.KillGrace),
		resolver.WithMaxSessions(r.MaxSessions),
		resolver.WithSessionTTL(r.SessionTTL),
	}
	if r.NoResultsSentinel != "" {
		opts = append(opts, resolver.WithNoResultsSentinel(r.NoResultsSentinel))
	}
	if c.Library.Extension != "" {
		opts = append(opts, resolver.WithExtension(c.Library.Extension))
	}
	if store != nil {
		opts = append(opts, resolver.WithLibrary(store))
	}
	if logger != nil {
		opts = append(opts, resolver.WithLogger(logger))
	}
	return opts
}

// NewLogger builds a logger writing to w according to the logging section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown logging.level %q, expected one of: debug, info, warn, error", s)
	}
	return level, nil
}
