package resolver

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/partkit/library"
)

// Option configures a Resolver, Launcher or Manager.
type Option func(*config)

// config holds resolver configuration.
type config struct {
	// Resolver CLI
	command    string
	subcommand string
	workdir    string
	extraEnv   map[string]string
	usePTY     bool

	// Output contract
	extension     string
	sentinel      string
	parserFactory ParserFactory

	// Quiet period after an option before the launch is reported
	optionSettle time.Duration

	// Timeouts (0 = wait forever)
	launchTimeout    time.Duration
	selectionTimeout time.Duration
	killGrace        time.Duration

	// Session limits
	maxSessions     int
	sessionTTL      time.Duration
	cleanupInterval time.Duration

	library LocalStore
	logger  *slog.Logger
}

// defaultConfig returns the default resolver configuration.
func defaultConfig() config {
	return config{
		command:         "tsci",
		subcommand:      "import",
		extension:       DefaultExtension,
		sentinel:        NoResultsMessage,
		optionSettle:    DefaultOptionSettle,
		killGrace:       5 * time.Second,
		maxSessions:     100,
		cleanupInterval: time.Minute,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.parserFactory == nil {
		ext, sentinel := cfg.extension, cfg.sentinel
		cfg.parserFactory = func() OutputParser { return NewTextParser(ext, sentinel) }
	}
	return cfg
}

// WithCommand sets the resolver binary. Default: "tsci".
func WithCommand(path string) Option {
	return func(c *config) { c.command = path }
}

// WithSubcommand sets the search-and-import subcommand passed before the
// query. Default: "import". An empty value passes the query alone.
func WithSubcommand(sub string) Option {
	return func(c *config) { c.subcommand = sub }
}

// WithWorkDir sets the resolver's working directory.
// Default: the caller's current directory.
func WithWorkDir(dir string) Option {
	return func(c *config) { c.workdir = dir }
}

// WithEnv adds environment variables to the resolver process.
func WithEnv(env map[string]string) Option {
	return func(c *config) {
		if c.extraEnv == nil {
			c.extraEnv = make(map[string]string)
		}
		for k, v := range env {
			c.extraEnv[k] = v
		}
	}
}

// WithPTY runs the resolver on a pseudo-terminal instead of pipes.
// Interactive resolvers frequently refuse to prompt without a TTY.
func WithPTY(enabled bool) Option {
	return func(c *config) { c.usePTY = enabled }
}

// WithExtension sets the component file extension. Default: ".tsx".
func WithExtension(ext string) Option {
	return func(c *config) { c.extension = ext }
}

// WithNoResultsSentinel sets the line the resolver prints when nothing matches.
func WithNoResultsSentinel(s string) Option {
	return func(c *config) { c.sentinel = s }
}

// WithParser replaces the text parser, e.g. for a structured output mode.
func WithParser(f ParserFactory) Option {
	return func(c *config) { c.parserFactory = f }
}

// DefaultOptionSettle is the default WithOptionSettle window.
const DefaultOptionSettle = 100 * time.Millisecond

// WithOptionSettle sets how long the resolver must go without printing a new
// option before a search reports its candidates. Each option restarts the
// window. 0 reports at the end of the output chunk holding the first option.
// Default: 100ms.
func WithOptionSettle(d time.Duration) Option {
	return func(c *config) { c.optionSettle = d }
}

// WithLaunchTimeout bounds the wait for the first option or the sentinel.
func WithLaunchTimeout(d time.Duration) Option {
	return func(c *config) { c.launchTimeout = d }
}

// WithSelectionTimeout bounds the wait for an import confirmation.
func WithSelectionTimeout(d time.Duration) Option {
	return func(c *config) { c.selectionTimeout = d }
}

// WithKillGrace sets how long a terminated resolver gets before SIGKILL.
func WithKillGrace(d time.Duration) Option {
	return func(c *config) { c.killGrace = d }
}

// WithMaxSessions sets the maximum number of concurrent sessions.
func WithMaxSessions(n int) Option {
	return func(c *config) { c.maxSessions = n }
}

// WithSessionTTL closes sessions idle for longer than d. 0 disables expiry.
func WithSessionTTL(d time.Duration) Option {
	return func(c *config) { c.sessionTTL = d }
}

// WithCleanupInterval sets how often expired sessions are collected.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *config) { c.cleanupInterval = d }
}

// WithLibrary sets the local component store consulted before any search.
func WithLibrary(store LocalStore) Option {
	return func(c *config) { c.library = store }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// LocalStore finds already-imported components.
type LocalStore interface {
	Find(query string) (library.Component, bool, error)
}
