// Package cli implements the partkit command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/partkit/config"
)

// EnvPrefix prefixes every environment override, e.g.
// PARTKIT_RESOLVER_COMMAND for resolver.command.
const EnvPrefix = "PARTKIT"

// Execute runs the root command. An interrupt cancels the command context,
// which stops any resolver still running.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "partkit",
		Short: "Resolve components into the local library",
		Long: `partkit finds a component in the local library or, failing that, searches
the component registry through the resolver CLI (tsci import by default),
lets you pick among the candidates and imports the chosen one.`,
		SilenceUsage: true,
	}

	// Global flags
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (.yaml, .yml or .toml)")
	flags.String("command", "", "resolver binary (default \"tsci\")")
	flags.String("library", "", "library directory (default $VHL_LIBRARY_DIR or ./lib)")
	flags.Bool("pty", false, "run the resolver on a pseudo-terminal")
	flags.Duration("timeout", 0, "bound each wait on the resolver (0 waits forever)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")

	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("resolver.command", flags.Lookup("command"))
	_ = v.BindPFlag("library.dir", flags.Lookup("library"))
	_ = v.BindPFlag("resolver.pty", flags.Lookup("pty"))
	_ = v.BindPFlag("resolver.launch_timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("resolver.selection_timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logging.format", flags.Lookup("log-format"))

	v.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newResolveCmd(v),
		newSelectCmd(v),
		newListCmd(v),
		newSchemaCmd(),
		newCallCmd(v),
	)
	return root
}

// loadConfig layers flags and PARTKIT_* variables over the config file, or
// over the defaults when no file is given.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	base := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		base = loaded
	} else {
		base.ApplyEnv()
	}
	setDefaults(v, base)

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so that env lookups and Unmarshal see it.
func setDefaults(v *viper.Viper, c *config.Config) {
	// Resolver
	v.SetDefault("resolver.command", c.Resolver.Command)
	v.SetDefault("resolver.subcommand", c.Resolver.Subcommand)
	v.SetDefault("resolver.work_dir", c.Resolver.WorkDir)
	v.SetDefault("resolver.pty", c.Resolver.PTY)
	v.SetDefault("resolver.env", c.Resolver.Env)
	v.SetDefault("resolver.no_results_sentinel", c.Resolver.NoResultsSentinel)
	v.SetDefault("resolver.option_settle", c.Resolver.OptionSettle)
	v.SetDefault("resolver.launch_timeout", c.Resolver.LaunchTimeout)
	v.SetDefault("resolver.selection_timeout", c.Resolver.SelectionTimeout)
	v.SetDefault("resolver.kill_grace", c.Resolver.KillGrace)
	v.SetDefault("resolver.max_sessions", c.Resolver.MaxSessions)
	v.SetDefault("resolver.session_ttl", c.Resolver.SessionTTL)

	// Library
	v.SetDefault("library.dir", c.Library.Dir)
	v.SetDefault("library.extension", c.Library.Extension)
	v.SetDefault("library.ignore", c.Library.Ignore)
	v.SetDefault("library.watch", c.Library.Watch)

	// Logging
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
}
