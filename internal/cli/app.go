package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/partkit/config"
	"github.com/randalmurphal/partkit/library"
	"github.com/randalmurphal/partkit/resolver"
)

// app is the wiring shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	library  *library.Store
	resolver *resolver.Resolver
}

// newApp loads configuration and builds the library store and resolver.
// The returned close function stops the resolver and any library watch.
func newApp(cmd *cobra.Command, v *viper.Viper) (*app, func(), error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger(cmd.ErrOrStderr())
	store := library.NewStore(cfg.LibraryOptions(logger)...)
	r := resolver.New(cfg.ResolverOptions(store, logger)...)

	ctx, cancel := context.WithCancel(cmd.Context())
	if cfg.Library.Watch {
		go func() {
			if err := store.Watch(ctx); err != nil && !errors.Is(err, library.ErrAlreadyWatching) {
				logger.Debug("library watch unavailable", slog.Any("error", err))
			}
		}()
	}

	a := &app{cfg: cfg, logger: logger, library: store, resolver: r}
	return a, func() {
		cancel()
		_ = r.Close()
	}, nil
}
