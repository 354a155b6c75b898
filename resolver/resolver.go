package resolver

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/partkit/library"
)

// Resolver is the single entry point for turning a component name into a
// local file. It owns its session registry; separate Resolvers share nothing.
type Resolver struct {
	config    config
	library   LocalStore
	sessions  *Manager
	launcher  *Launcher
	completer *Completer

	// Concurrent identical searches share one resolver process. Shared
	// launches outlive their callers and stop when the Resolver closes.
	launches     singleflight.Group
	closing      context.Context
	stopLaunches context.CancelFunc
}

// New creates a Resolver. Without WithLibrary it looks for components in
// library.DefaultDir().
func New(opts ...Option) *Resolver {
	cfg := newConfig(opts)

	store := cfg.library
	if store == nil {
		store = library.NewStore(
			library.WithDir(library.DefaultDir()),
			library.WithExtension(cfg.extension),
		)
	}

	sessions := newManager(cfg)
	closing, stop := context.WithCancel(context.Background())
	return &Resolver{
		config:       cfg,
		library:      store,
		sessions:     sessions,
		launcher:     &Launcher{config: cfg, sessions: sessions},
		completer:    &Completer{config: cfg, sessions: sessions},
		closing:      closing,
		stopLaunches: stop,
	}
}

// Resolve resolves query, in this order:
//
//  1. a local component whose name contains query (case-insensitive)
//     resolves immediately without spawning anything;
//  2. a query equal to an option of a live session is that session's
//     answer, and is submitted to its resolver;
//  3. anything else starts a new search.
//
// depth is accepted for symmetry with the library search operations and does
// not change the outcome. Resolve never panics on resolver failures; they are
// reported as StatusError results.
func (r *Resolver) Resolve(ctx context.Context, query string, depth Depth) Result {
	logger := r.config.logger.With(slog.String("query", query), slog.String("depth", string(depth)))

	if strings.TrimSpace(query) == "" {
		return Errored(errors.New("query is required"))
	}

	if comp, ok := r.findLocal(query); ok {
		logger.Debug("resolved from local library", slog.String("path", comp.Path))
		return Resolved(comp.Name, comp.Path)
	}

	if sess, ok := r.sessions.FindByOption(query); ok {
		logger.Debug("query answers pending selection", slog.String("session_id", sess.ID()))
		return r.complete(ctx, sess, query)
	}

	return r.search(ctx, query)
}

// Select submits selection to the live session offering it. Unlike Resolve,
// it never consults the local library or starts a new search.
func (r *Resolver) Select(ctx context.Context, selection string) Result {
	sess, ok := r.sessions.FindByOption(selection)
	if !ok {
		return Errored(newError("select", selection, ErrUnknownSelection))
	}
	return r.complete(ctx, sess, selection)
}

// Sessions exposes the session registry.
func (r *Resolver) Sessions() *Manager {
	return r.sessions
}

// ClearSessions terminates every live resolver process and forgets all
// pending selections.
func (r *Resolver) ClearSessions() int {
	return r.sessions.ClearSessions()
}

// Close clears all sessions and stops accepting new searches.
func (r *Resolver) Close() error {
	r.stopLaunches()
	return r.sessions.Close()
}

// findLocal looks query up in the local library. Store failures, such as a
// library directory that does not exist yet, count as a miss.
func (r *Resolver) findLocal(query string) (library.Component, bool) {
	comp, ok, err := r.library.Find(query)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, fs.ErrNotExist) {
			level = slog.LevelDebug
		}
		r.config.logger.Log(context.Background(), level, "local library lookup failed",
			slog.String("query", query),
			slog.Any("error", err))
		return library.Component{}, false
	}
	return comp, ok
}

func (r *Resolver) complete(ctx context.Context, sess *Session, selection string) Result {
	path, err := r.completer.Complete(ctx, sess, selection)
	if err != nil {
		r.config.logger.Warn("selection failed",
			slog.String("selection", selection),
			slog.Any("error", err))
		return Errored(err)
	}
	r.config.logger.Info("component imported",
		slog.String("component", selection),
		slog.String("path", path))
	return Resolved(selection, path)
}

// search starts, or joins, the launch for query. Each caller stops waiting
// when its own ctx ends; the launch itself is bounded by the launch timeout
// and by Close.
func (r *Resolver) search(ctx context.Context, query string) Result {
	ch := r.launches.DoChan(query, func() (any, error) {
		launchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		defer context.AfterFunc(r.closing, cancel)()
		return r.launcher.Launch(launchCtx, query)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		r.config.logger.Debug("stopped waiting for search",
			slog.String("query", query),
			slog.Any("error", ctx.Err()))
		return Errored(newError("launch", query, ctx.Err()))
	case res = <-ch:
	}

	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		r.config.logger.Warn("resolver search failed",
			slog.String("query", query),
			slog.Any("error", err))
		return Errored(err)
	}

	out := v.(LaunchOutcome)
	if out.NoResults {
		return NoResults(NoResultsMessage)
	}
	r.config.logger.Debug("selection required",
		slog.String("query", query),
		slog.String("session_id", out.SessionID),
		slog.Int("options", len(out.Options)),
		slog.Bool("shared", shared))
	return SelectionRequired(slices.Clone(out.Options))
}
