package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LaunchOutcome is the first conclusive thing a new resolver process said.
// Either NoResults is set, or SessionID and Options describe the session
// that now owns the process.
type LaunchOutcome struct {
	NoResults bool
	SessionID string
	Options   []string
}

// Launcher spawns one resolver process per query.
type Launcher struct {
	config   config
	sessions *Manager
}

// NewLauncher creates a launcher registering its sessions in sessions.
func NewLauncher(sessions *Manager, opts ...Option) *Launcher {
	return &Launcher{config: newConfig(opts), sessions: sessions}
}

// Launch spawns the resolver for query and waits for its first conclusive
// output.
//
// The first option creates a session, registered before Launch returns. The
// outcome is reported once the resolver has printed no further option for
// the settle window (WithOptionSettle), or when it exits, and carries every
// option seen until then. The process keeps running so later output keeps
// growing that session's options. The no-results sentinel wins if it arrives
// before the outcome is reported, and the process is terminated. Exiting
// before any option is an error.
func (l *Launcher) Launch(ctx context.Context, query string) (LaunchOutcome, error) {
	proc, err := startProcess(&l.config, query)
	if err != nil {
		return LaunchOutcome{}, newError("launch", query, err)
	}
	l.config.logger.Debug("resolver started",
		slog.String("query", query),
		slog.Int("pid", proc.pid()))

	st := newLaunchState(query, proc, l.sessions, l.config.optionSettle)
	// Not running yet, so this cannot fail.
	_, _ = proc.subscribe(st.handle)
	proc.run()

	out, expired, err := st.result.wait(ctx, l.config.launchTimeout)
	if expired {
		l.sessions.Remove(st.sess.id)
		proc.terminate()
		return LaunchOutcome{}, newError("launch", query, err)
	}
	if err != nil {
		return LaunchOutcome{}, err
	}
	return out, nil
}

// launchState is the launch-time listener on a new process. handle runs on
// the process reader goroutine; the settle timer reports from its own.
type launchState struct {
	query    string
	proc     *process
	sess     *Session
	sessions *Manager
	result   *promise[LaunchOutcome]
	settle   time.Duration

	mu         sync.Mutex
	noResults  bool
	registered bool
	quiet      *time.Timer
}

func newLaunchState(query string, proc *process, sessions *Manager, settle time.Duration) *launchState {
	return &launchState{
		query:    query,
		proc:     proc,
		sess:     newSession(query, proc),
		sessions: sessions,
		result:   newPromise[LaunchOutcome](),
		settle:   settle,
	}
}

func (st *launchState) handle(ev Event) {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch ev.Kind {
	case EventNoResults:
		// The sentinel wins over options that have not been reported yet.
		if st.noResults || st.result.settled() {
			return
		}
		st.noResults = true
		st.stopQuiet()
		if st.registered {
			st.sessions.Remove(st.sess.id)
			st.registered = false
		}
		st.result.resolve(LaunchOutcome{NoResults: true})
		// No session owns this process.
		st.proc.terminate()

	case EventOption:
		if st.noResults {
			return
		}
		st.sessions.appendOption(st.sess, ev.Option)
		if st.result.settled() {
			return
		}
		if !st.registered {
			if err := st.sessions.Insert(st.sess); err != nil {
				st.result.reject(newError("launch", st.query, err))
				st.proc.terminate()
				return
			}
			st.registered = true
		}
		if st.settle > 0 {
			if st.quiet == nil {
				st.quiet = time.AfterFunc(st.settle, st.quietElapsed)
			} else {
				st.quiet.Reset(st.settle)
			}
		}

	case EventChunkEnd:
		if st.settle <= 0 {
			st.report()
		}

	case EventError:
		st.stopQuiet()
		if st.result.reject(newError("launch", st.query, ev.Err)) {
			st.proc.terminate()
		}

	case EventExit:
		// Options already printed stand even if the resolver did not pause.
		st.stopQuiet()
		st.report()
		st.result.reject(&Error{
			Op:       "launch",
			Query:    st.query,
			ExitCode: ev.ExitCode,
			Err:      ErrExitWithoutSignal,
		})
	}
}

// quietElapsed runs once no option has arrived for the settle window.
func (st *launchState) quietElapsed() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.report()
}

// report completes the launch with the options seen so far. st.mu is held.
func (st *launchState) report() {
	if !st.registered || st.result.settled() {
		return
	}
	if !st.result.resolve(LaunchOutcome{SessionID: st.sess.id, Options: st.sess.Options()}) {
		// Lost to a deadline; the waiter terminates the process.
		st.sessions.Remove(st.sess.id)
	}
}

func (st *launchState) stopQuiet() {
	if st.quiet != nil {
		st.quiet.Stop()
	}
}
