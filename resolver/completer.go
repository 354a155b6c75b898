package resolver

import (
	"context"
	"errors"
	"log/slog"
)

// Completer answers a session's pending prompt with a selection.
type Completer struct {
	config   config
	sessions *Manager
}

// NewCompleter creates a completer operating on sessions.
func NewCompleter(sessions *Manager, opts ...Option) *Completer {
	return &Completer{config: newConfig(opts), sessions: sessions}
}

// Complete writes selection to the session's resolver and waits for the
// import confirmation. Whatever the outcome, the session is gone when
// Complete returns, except when ErrUnknownSelection or ErrSelectionPending
// is reported.
func (c *Completer) Complete(ctx context.Context, sess *Session, selection string) (string, error) {
	const op = "select"

	if !sess.HasOption(selection) {
		return "", newError(op, selection, ErrUnknownSelection)
	}
	if !sess.selecting.CompareAndSwap(false, true) {
		return "", newError(op, selection, ErrSelectionPending)
	}
	defer sess.selecting.Store(false)
	sess.touch()

	result := newPromise[string]()
	unsubscribe, ok := sess.proc.subscribe(func(ev Event) {
		switch ev.Kind {
		case EventImported:
			result.resolve(ev.Path)
		case EventError:
			c.sessions.Remove(sess.id)
			result.reject(newError(op, selection, ev.Err))
		case EventExit:
			c.sessions.Remove(sess.id)
			result.reject(&Error{
				Op:       op,
				Query:    selection,
				ExitCode: ev.ExitCode,
				Err:      ErrExitWithoutConfirmation,
			})
		}
	})
	if !ok {
		c.sessions.Remove(sess.id)
		return "", newError(op, selection, ErrExitWithoutConfirmation)
	}

	c.config.logger.Debug("submitting selection",
		slog.String("session_id", sess.id),
		slog.String("selection", selection))

	if err := sess.proc.send(ctx, selection+"\n"); err != nil {
		unsubscribe()
		c.sessions.Remove(sess.id)
		sess.proc.terminate()
		return "", newError(op, selection, err)
	}

	path, expired, err := result.wait(ctx, c.config.selectionTimeout)
	unsubscribe()

	if err != nil {
		if expired || errors.Is(err, ErrProcess) {
			c.sessions.Remove(sess.id)
			sess.proc.terminate()
		}
		var rerr *Error
		if errors.As(err, &rerr) {
			return "", err
		}
		return "", newError(op, selection, err)
	}

	// The resolver is done once it confirms; stop it rather than wait.
	sess.proc.terminate()
	c.sessions.Remove(sess.id)
	return path, nil
}
