package resolver

import (
	"errors"
	"fmt"
)

// Sentinel errors for resolver operations.
var (
	// ErrSpawn indicates the resolver process could not be started.
	ErrSpawn = errors.New("resolver process failed to start")

	// ErrExitWithoutSignal indicates the resolver exited before printing
	// either the no-results sentinel or a single option.
	ErrExitWithoutSignal = errors.New("resolver exited before producing options")

	// ErrExitWithoutConfirmation indicates the resolver exited after a
	// selection was submitted but before it confirmed the import.
	ErrExitWithoutConfirmation = errors.New("resolver exited without confirming import")

	// ErrUnknownSelection indicates no live session offers the selection.
	ErrUnknownSelection = errors.New("invalid or expired selection")

	// ErrProcess indicates a process-level failure (read or write on the
	// resolver's streams).
	ErrProcess = errors.New("resolver process error")

	// ErrTimeout indicates the resolver did not answer in time.
	ErrTimeout = errors.New("resolver timed out")

	// ErrSelectionPending indicates another selection is already waiting on
	// the same session.
	ErrSelectionPending = errors.New("selection already pending for session")

	// ErrManagerClosed indicates the session manager no longer accepts sessions.
	ErrManagerClosed = errors.New("session manager is closed")

	// ErrMaxSessions indicates the session limit has been reached.
	ErrMaxSessions = errors.New("max sessions reached")
)

// Error wraps resolver errors with context.
type Error struct {
	Op       string // Operation that failed ("launch", "select")
	Query    string // Query or selection being processed
	ExitCode int    // Process exit code, -1 when unknown or not applicable
	Err      error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.Query != "" {
		msg = fmt.Sprintf("%s %q: %v", e.Op, e.Query, e.Err)
	}
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError creates a resolver error without an exit code.
func newError(op, query string, err error) *Error {
	return &Error{Op: op, Query: query, ExitCode: -1, Err: err}
}

// IsTimeout checks if an error came from a launch or selection deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsProcessExit checks if an error was caused by the resolver exiting early.
func IsProcessExit(err error) bool {
	return errors.Is(err, ErrExitWithoutSignal) ||
		errors.Is(err, ErrExitWithoutConfirmation)
}
