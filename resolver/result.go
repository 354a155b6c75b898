package resolver

import "fmt"

// Status discriminates the variants of Result.
type Status string

// Result statuses.
const (
	StatusResolved          Status = "resolved"
	StatusSelectionRequired Status = "selection_required"
	StatusNoResults         Status = "no_results"
	StatusError             Status = "error"
)

// NoResultsMessage is the message carried by NoResults results.
const NoResultsMessage = "No results found matching your query."

// Result is the outcome of a resolve call. Exactly one variant is populated,
// selected by Status:
//
//   - StatusResolved: Component and Path (terminal)
//   - StatusSelectionRequired: Options; call again with one of them
//   - StatusNoResults: Message (terminal, no session was kept)
//   - StatusError: Message (terminal, any session was cleaned up)
type Result struct {
	Status    Status   `json:"status"`
	Component string   `json:"component,omitempty"`
	Path      string   `json:"path,omitempty"`
	Options   []string `json:"options,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Resolved returns a terminal success result.
func Resolved(component, path string) Result {
	return Result{Status: StatusResolved, Component: component, Path: path}
}

// SelectionRequired returns a result asking the caller to pick an option.
func SelectionRequired(options []string) Result {
	return Result{Status: StatusSelectionRequired, Options: options}
}

// NoResults returns a terminal result for a search with no candidates.
func NoResults(message string) Result {
	return Result{Status: StatusNoResults, Message: message}
}

// Errored returns a terminal failure result carrying err's message.
func Errored(err error) Result {
	msg := "resolve failed"
	if err != nil {
		msg = err.Error()
	}
	return Result{Status: StatusError, Message: msg}
}

// Terminal reports whether the result ends the resolution.
func (r Result) Terminal() bool {
	return r.Status != StatusSelectionRequired
}

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r.Status {
	case StatusResolved:
		return fmt.Sprintf("resolved %s -> %s", r.Component, r.Path)
	case StatusSelectionRequired:
		return fmt.Sprintf("selection required (%d options)", len(r.Options))
	default:
		return fmt.Sprintf("%s: %s", r.Status, r.Message)
	}
}

// Depth is accepted for symmetry with the library search operations.
// It does not change resolve behavior.
type Depth string

// Supported depths.
const (
	DepthSurface Depth = "surface"
	DepthDeep    Depth = "deep"
)

// ParseDepth validates a depth string. An empty string means DepthSurface.
func ParseDepth(s string) (Depth, error) {
	switch Depth(s) {
	case "", DepthSurface:
		return DepthSurface, nil
	case DepthDeep:
		return DepthDeep, nil
	default:
		return "", fmt.Errorf("unknown depth %q, expected one of: surface, deep", s)
	}
}
