// Package tool exposes partkit's resolver as callable tools: named
// operations with JSON Schema described arguments and JSON text results.
//
// The package does no protocol framing. An external dispatcher lists
// Definitions, forwards a call's name and raw JSON arguments to Handler.Call
// and returns the text unchanged.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/randalmurphal/partkit/library"
	"github.com/randalmurphal/partkit/resolver"
)

// Tool names.
const (
	NameResolveComponent    = "resolve_component"
	NameClearSessions       = "clear_sessions"
	NameListLocalComponents = "list_local_components"
)

var (
	// ErrUnknownTool is returned by Call for a name not in Definitions.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned by Call when the arguments do not
	// decode or fail validation.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Tool describes one callable operation.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ResolveInput is the argument object of resolve_component.
type ResolveInput struct {
	Query string `json:"query" jsonschema:"description=Component name or a selection offered by an earlier call"`
	Depth string `json:"depth,omitempty" jsonschema:"enum=surface,enum=deep,default=surface,description=Search depth"`
}

// ClearInput is the (empty) argument object of clear_sessions.
type ClearInput struct{}

// ListInput is the (empty) argument object of list_local_components.
type ListInput struct{}

// ClearOutput is the result of clear_sessions.
type ClearOutput struct {
	Cleared int `json:"cleared"`
}

// ListOutput is the result of list_local_components.
type ListOutput struct {
	Dir        string              `json:"dir"`
	Components []library.Component `json:"components"`
}

// Definitions returns the tools Handler serves, in a stable order.
func Definitions() []Tool {
	return []Tool{
		{
			Name:        NameResolveComponent,
			Description: "Resolve a component to a local file, importing it from the registry when needed. When several candidates match, returns them; call again with one of them to import it.",
			Parameters:  schemaFor(&ResolveInput{}),
		},
		{
			Name:        NameClearSessions,
			Description: "Terminate every pending resolver session.",
			Parameters:  schemaFor(&ClearInput{}),
		},
		{
			Name:        NameListLocalComponents,
			Description: "List the components already present in the local library.",
			Parameters:  schemaFor(&ListInput{}),
		},
	}
}

func schemaFor(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(v)
	// Dispatchers embed the schema, so drop the meta-schema pointer.
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		// Reflected schemas of the static input types always marshal.
		panic(fmt.Sprintf("marshal schema: %v", err))
	}
	return data
}

// Lister lists local components.
type Lister interface {
	Dir() string
	List() ([]library.Component, error)
}

// Handler executes tool calls against a resolver.
type Handler struct {
	resolver *resolver.Resolver
	library  Lister
}

// NewHandler creates a handler. lib may be nil, in which case
// list_local_components reports an empty library.
func NewHandler(r *resolver.Resolver, lib Lister) *Handler {
	return &Handler{resolver: r, library: lib}
}

// Call runs the named tool with JSON arguments and returns its JSON result,
// indented for display. Resolution failures are part of the result, not the
// error; the error is reserved for calls that could not run at all.
func (h *Handler) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	var out any
	switch name {
	case NameResolveComponent:
		var in ResolveInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		if strings.TrimSpace(in.Query) == "" {
			return "", fmt.Errorf("%w: query is required", ErrInvalidArguments)
		}
		depth, err := resolver.ParseDepth(in.Depth)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		out = h.resolver.Resolve(ctx, in.Query, depth)

	case NameClearSessions:
		if err := decodeArgs(args, &ClearInput{}); err != nil {
			return "", err
		}
		out = ClearOutput{Cleared: h.resolver.ClearSessions()}

	case NameListLocalComponents:
		if err := decodeArgs(args, &ListInput{}); err != nil {
			return "", err
		}
		list := ListOutput{Components: []library.Component{}}
		if h.library != nil {
			comps, err := h.library.List()
			if err != nil {
				return "", fmt.Errorf("list local components: %w", err)
			}
			list.Dir = h.library.Dir()
			list.Components = comps
		}
		out = list

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", name, err)
	}
	return string(data), nil
}

// decodeArgs decodes a JSON argument object. Empty and null arguments are
// treated as {}.
func decodeArgs(args json.RawMessage, v any) error {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
