// Package partkit resolves component names into files in a local component
// library, importing them from the component registry when they are missing.
//
// Each subpackage can be used independently:
//
//   - resolver: drives the interactive resolver CLI and tracks pending selections
//   - library: lists and searches the local component directory
//   - config: YAML/TOML configuration and conversion to package options
//   - tool: the resolver as callable tools with JSON Schema arguments
//
// # Quick Start
//
// Resolving a component:
//
//	import "github.com/randalmurphal/partkit/resolver"
//	r := resolver.New()
//	defer r.Close()
//	res := r.Resolve(ctx, "resistor", resolver.DepthSurface)
//
// Listing the library:
//
//	import "github.com/randalmurphal/partkit/library"
//	comps, _ := library.NewStore().List()
//
// Serving tools to a dispatcher:
//
//	import "github.com/randalmurphal/partkit/tool"
//	h := tool.NewHandler(r, store)
//	out, _ := h.Call(ctx, tool.NameResolveComponent, args)
//
// The partkit command (cmd/partkit) wires all of these for interactive use.
package partkit
