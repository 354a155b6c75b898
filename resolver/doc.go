// Package resolver resolves component names to local component files,
// driving an interactive resolver CLI when the local library has no match.
//
// A search spawns the resolver (by default "tsci import <query>") and
// scrapes its output for candidate names. When there is more than one, the
// process is kept alive as a session and the caller gets the candidates back;
// calling Resolve again with one of them writes it to that same process and
// waits for its "Imported ... to /path" confirmation.
//
// # Basic Usage
//
//	r := resolver.New(
//	    resolver.WithLibrary(library.NewStore(library.WithDir("lib"))),
//	    resolver.WithSelectionTimeout(time.Minute),
//	)
//	defer r.Close()
//
//	res := r.Resolve(ctx, "resistor", resolver.DepthSurface)
//	if res.Status == resolver.StatusSelectionRequired {
//	    res = r.Resolve(ctx, res.Options[0], resolver.DepthSurface)
//	}
//
// # Output Contract
//
// The resolver's text output is parsed by an OutputParser. TextParser
// understands the current format; WithParser swaps in another one without
// touching session handling.
//
// # Concurrency
//
// Each resolver process has one reader goroutine that parses its output and
// notifies listeners in order. The session registry (Manager) is guarded by a
// single lock, which also orders option discovery against lookups. Sessions
// are independent of each other; there is no ordering across them.
package resolver
