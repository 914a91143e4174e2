// Package graph builds and queries the in-memory module graph.
//
// The graph is built once from a decoded descriptor ([info.Info]) and is
// read-only afterwards, so request handlers share one *Graph without locks.
//
// # Modules
//
// [Module] is a closed set of three variants; consumers switch on the
// concrete type:
//
//	switch m := m.(type) {
//	case *graph.ESMModule:    // source module with its own lookup table
//	case *graph.NPMImport:    // path into a resolved npm package
//	case *graph.VirtualModule: // built-in or external, identity only
//	}
//
// # Build
//
// [Build] creates the npm registry, converts every descriptor module, interns
// the roots and redirects, and then links each ESM module exactly once.
// Linking records raw import → module in the importer's table. Bare imports
// declared by file: modules are also collected into the graph-wide global
// import table, which lets the transform engine resolve imports that a module
// never declared itself, such as the JSX runtime injected by the compiler.
//
// # Lookup
//
// [Graph.ModuleWithRedirect] follows redirects up to [RedirectLimit] hops,
// so chains and cycles always terminate.
package graph
