// Package pkg is the root of the plcbuild library packages.
//
// plcbuild serves a Deno project to the browser without bundling. It asks
// `deno info --json` for the module graph once, then transforms each module
// on request: TypeScript and JSX are compiled to plain JavaScript, and every
// import is rewritten to a URL on the dev server itself.
//
// # Architecture
//
//	deno info --json
//	       ↓
//	  [info] descriptor (typed modules, redirects, npm packages)
//	       ↓
//	  [graph] module graph (linked imports, global import table)
//	       ↓
//	  [pipeline] runner (cache lookup, single flight)
//	       ↓
//	  [pool] workers → [transform] engine (esbuild + rewrite passes)
//	       ↓
//	  [server] HTTP API / CLI output
//
// # Quick Start
//
// Build a graph from a saved descriptor and transform the root module:
//
//	f, _ := os.Open("info.json")
//	in, _ := info.Decode(f)
//	g, _ := graph.Build(in, "/path/to/project")
//
//	workers := pipeline.NewWorkers(0, transform.New(), nil)
//	runner := pipeline.NewRunner(g, workers, cache.NewNullCache(), nil)
//	defer runner.Close()
//
//	resp, _ := runner.Transform(ctx, pipeline.Request{
//	    Specifier: g.Root().Specifier().String(),
//	})
//	fmt.Println(resp.Code)
//
// # Main Packages
//
// ## Graph
//
// [specifier] - Parsed, interned module specifiers with scheme-aware
// normalization.
//
// [info] - Typed model of the `deno info --json` descriptor and a runner
// for the deno executable.
//
// [link] - Lazily resolved references between modules.
//
// [npm] - npm package registry keyed by "name@version".
//
// [graph] - The module graph: lookup with redirects, import resolution
// with a global fallback table, DOT and SVG export.
//
// ## Transform
//
// [transform] - Compiles one module and rewrites its imports to served
// paths. Optional hot reload registration.
//
// [pool] - Generic fixed-size worker pool with single-use task handles.
//
// [pipeline] - Ties graph, pool and cache together behind one Transform
// call used by both the CLI and the HTTP server.
//
// ## Infrastructure
//
// [cache] - Transform result caches: null, file system and Redis, with
// per-project key scoping.
//
// [config] - Layered configuration: defaults, plcbuild.toml, JSON blob and
// flags.
//
// [server] - chi based HTTP API under /api/v1 plus /metrics.
//
// [observability] - Hooks for graph, transform, pool, cache and HTTP
// events, with a Prometheus implementation.
//
// [errors] - Coded errors shared by every package.
//
// [specifier]: https://pkg.go.dev/github.com/deno-plc/build/pkg/specifier
// [info]: https://pkg.go.dev/github.com/deno-plc/build/pkg/info
// [link]: https://pkg.go.dev/github.com/deno-plc/build/pkg/link
// [npm]: https://pkg.go.dev/github.com/deno-plc/build/pkg/npm
// [graph]: https://pkg.go.dev/github.com/deno-plc/build/pkg/graph
// [transform]: https://pkg.go.dev/github.com/deno-plc/build/pkg/transform
// [pool]: https://pkg.go.dev/github.com/deno-plc/build/pkg/pool
// [pipeline]: https://pkg.go.dev/github.com/deno-plc/build/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/deno-plc/build/pkg/cache
// [config]: https://pkg.go.dev/github.com/deno-plc/build/pkg/config
// [server]: https://pkg.go.dev/github.com/deno-plc/build/pkg/server
// [observability]: https://pkg.go.dev/github.com/deno-plc/build/pkg/observability
// [errors]: https://pkg.go.dev/github.com/deno-plc/build/pkg/errors
package pkg
