// Package pipeline serves transform requests against a module graph.
//
// A request flows through these steps:
//
//  1. Lookup: parse the specifier and find the ESM module, following redirects
//  2. Load: read the module source from disk
//  3. Cache: return a stored result for the same specifier, mode and source
//  4. Transform: submit to the worker pool and wait for the result
//
// Concurrent identical requests share one transform. The shared work is not
// tied to any single caller's context, so one client disconnecting does not
// fail the others.
//
//	runner := pipeline.NewRunner(g, workers, cache, logger)
//	resp, err := runner.Transform(ctx, pipeline.Request{
//	    Specifier: "file:///app/main.tsx",
//	    HMR:       true,
//	})
package pipeline

import (
	"time"

	"github.com/deno-plc/build/pkg/transform"
)

// DefaultCacheTTL is how long transform results stay cached.
const DefaultCacheTTL = 24 * time.Hour

// Request asks for one module to be transformed.
type Request struct {
	// Specifier is an absolute module specifier. Redirects are followed.
	Specifier string
	// HMR selects the development JSX runtime and component registration.
	HMR bool
	// Refresh skips the cache read; the fresh result is still stored.
	Refresh bool
}

// Response is a transform result plus where it came from.
type Response struct {
	*transform.Result

	// Module is the resolved specifier, after redirects.
	Module   string        `json:"module"`
	CacheHit bool          `json:"cacheHit"`
	Shared   bool          `json:"shared"`
	Duration time.Duration `json:"duration"`
}

// PackageInfo describes an npm package and its resolved dependencies.
type PackageInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	RegistryURL  string   `json:"registryUrl,omitempty"`
	Dependencies []string `json:"dependencies"`
}
