package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/deno-plc/build/pkg/cache"
	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/graph"
	"github.com/deno-plc/build/pkg/observability"
	"github.com/deno-plc/build/pkg/pool"
	"github.com/deno-plc/build/pkg/transform"
)

// Workers is the pool transform jobs are submitted to, together with the
// engine its workers run.
type Workers struct {
	*pool.Pool[transform.Options, *transform.Result]
	Engine *transform.Engine
}

// NewWorkers starts a pool that runs engine.Transform.
func NewWorkers(size int, engine *transform.Engine, logger *log.Logger) *Workers {
	return &Workers{
		Pool:   pool.New[transform.Options, *transform.Result](size, engine.Transform, pool.WithLogger(logger)),
		Engine: engine,
	}
}

// Runner ties the graph, worker pool and cache together. It holds no
// per-request state and is safe for concurrent use.
type Runner struct {
	Graph    *graph.Graph
	Pool     *Workers
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *log.Logger

	flights singleflight.Group
}

// NewRunner creates a runner. A nil cache disables caching; a nil logger
// uses the default logger.
func NewRunner(g *graph.Graph, workers *Workers, c cache.Cache, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Graph:    g,
		Pool:     workers,
		Cache:    c,
		CacheTTL: DefaultCacheTTL,
		Logger:   logger,
	}
}

// Transform resolves req.Specifier to an ESM module and returns its
// browser-ready code.
func (r *Runner) Transform(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	mod, err := r.Graph.LookupESM(req.Specifier)
	if err != nil {
		return nil, err
	}
	spec := mod.Specifier().String()

	source, err := mod.LoadCode(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.TransformKey(spec, req.HMR, []byte(source), r.inputs(mod))

	if !req.Refresh {
		if res, ok := r.cached(ctx, key); ok {
			r.Logger.Debug("transform cache hit", "module", spec, "hmr", req.HMR)
			return &Response{Result: res, Module: spec, CacheHit: true, Duration: time.Since(start)}, nil
		}
	}

	// the flight outlives any one caller
	flightCtx := context.WithoutCancel(ctx)
	ch := r.flights.DoChan(key, func() (any, error) {
		return r.run(flightCtx, key, transform.Options{
			Code:   source,
			HMR:    req.HMR,
			Graph:  r.Graph,
			Module: mod,
		})
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		return &Response{
			Result:   out.Val.(*transform.Result),
			Module:   spec,
			Shared:   out.Shared,
			Duration: time.Since(start),
		}, nil
	}
}

// inputs fingerprints the graph and engine state the output of mod depends
// on, so a re-resolved graph or reconfigured engine never reuses stale
// rewrites.
func (r *Runner) inputs(mod *graph.ESMModule) string {
	fp := transform.Fingerprint(r.Graph, mod)
	if r.Pool != nil && r.Pool.Engine != nil {
		fp += " " + r.Pool.Engine.Fingerprint()
	}
	return fp
}

func (r *Runner) run(ctx context.Context, key string, opts transform.Options) (*transform.Result, error) {
	if r.Pool == nil {
		return nil, errs.New(errs.ErrCodeInternal, "no worker pool configured")
	}
	task, err := r.Pool.Submit(opts)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInternal, err, "worker pool unavailable")
	}
	res, err := task.Await(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(res)
	if err == nil {
		err = r.Cache.Set(ctx, key, data, r.CacheTTL)
	}
	if err != nil {
		r.Logger.Warn("failed to cache transform result", "module", opts.Module.Specifier(), "err", err)
	} else {
		observability.Cache().OnCacheSet(ctx, cache.KeyType(key), len(data))
	}
	return res, nil
}

func (r *Runner) cached(ctx context.Context, key string) (*transform.Result, bool) {
	kind := cache.KeyType(key)
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("transform cache read failed", "err", err)
	}
	if !hit {
		observability.Cache().OnCacheMiss(ctx, kind)
		return nil, false
	}

	var res transform.Result
	if err := json.Unmarshal(data, &res); err != nil {
		_ = r.Cache.Delete(ctx, key)
		observability.Cache().OnCacheMiss(ctx, kind)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, kind)
	return &res, true
}

// LookupTable returns the module's resolved imports as raw import string to
// target specifier.
func (r *Runner) LookupTable(ctx context.Context, spec string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mod, err := r.Graph.LookupESM(spec)
	if err != nil {
		return nil, err
	}
	table, ok := mod.LookupTable()
	if !ok {
		return nil, errs.New(errs.ErrCodeInternal, "imports of %s are not linked", mod.Specifier())
	}
	out := make(map[string]string, len(table))
	for raw, m := range table {
		out[raw] = m.Specifier().String()
	}
	return out, nil
}

// Package returns the npm package with the given descriptor key or
// name@version.
func (r *Runner) Package(id string) (*PackageInfo, error) {
	pkg, ok := r.Graph.NpmPackage(id)
	if !ok {
		return nil, errs.New(errs.ErrCodePackageNotFound, "npm package %s not found", id)
	}
	deps := pkg.Dependencies()
	info := &PackageInfo{
		Name:         pkg.ID().Name,
		Version:      pkg.ID().Version,
		RegistryURL:  pkg.RegistryURL(),
		Dependencies: make([]string, len(deps)),
	}
	for i, d := range deps {
		info.Dependencies[i] = d.String()
	}
	return info, nil
}

// Stats returns graph counts.
func (r *Runner) Stats() graph.Stats { return r.Graph.Stats() }

// Close stops the worker pool and releases the cache.
func (r *Runner) Close() error {
	if r.Pool != nil {
		r.Pool.Close()
	}
	return r.Cache.Close()
}
