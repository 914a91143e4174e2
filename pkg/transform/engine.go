// Package transform rewrites one module of the graph into browser-ready
// JavaScript.
//
// A transform runs an ordered list of passes over a per-call [unit]:
//
//	compile  parse TS/JSX, strip types, lower JSX, rewrite import specifiers
//	annotate append the original import string as a trailing comment
//	refresh  register components for hot reload (HMR only)
//	emit     inline the source map as a data URL
//
// Every call builds its own unit, so concurrent transforms share nothing but
// the read-only graph.
package transform

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/graph"
	"github.com/deno-plc/build/pkg/observability"
)

// DefaultJSXImportSource is the automatic JSX runtime package.
const DefaultJSXImportSource = "preact"

// Options is one transform request.
type Options struct {
	Code   string
	HMR    bool
	Graph  *graph.Graph
	Module *graph.ESMModule
}

// Result is the transformed module. Code ends with a sourceMappingURL
// comment pointing at SourceMap, a base64 data URL.
type Result struct {
	Code      string `json:"code"`
	SourceMap string `json:"sourceMap"`
}

// Engine holds transform configuration shared by all calls.
type Engine struct {
	jsxImportSource string
	logger          *log.Logger
	passes          []pass
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithJSXImportSource overrides the JSX runtime package.
func WithJSXImportSource(src string) EngineOption {
	return func(e *Engine) {
		if src != "" {
			e.jsxImportSource = src
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		jsxImportSource: DefaultJSXImportSource,
		logger:          log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.passes = []pass{
		{name: "compile", run: e.compile},
		{name: "annotate", run: annotate},
		{name: "refresh", run: refresh, when: func(u unit) bool { return u.hmr }},
		{name: "emit", run: emit},
	}
	return e
}

// Fingerprint identifies the engine configuration that shapes the output.
func (e *Engine) Fingerprint() string {
	return "jsx=" + e.jsxImportSource
}

// Transform runs the pass pipeline. Parse failures carry
// errs.ErrCodeTransformParse; anything else failing is an internal error.
func (e *Engine) Transform(ctx context.Context, opts Options) (res *Result, err error) {
	if opts.Graph == nil || opts.Module == nil {
		return nil, errs.New(errs.ErrCodeInvalidInput, "transform needs a graph and a module")
	}
	spec := opts.Module.Specifier().String()

	start := time.Now()
	observability.Transform().OnTransformStart(ctx, spec, opts.HMR)
	defer func() {
		observability.Transform().OnTransformComplete(ctx, spec, opts.HMR, time.Since(start), err)
	}()

	u := newUnit(opts)
	for _, p := range e.passes {
		if p.when != nil && !p.when(u) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := p.run(u)
		if err != nil {
			if errs.GetCode(err) == "" {
				err = errs.Wrap(errs.ErrCodeInternal, err, "%s pass failed for %s", p.name, spec)
			}
			return nil, err
		}
		u = next
	}

	e.logger.Debug("transformed module", "module", spec, "hmr", opts.HMR,
		"rewrites", len(u.rewrites), "duration", time.Since(start))
	return &Result{Code: u.code, SourceMap: u.sourceMapURL}, nil
}
