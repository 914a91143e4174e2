package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/deno-plc/build/pkg/cache"
	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/graph"
	"github.com/deno-plc/build/pkg/info"
	"github.com/deno-plc/build/pkg/specifier"
	"github.com/deno-plc/build/pkg/transform"
)

const mainSource = `import { a } from "./a.ts";
import { h } from "preact";
export function App() { return <p>{a}</p>; }
export const plain = h("p", null, a);
`

func quietLogger() *log.Logger {
	return log.NewWithOptions(&bytes.Buffer{}, log.Options{})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fileSpec(t *testing.T, path string) *specifier.Specifier {
	t.Helper()
	s, err := specifier.FromFilePath(path)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// writeApp lays out a two-file app in dir and returns the main module.
func writeApp(t *testing.T, dir string) *specifier.Specifier {
	t.Helper()
	writeFile(t, filepath.Join(dir, "main.tsx"), mainSource)
	writeFile(t, filepath.Join(dir, "a.ts"), "export const a: number = 1;\n")
	return fileSpec(t, filepath.Join(dir, "main.tsx"))
}

// appGraph builds the graph of the app in dir with main importing the given
// preact version.
func appGraph(t *testing.T, dir, preact string) *graph.Graph {
	t.Helper()
	mainPath := filepath.Join(dir, "main.tsx")
	aPath := filepath.Join(dir, "a.ts")
	mainSpec := fileSpec(t, mainPath)
	aSpec := fileSpec(t, aPath)
	preactID := "preact@" + preact
	preactSpec := specifier.MustParse("npm:/" + preactID)

	in := &info.Info{
		Version: 1,
		Roots:   []*specifier.Specifier{mainSpec},
		Modules: []info.Module{
			{Kind: info.KindESM, ESM: &info.EsmModule{
				Specifier: mainSpec, MediaType: info.MediaTSX, Local: mainPath,
				Dependencies: []info.Dependency{
					{Specifier: "./a.ts", Code: &info.CodeRef{Specifier: aSpec}},
					{Specifier: "preact", Code: &info.CodeRef{Specifier: preactSpec}},
				},
			}},
			{Kind: info.KindESM, ESM: &info.EsmModule{Specifier: aSpec, MediaType: info.MediaTypeScript, Local: aPath}},
			{Kind: info.KindNpm, Npm: &info.NpmModule{Specifier: preactSpec, NpmPackage: preactID}},
		},
		NpmPackages: map[string]info.NpmPackage{
			preactID:    {Name: "preact", Version: preact, Dependencies: []string{"htm@3.1.1"}},
			"htm@3.1.1": {Name: "htm", Version: "3.1.1"},
		},
		Redirects: map[string]*specifier.Specifier{
			"file:///entry.tsx": mainSpec,
		},
	}

	g, err := graph.Build(in, dir, graph.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func newFileCache(t *testing.T, dir string) *cache.FileCache {
	t.Helper()
	fc, err := cache.NewFileCache(filepath.Join(dir, ".cache"))
	if err != nil {
		t.Fatal(err)
	}
	return fc
}

func runnerFor(t *testing.T, g *graph.Graph, c cache.Cache, opts ...transform.EngineOption) *Runner {
	t.Helper()
	logger := quietLogger()
	opts = append(opts, transform.WithLogger(logger))
	r := NewRunner(g, NewWorkers(2, transform.New(opts...), logger), c, logger)
	t.Cleanup(func() { r.Close() })
	return r
}

// newTestRunner builds a runner over the app in a fresh temp dir, backed by a
// file cache.
func newTestRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	spec := writeApp(t, dir)
	return runnerFor(t, appGraph(t, dir, "10.19.0"), newFileCache(t, dir)), spec.String()
}

func TestTransformCaches(t *testing.T) {
	r, spec := newTestRunner(t)
	ctx := context.Background()

	first, err := r.Transform(ctx, Request{Specifier: spec})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if first.CacheHit {
		t.Error("first transform should miss the cache")
	}
	if !strings.Contains(first.Code, `// import "./a.ts";`) {
		t.Errorf("code missing rewritten import:\n%s", first.Code)
	}

	second, err := r.Transform(ctx, Request{Specifier: spec})
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit || second.Code != first.Code || second.SourceMap != first.SourceMap {
		t.Errorf("second transform: hit=%v, same=%v", second.CacheHit, second.Code == first.Code)
	}

	refreshed, err := r.Transform(ctx, Request{Specifier: spec, Refresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.CacheHit {
		t.Error("Refresh should bypass the cache")
	}

	hmr, err := r.Transform(ctx, Request{Specifier: spec, HMR: true})
	if err != nil {
		t.Fatal(err)
	}
	if hmr.CacheHit || !strings.Contains(hmr.Code, "$RefreshReg$(App") {
		t.Errorf("HMR result should be cached separately; hit=%v", hmr.CacheHit)
	}
}

func TestTransformFollowsGraphChanges(t *testing.T) {
	dir := t.TempDir()
	spec := writeApp(t, dir).String()
	// FileCache.Close is a no-op, so the runners can share it
	fc := newFileCache(t, dir)
	ctx := context.Background()

	before, err := runnerFor(t, appGraph(t, dir, "10.19.0"), fc).Transform(ctx, Request{Specifier: spec})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(before.Code, `"/@npm/preact/10.19.0"`) {
		t.Fatalf("code should import preact 10.19.0:\n%s", before.Code)
	}

	bumped := runnerFor(t, appGraph(t, dir, "10.22.0"), fc)
	after, err := bumped.Transform(ctx, Request{Specifier: spec})
	if err != nil {
		t.Fatal(err)
	}
	if after.CacheHit {
		t.Error("a changed import table must not reuse the cached output")
	}
	if !strings.Contains(after.Code, `"/@npm/preact/10.22.0"`) || strings.Contains(after.Code, "10.19.0") {
		t.Errorf("code should follow the new graph:\n%s", after.Code)
	}

	again, err := bumped.Transform(ctx, Request{Specifier: spec})
	if err != nil {
		t.Fatal(err)
	}
	if !again.CacheHit {
		t.Error("an unchanged graph should hit the cache")
	}

	jsx, err := runnerFor(t, appGraph(t, dir, "10.22.0"), fc, transform.WithJSXImportSource("react")).
		Transform(ctx, Request{Specifier: spec})
	if err != nil {
		t.Fatal(err)
	}
	if jsx.CacheHit {
		t.Error("a different JSX import source must not reuse the cached output")
	}
}

func TestTransformSourceChange(t *testing.T) {
	r, spec := newTestRunner(t)
	ctx := context.Background()
	if _, err := r.Transform(ctx, Request{Specifier: spec}); err != nil {
		t.Fatal(err)
	}

	mod, _ := r.Graph.LookupESM(spec)
	writeFile(t, mod.LocalPath(), mainSource+"export const extra = 2;\n")

	resp, err := r.Transform(ctx, Request{Specifier: spec})
	if err != nil {
		t.Fatal(err)
	}
	if resp.CacheHit || !strings.Contains(resp.Code, "extra") {
		t.Error("edited source should produce a fresh transform")
	}
}

func TestTransformRedirect(t *testing.T) {
	r, spec := newTestRunner(t)
	resp, err := r.Transform(context.Background(), Request{Specifier: "file:///entry.tsx"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Module != spec {
		t.Errorf("Module = %q, want %q", resp.Module, spec)
	}
}

func TestTransformErrors(t *testing.T) {
	r, _ := newTestRunner(t)
	tests := []struct {
		spec string
		code errs.Code
	}{
		{"not a specifier", errs.ErrCodeInvalidSpecifier},
		{"file:///nowhere.ts", errs.ErrCodeModuleNotFound},
		{"npm:/preact@10.19.0", errs.ErrCodeNotESM},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := r.Transform(context.Background(), Request{Specifier: tt.spec})
			if !errs.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestTransformMissingSource(t *testing.T) {
	r, spec := newTestRunner(t)
	mod, _ := r.Graph.LookupESM(spec)
	if err := os.Remove(mod.LocalPath()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Transform(context.Background(), Request{Specifier: spec}); !errs.Is(err, errs.ErrCodeFileNotFound) {
		t.Errorf("error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestTransformConcurrent(t *testing.T) {
	r, spec := newTestRunner(t)

	const n = 8
	codes := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := r.Transform(context.Background(), Request{Specifier: spec, HMR: true})
			if err != nil {
				t.Error(err)
				return
			}
			codes[i] = resp.Code
		}()
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if codes[i] != codes[0] {
			t.Fatalf("request %d got different output", i)
		}
	}
}

func TestTransformCanceledCaller(t *testing.T) {
	r, spec := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// the canceled caller fails fast, LoadCode checks ctx first
	if _, err := r.Transform(ctx, Request{Specifier: spec}); err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestLookupTable(t *testing.T) {
	r, spec := newTestRunner(t)
	table, err := r.LookupTable(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if got := table["preact"]; got != "npm:/preact@10.19.0" {
		t.Errorf("table[preact] = %q", got)
	}
	if got := table["./a.ts"]; !strings.HasSuffix(got, "/a.ts") || !strings.HasPrefix(got, "file://") {
		t.Errorf("table[./a.ts] = %q", got)
	}
	if _, err := r.LookupTable(context.Background(), "npm:/preact@10.19.0"); !errs.Is(err, errs.ErrCodeNotESM) {
		t.Errorf("non-esm lookup error = %v", err)
	}
}

func TestPackage(t *testing.T) {
	r, _ := newTestRunner(t)
	p, err := r.Package("preact@10.19.0")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "preact" || p.Version != "10.19.0" {
		t.Errorf("Package = %+v", p)
	}
	if len(p.Dependencies) != 1 || p.Dependencies[0] != "htm@3.1.1" {
		t.Errorf("Dependencies = %v", p.Dependencies)
	}
	if _, err := r.Package("left-pad@1.0.0"); !errs.Is(err, errs.ErrCodePackageNotFound) {
		t.Errorf("unknown package error = %v", err)
	}
}

func TestStats(t *testing.T) {
	r, _ := newTestRunner(t)
	s := r.Stats()
	if s.ESM != 2 || s.NPM != 1 || s.Redirects != 1 {
		t.Errorf("Stats = %+v", s)
	}
}
