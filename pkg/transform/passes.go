package transform

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/evanw/esbuild/pkg/api"

	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/graph"
	"github.com/deno-plc/build/pkg/info"
)

// unit is the value threaded through the passes of one transform call.
type unit struct {
	source string
	spec   string
	hmr    bool
	graph  *graph.Graph
	module *graph.ESMModule

	code         string
	sourceMap    []byte
	sourceMapURL string
	rewrites     map[string]string // served path -> original import string
	tags         []string          // tag index -> original import string
	hash         string
	components   []component
}

func newUnit(opts Options) unit {
	return unit{
		source: opts.Code,
		spec:   opts.Module.Specifier().String(),
		hmr:    opts.HMR,
		graph:  opts.Graph,
		module: opts.Module,
	}
}

type pass struct {
	name string
	run  func(unit) (unit, error)
	when func(unit) bool
}

// servedNamespace keeps esbuild from relativizing external paths.
const servedNamespace = "served"

// importTag marks served paths shared by several import strings, so each
// printed import can be traced back to the string it was written with.
// annotate strips every tag again.
const importTag = "#plcbuild-import-"

var importTagRe = regexp.MustCompile(regexp.QuoteMeta(importTag) + `\d+`)

// loaderFor parses every script as TypeScript with JSX, like the dev server
// always has; only JSON keeps its own loader.
func loaderFor(mt info.MediaType) (api.Loader, error) {
	switch mt {
	case info.MediaJson:
		return api.LoaderJSON, nil
	case info.MediaCss, info.MediaHtml, info.MediaSql, info.MediaWasm, info.MediaSourceMap:
		return api.LoaderNone, errs.New(errs.ErrCodeUnsupported, "cannot transform %s modules", mt)
	}
	return api.LoaderTSX, nil
}

// rewriter records every import esbuild asks to resolve and answers with the
// served path. esbuild calls resolve callbacks concurrently.
type rewriter struct {
	graph  *graph.Graph
	module *graph.ESMModule
	shared map[string]bool

	mu    sync.Mutex
	seen  map[string][]string
	tags  []string
	tagOf map[string]int
}

func newRewriter(g *graph.Graph, m *graph.ESMModule) *rewriter {
	return &rewriter{
		graph:  g,
		module: m,
		shared: sharedPaths(g, m),
		seen:   make(map[string][]string),
		tagOf:  make(map[string]int),
	}
}

// sharedPaths returns the served paths that more than one import string
// visible to m resolves to.
func sharedPaths(g *graph.Graph, m *graph.ESMModule) map[string]bool {
	raws := make(map[string][]string)
	add := func(table map[string]graph.Module) {
		for raw := range table {
			served, _ := ServedPath(g, m, raw)
			if !slices.Contains(raws[served], raw) {
				raws[served] = append(raws[served], raw)
			}
		}
	}
	if table, ok := m.LookupTable(); ok {
		add(table)
	}
	add(g.GlobalImports())

	shared := make(map[string]bool)
	for served, list := range raws {
		if len(list) > 1 {
			shared[served] = true
		}
	}
	return shared
}

func (r *rewriter) plugin() api.Plugin {
	return api.Plugin{
		Name: "served-paths",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint {
						return api.OnResolveResult{}, nil
					}
					served, _ := ServedPath(r.graph, r.module, args.Path)
					return api.OnResolveResult{
						Path:      r.record(served, args.Path),
						External:  true,
						Namespace: servedNamespace,
					}, nil
				})
		},
	}
}

// record notes original under served and returns the path esbuild should
// print, tagged when served is shared.
func (r *rewriter) record(served, original string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.seen[served], original) {
		r.seen[served] = append(r.seen[served], original)
	}
	if !r.shared[served] {
		return served
	}
	n, ok := r.tagOf[original]
	if !ok {
		n = len(r.tags)
		r.tags = append(r.tags, original)
		r.tagOf[original] = n
	}
	return served + importTag + strconv.Itoa(n)
}

// rewrites picks one original per served path, the smallest, so output is
// stable across runs. Tagged paths are annotated from the tags instead.
func (r *rewriter) rewrites() (map[string]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.seen))
	for served, originals := range r.seen {
		out[served] = slices.Min(originals)
	}
	return out, slices.Clone(r.tags)
}

// sourceName splits the module location into the resolve directory and file
// name handed to esbuild. esbuild joins the two and prints the result
// relative to the root directory, in headers and JSX debug info.
func sourceName(g *graph.Graph, m *graph.ESMModule) (dir, name string) {
	spec := m.Specifier()
	if local := m.LocalPath(); local != "" && spec.IsFile() {
		return filepath.Dir(local), filepath.Base(local)
	}
	u := spec.URL()
	return g.RootDir(), strings.TrimPrefix(u.Host+u.Path, "/")
}

func (e *Engine) compile(u unit) (unit, error) {
	loader, err := loaderFor(u.module.MediaType())
	if err != nil {
		return u, err
	}

	rw := newRewriter(u.graph, u.module)
	resolveDir, name := sourceName(u.graph, u.module)

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   u.source,
			ResolveDir: resolveDir,
			Sourcefile: name,
			Loader:     loader,
		},
		AbsWorkingDir:   u.graph.RootDir(),
		Bundle:          true,
		Write:           false,
		Outfile:         "out.js",
		Format:          api.FormatESModule,
		Platform:        api.PlatformBrowser,
		Target:          api.ESNext,
		Sourcemap:       api.SourceMapExternal,
		SourcesContent:  api.SourcesContentInclude,
		JSX:             api.JSXAutomatic,
		JSXImportSource: e.jsxImportSource,
		JSXDev:          u.hmr,
		TreeShaking:     api.TreeShakingFalse,
		LogLevel:        api.LogLevelSilent,
		Plugins:         []api.Plugin{rw.plugin()},
	})

	if len(result.Errors) > 0 {
		return u, parseError(u.spec, result.Errors)
	}
	for _, w := range result.Warnings {
		e.logger.Debug("transform warning", "module", u.spec, "warning", formatMessage(w))
	}

	for _, f := range result.OutputFiles {
		switch {
		case strings.HasSuffix(f.Path, ".map"):
			u.sourceMap = f.Contents
		case strings.HasSuffix(f.Path, ".js"):
			u.code = relabelHeader(string(f.Contents), u.spec)
		}
	}
	if u.sourceMap == nil {
		return u, fmt.Errorf("no source map emitted")
	}
	u.rewrites, u.tags = rw.rewrites()
	return u, nil
}

// relabelHeader replaces the "// <path>" line esbuild puts above bundled
// code with the module specifier. The line itself stays so source map line
// numbers hold.
func relabelHeader(code, spec string) string {
	lines := strings.SplitN(code, "\n", 2)
	first := lines[0]
	if !strings.HasPrefix(first, "// ") || strings.HasPrefix(first, "//#") || strings.HasPrefix(first, "//!") {
		return code
	}
	lines[0] = "// " + spec
	return strings.Join(lines, "\n")
}

func parseError(spec string, msgs []api.Message) error {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, formatMessage(m))
	}
	return errs.Wrap(errs.ErrCodeTransformParse, fmt.Errorf("%s", strings.Join(lines, "\n")),
		"failed to parse %s: %s", spec, lines[0])
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text)
}

var (
	fromClauseRe = regexp.MustCompile(`\bfrom\s*"([^"\n]+)";?\s*$`)
	bareImportRe = regexp.MustCompile(`^\s*import\s*"([^"\n]+)";?\s*$`)
)

// annotate appends ` // import "<original>";` to every import or re-export
// line whose specifier was rewritten. Only line ends and import tags change,
// so source map lines stay valid.
func annotate(u unit) (unit, error) {
	if len(u.rewrites) == 0 {
		return u, nil
	}
	lines := strings.Split(u.code, "\n")
	for i, line := range lines {
		m := fromClauseRe.FindStringSubmatch(line)
		if m == nil {
			m = bareImportRe.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		printed := m[1]
		if served, original, ok := u.untag(printed); ok {
			line = strings.Replace(line, `"`+printed+`"`, strconv.Quote(served), 1)
			lines[i] = fmt.Sprintf("%s // import %q;", line, original)
			continue
		}
		if original, ok := u.rewrites[printed]; ok {
			lines[i] = fmt.Sprintf("%s // import %q;", line, original)
		}
	}
	// tagged dynamic imports and multi-line clauses keep no annotation
	u.code = importTagRe.ReplaceAllString(strings.Join(lines, "\n"), "")
	return u, nil
}

// untag splits a tagged printed path into the served path and the import
// string it was resolved from.
func (u unit) untag(printed string) (served, original string, ok bool) {
	i := strings.LastIndex(printed, importTag)
	if i < 0 {
		return "", "", false
	}
	n, err := strconv.Atoi(printed[i+len(importTag):])
	if err != nil || n < 0 || n >= len(u.tags) {
		return "", "", false
	}
	return printed[:i], u.tags[n], true
}

// component is a top-level binding registered with the refresh runtime.
type component struct {
	name  string
	hooks []string
}

var (
	componentFuncRe = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s+([A-Z][\w$]*)\s*\(`)
	componentVarRe  = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Z][\w$]*)\s*=\s*(?:async\s+)?(?:function\b|\([^()]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>|(?:[\w$]+\.)*(?:memo|forwardRef)\s*\()`)
	hookCallRe      = regexp.MustCompile(`\b(use[A-Z0-9][\w$]*)\s*\(`)
)

func componentName(line string) string {
	if m := componentFuncRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := componentVarRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// nested reports whether line continues the top-level statement above it.
// esbuild indents nested lines and closes blocks at column zero.
func nested(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case ' ', '\t', '}', ')', ']':
		return true
	}
	return false
}

// findComponents returns the capitalized top-level functions, arrow
// functions and memo/forwardRef wrappers in code, each with the hooks its
// body calls in call order.
func findComponents(code string) []component {
	lines := strings.Split(code, "\n")
	seen := make(map[string]bool)
	var out []component
	for i := 0; i < len(lines); i++ {
		name := componentName(lines[i])
		if name == "" {
			continue
		}
		end := i + 1
		for end < len(lines) && nested(lines[end]) {
			end++
		}
		if !seen[name] {
			seen[name] = true
			c := component{name: name}
			for _, m := range hookCallRe.FindAllStringSubmatch(strings.Join(lines[i:end], "\n"), -1) {
				c.hooks = append(c.hooks, m[1])
			}
			out = append(out, c)
		}
		i = end - 1
	}
	return out
}

// signature is the hook signature key of c: hook names in call order. A
// changed key tells the refresh runtime to remount instead of keeping state.
func (c component) signature() string {
	var b strings.Builder
	for i, h := range c.hooks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(h + "{}")
	}
	return b.String()
}

// refresh registers top-level components with the hot reload runtime and
// hands it the hook signature of every component that calls hooks.
// Registration ids are keyed by a hash of the original source.
func refresh(u unit) (unit, error) {
	u.hash = fmt.Sprintf("%x", xxhash.Sum64String(u.source))
	u.components = findComponents(u.code)
	if len(u.components) == 0 {
		return u, nil
	}

	var b strings.Builder
	b.WriteString(u.code)
	if !strings.HasSuffix(u.code, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("if (typeof $RefreshReg$ === \"function\") {\n")
	for _, c := range u.components {
		fmt.Fprintf(&b, "  $RefreshReg$(%s, %q);\n", c.name, u.hash+" "+c.name)
	}
	b.WriteString("}\n")

	var sigs []component
	for _, c := range u.components {
		if len(c.hooks) > 0 {
			sigs = append(sigs, c)
		}
	}
	if len(sigs) > 0 {
		b.WriteString("if (typeof $RefreshSig$ === \"function\") {\n")
		for _, c := range sigs {
			fmt.Fprintf(&b, "  $RefreshSig$()(%s, %q);\n", c.name, c.signature())
		}
		b.WriteString("}\n")
	}
	u.code = b.String()
	return u, nil
}

// emit names the module by its specifier in the source map and inlines the
// map as a base64 data URL comment.
func emit(u unit) (unit, error) {
	sm, err := relabelSources(u.sourceMap, u.spec)
	if err != nil {
		return u, fmt.Errorf("rewrite source map: %w", err)
	}
	u.sourceMap = sm
	u.sourceMapURL = "data:application/json;base64," + base64.StdEncoding.EncodeToString(u.sourceMap)
	u.code = u.code + "\n//# sourceMappingURL=" + u.sourceMapURL
	return u, nil
}

// relabelSources points every source of a single-module map at spec.
func relabelSources(sourceMap []byte, spec string) ([]byte, error) {
	var sm map[string]json.RawMessage
	if err := json.Unmarshal(sourceMap, &sm); err != nil {
		return nil, err
	}
	var sources []string
	if raw, ok := sm["sources"]; ok {
		if err := json.Unmarshal(raw, &sources); err != nil {
			return nil, err
		}
	}
	if len(sources) == 0 {
		sources = []string{spec}
	}
	for i := range sources {
		sources[i] = spec
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}
	sm["sources"] = raw
	return json.Marshal(sm)
}
