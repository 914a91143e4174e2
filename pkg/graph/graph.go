package graph

import (
	"errors"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/info"
	"github.com/deno-plc/build/pkg/npm"
	"github.com/deno-plc/build/pkg/observability"
	"github.com/deno-plc/build/pkg/specifier"
)

// ErrNoRoot is the cause of the error returned by [Build] for a descriptor
// without roots.
var ErrNoRoot = errors.New("graph: no root module")

// RedirectLimit bounds redirect chains followed by [Graph.ModuleWithRedirect].
const RedirectLimit = 10

// Graph is the module graph. It is immutable after [Build] returns and safe
// for concurrent readers.
type Graph struct {
	modules       map[string]Module
	redirects     map[string]*specifier.Specifier
	specifiers    *specifier.Interner
	rootSpec      *specifier.Specifier
	root          *ESMModule
	packages      *npm.Registry
	globalImports map[string]Module
	rootDir       string
	logger        *log.Logger
}

// Option configures [Build].
type Option func(*Graph)

// WithLogger sets the logger used for soft build and lookup failures.
func WithLogger(l *log.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// Build constructs the graph from a decoded descriptor. rootDir anchors the
// served paths of local files.
//
// Unknown npm package references, unresolvable dependencies and unknown
// npm dependency names are logged and skipped. Only a missing descriptor, an
// empty root list or a malformed redirect key fail the build.
func Build(in *info.Info, rootDir string, opts ...Option) (*Graph, error) {
	start := time.Now()
	if in == nil {
		return nil, errs.New(errs.ErrCodeInvalidInput, "no graph descriptor")
	}
	if len(in.Roots) == 0 || in.Roots[0] == nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, ErrNoRoot, "graph descriptor has no roots")
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "invalid root directory %q", rootDir)
	}

	g := &Graph{
		modules:       make(map[string]Module, len(in.Modules)),
		redirects:     make(map[string]*specifier.Specifier, len(in.Redirects)),
		specifiers:    specifier.NewInterner(),
		globalImports: make(map[string]Module),
		rootDir:       absRoot,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.packages = npm.NewRegistry(in.NpmPackages, g.logger)

	for _, raw := range in.Modules {
		if m := g.newModule(raw); m != nil {
			g.modules[m.Specifier().String()] = m
		}
	}

	g.rootSpec = g.specifiers.Intern(in.Roots[0])
	if m, ok := g.modules[g.rootSpec.String()].(*ESMModule); ok {
		g.root = m
	}

	for key, target := range in.Redirects {
		from, err := g.specifiers.InternString(key)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCodeInvalidSpecifier, err, "invalid redirect source %q", key)
		}
		if target == nil {
			continue
		}
		g.redirects[from.String()] = g.specifiers.Intern(target)
	}

	// sorted so that conflicting global bindings resolve the same way every run
	for _, key := range slices.Sorted(maps.Keys(g.modules)) {
		esm, ok := g.modules[key].(*ESMModule)
		if !ok {
			continue
		}
		maps.Copy(g.globalImports, esm.link(g.resolve, g.logger))
	}

	for _, name := range slices.Sorted(maps.Keys(g.globalImports)) {
		g.logger.Debug("global package import", "import", name, "target", g.globalImports[name].Specifier())
	}

	s := g.Stats()
	observability.Graph().OnGraphBuilt(s.Modules, s.Packages, s.GlobalImports, time.Since(start))
	return g, nil
}

func (g *Graph) newModule(raw info.Module) Module {
	switch raw.Kind {
	case info.KindESM:
		return newESMModule(g.specifiers.Intern(raw.ESM.Specifier), raw.ESM)
	case info.KindNpm:
		pkg, ok := g.packages.Get(raw.Npm.NpmPackage)
		if !ok {
			g.logger.Warn("failed to resolve npm module, unknown package reference",
				"package", raw.Npm.NpmPackage, "specifier", raw.Npm.Specifier)
			observability.Graph().OnUnresolved("npm_module")
			return nil
		}
		return &NPMImport{spec: g.specifiers.Intern(raw.Npm.Specifier), pkg: pkg}
	case info.KindNode:
		return &VirtualModule{spec: g.specifiers.Intern(raw.Node.Specifier)}
	case info.KindExternal:
		return &VirtualModule{spec: g.specifiers.Intern(raw.External.Specifier)}
	}
	return nil
}

func (g *Graph) resolve(s *specifier.Specifier) (Module, bool) {
	return g.ModuleWithRedirect(s)
}

// Root returns the root ESM module, or nil when the first descriptor root is
// not an ESM module.
func (g *Graph) Root() *ESMModule { return g.root }

// RootSpecifier returns the interned first root of the descriptor.
func (g *Graph) RootSpecifier() *specifier.Specifier { return g.rootSpec }

// RootDir returns the absolute project root.
func (g *Graph) RootDir() string { return g.rootDir }

// Specifiers returns the interner holding every specifier of the graph.
func (g *Graph) Specifiers() *specifier.Interner { return g.specifiers }

// Module returns the module stored at exactly s, without redirects.
func (g *Graph) Module(s *specifier.Specifier) (Module, bool) {
	m, ok := g.modules[s.String()]
	return m, ok
}

// ModuleWithRedirect returns the module at s, following at most
// RedirectLimit redirects.
func (g *Graph) ModuleWithRedirect(s *specifier.Specifier) (Module, bool) {
	key := s.String()
	for hops := 0; ; hops++ {
		if m, ok := g.modules[key]; ok {
			return m, true
		}
		next, ok := g.redirects[key]
		if !ok {
			return nil, false
		}
		if hops >= RedirectLimit {
			g.logger.Warn("redirect limit reached", "specifier", s, "last", key)
			observability.Graph().OnUnresolved("redirect_limit")
			return nil, false
		}
		key = next.String()
	}
}

// Lookup parses raw and resolves it with redirects. Canonical strings the
// graph already knows skip parsing.
func (g *Graph) Lookup(raw string) (Module, error) {
	s, ok := g.specifiers.Lookup(raw)
	if !ok {
		var err error
		if s, err = specifier.Parse(raw); err != nil {
			return nil, errs.Wrap(errs.ErrCodeInvalidSpecifier, err, "Invalid module specifier")
		}
	}
	m, ok := g.ModuleWithRedirect(s)
	if !ok {
		return nil, errs.New(errs.ErrCodeModuleNotFound, "Module not found")
	}
	return m, nil
}

// LookupESM is [Graph.Lookup] restricted to ESM modules.
func (g *Graph) LookupESM(raw string) (*ESMModule, error) {
	m, err := g.Lookup(raw)
	if err != nil {
		return nil, err
	}
	esm, ok := m.(*ESMModule)
	if !ok {
		return nil, errs.New(errs.ErrCodeNotESM, "Specifier exists, but points to a non-esm module")
	}
	return esm, nil
}

// Redirect returns the direct redirect target of s, if any.
func (g *Graph) Redirect(s *specifier.Specifier) (*specifier.Specifier, bool) {
	t, ok := g.redirects[s.String()]
	return t, ok
}

// GlobalImport resolves a bare import string declared by some file: module.
func (g *Graph) GlobalImport(raw string) (Module, bool) {
	m, ok := g.globalImports[raw]
	return m, ok
}

// GlobalImports returns a copy of the global package import table.
func (g *Graph) GlobalImports() map[string]Module {
	return maps.Clone(g.globalImports)
}

// NpmPackage looks up a package by descriptor key or "name@version".
func (g *Graph) NpmPackage(id string) (*npm.Package, bool) {
	return g.packages.Get(id)
}

// Packages returns the npm registry.
func (g *Graph) Packages() *npm.Registry { return g.packages }

// Modules returns every module sorted by specifier.
func (g *Graph) Modules() []Module {
	out := make([]Module, 0, len(g.modules))
	for _, key := range slices.Sorted(maps.Keys(g.modules)) {
		out = append(out, g.modules[key])
	}
	return out
}

// Stats summarizes the graph.
type Stats struct {
	Modules       int `json:"modules"`
	ESM           int `json:"esm"`
	NPM           int `json:"npm"`
	Virtual       int `json:"virtual"`
	Packages      int `json:"packages"`
	Redirects     int `json:"redirects"`
	GlobalImports int `json:"globalImports"`
	Specifiers    int `json:"specifiers"`
}

// Stats counts modules per variant, packages, redirects, global imports and
// interned specifiers.
func (g *Graph) Stats() Stats {
	s := Stats{
		Modules:       len(g.modules),
		Packages:      len(g.packages.Packages()),
		Redirects:     len(g.redirects),
		GlobalImports: len(g.globalImports),
		Specifiers:    g.specifiers.Len(),
	}
	for _, m := range g.modules {
		switch m.(type) {
		case *ESMModule:
			s.ESM++
		case *NPMImport:
			s.NPM++
		case *VirtualModule:
			s.Virtual++
		}
	}
	return s
}

// RelativePath returns the slash-separated path of a local file relative to
// the root directory, or false when the file lies outside it.
func (g *Graph) RelativePath(local string) (string, bool) {
	rel, err := filepath.Rel(g.rootDir, local)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	rel = strings.ReplaceAll(rel, `\`, "/")
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}
