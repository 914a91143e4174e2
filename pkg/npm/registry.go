// Package npm holds the npm packages referenced by the module graph.
//
// A [Registry] is built once from the descriptor's package map. Every package
// is reachable under the descriptor key and, when different, under its
// canonical "name@version" key. Dependency edges are resolved in a second
// pass after all packages are known; names that do not resolve are logged
// and dropped.
package npm

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/deno-plc/build/pkg/info"
	"github.com/deno-plc/build/pkg/link"
	"github.com/deno-plc/build/pkg/observability"
)

// Package is a resolved registry package.
type Package struct {
	id          PackageID
	registryURL string
	deps        *link.Link[string, *Package]
}

func newPackage(raw info.NpmPackage) *Package {
	return &Package{
		id:          PackageID{Name: raw.Name, Version: raw.Version},
		registryURL: raw.RegistryURL,
		deps:        link.New[string, *Package](raw.Dependencies),
	}
}

// ID returns the package identity.
func (p *Package) ID() PackageID { return p.id }

// RegistryURL returns the registry the package was fetched from.
func (p *Package) RegistryURL() string { return p.registryURL }

// Dependencies returns the resolved dependency ids sorted by id. It is empty
// until the registry has linked the package.
func (p *Package) Dependencies() []PackageID {
	table, ok := p.deps.TryResolved()
	if !ok {
		return nil
	}
	out := make([]PackageID, 0, len(table))
	for _, dep := range table {
		out = append(out, dep.id)
	}
	slices.SortFunc(out, func(a, b PackageID) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Dependency returns the resolved package behind a raw dependency name.
func (p *Package) Dependency(name string) (*Package, bool) {
	return p.deps.Get(name)
}

func (p *Package) link(resolve func(string) (*Package, bool), logger *log.Logger) {
	raw, ok := p.deps.TakeRaw()
	if !ok {
		return
	}
	resolved := make(map[string]*Package, len(raw))
	for _, name := range raw {
		dep, ok := resolve(name)
		if !ok {
			logger.Warn("failed to resolve npm dependency", "dependency", name, "package", p.id)
			observability.Graph().OnUnresolved("npm_dependency")
			continue
		}
		resolved[name] = dep
	}
	if err := p.deps.SetResolved(resolved); err != nil {
		panic(err)
	}
}

// Registry maps package keys to packages.
type Registry struct {
	packages map[string]*Package
}

// NewRegistry builds and links a registry from descriptor packages.
func NewRegistry(raw map[string]info.NpmPackage, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{packages: make(map[string]*Package, len(raw))}

	for key, rp := range raw {
		r.packages[key] = newPackage(rp)
	}
	// descriptor keys win over canonical aliases
	for key, pkg := range maps.Clone(r.packages) {
		if short := pkg.id.String(); short != key {
			if _, taken := r.packages[short]; !taken {
				r.packages[short] = pkg
			}
		}
	}

	// aliased entries share one *Package; TakeRaw makes the second visit a no-op
	for _, pkg := range r.packages {
		pkg.link(r.Get, logger)
	}
	return r
}

// Get looks up a package by descriptor key or "name@version".
func (r *Registry) Get(key string) (*Package, bool) {
	p, ok := r.packages[key]
	return p, ok
}

// Len returns the number of keys, counting aliases.
func (r *Registry) Len() int { return len(r.packages) }

// Packages returns the distinct packages sorted by id.
func (r *Registry) Packages() []*Package {
	seen := make(map[*Package]struct{}, len(r.packages))
	out := make([]*Package, 0, len(r.packages))
	for _, p := range r.packages {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Package) int {
		return strings.Compare(a.id.String(), b.id.String())
	})
	return out
}
