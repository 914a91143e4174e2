package graph

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/info"
	"github.com/deno-plc/build/pkg/link"
	"github.com/deno-plc/build/pkg/npm"
	"github.com/deno-plc/build/pkg/observability"
	"github.com/deno-plc/build/pkg/specifier"
)

// Module is a node of the module graph. The set of implementations is
// closed: *ESMModule, *NPMImport and *VirtualModule.
type Module interface {
	Specifier() *specifier.Specifier
	isModule()
}

// ESMModule is a local or remote ECMAScript module.
type ESMModule struct {
	spec      *specifier.Specifier
	mediaType info.MediaType
	local     string
	deps      *link.Link[info.Dependency, Module]
}

func newESMModule(spec *specifier.Specifier, raw *info.EsmModule) *ESMModule {
	return &ESMModule{
		spec:      spec,
		mediaType: raw.MediaType,
		local:     raw.Local,
		deps:      link.New[info.Dependency, Module](raw.Dependencies),
	}
}

func (m *ESMModule) Specifier() *specifier.Specifier { return m.spec }
func (*ESMModule) isModule()                          {}

// MediaType returns the media type reported by the graph tool.
func (m *ESMModule) MediaType() info.MediaType { return m.mediaType }

// LocalPath returns the on-disk location of the source: the file itself for
// file: modules, the tool's cache entry for remote ones.
func (m *ESMModule) LocalPath() string { return m.local }

// LookupImport resolves a raw import string through the module's own table.
func (m *ESMModule) LookupImport(raw string) (Module, bool) {
	return m.deps.Get(raw)
}

// LookupTable returns the resolved imports, or false before linking.
// The returned map must not be modified.
func (m *ESMModule) LookupTable() (map[string]Module, bool) {
	return m.deps.TryResolved()
}

// LoadCode reads the module source from LocalPath.
func (m *ESMModule) LoadCode(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(m.local)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.Wrap(errs.ErrCodeFileNotFound, err, "source of %s not found", m.spec)
		}
		return "", errs.Wrap(errs.ErrCodeInternal, err, "failed to read %s", m.spec)
	}
	return string(data), nil
}

// link resolves the raw dependency list once and returns the bare imports of
// file: modules, which become global package imports.
func (m *ESMModule) link(resolve func(*specifier.Specifier) (Module, bool), logger *log.Logger) map[string]Module {
	raw, ok := m.deps.TakeRaw()
	if !ok {
		return nil
	}

	resolved := make(map[string]Module, len(raw))
	globals := make(map[string]Module)
	for _, dep := range raw {
		if dep.Code == nil || dep.Code.Specifier == nil {
			continue // type-only
		}
		target, ok := resolve(dep.Code.Specifier)
		if !ok {
			logger.Warn("failed to resolve dependency",
				"source", dep.Code.Specifier, "import", dep.Specifier, "module", m.spec)
			observability.Graph().OnUnresolved("dependency")
			continue
		}
		if m.spec.IsFile() && !strings.HasPrefix(dep.Specifier, ".") {
			globals[dep.Specifier] = target
		}
		resolved[dep.Specifier] = target
	}

	if err := m.deps.SetResolved(resolved); err != nil {
		panic(err)
	}
	return globals
}

// NPMImport is a specifier bound to a resolved npm package.
type NPMImport struct {
	spec *specifier.Specifier
	pkg  *npm.Package
}

func (m *NPMImport) Specifier() *specifier.Specifier { return m.spec }
func (*NPMImport) isModule()                          {}

// Package returns the package the import belongs to.
func (m *NPMImport) Package() *npm.Package { return m.pkg }

// Subpath is the specifier path below the package name:
// "/@scope/pkg/lib/x.js" and "/pkg/lib/x.js" both give "lib/x.js".
func (m *NPMImport) Subpath() string {
	return subpath(m.spec.Path())
}

func subpath(p string) string {
	parts := strings.Split(p, "/")
	// parts[0] is empty for the leading slash, parts[1] the name or scope
	skip := 2
	if len(parts) > 1 && strings.HasPrefix(parts[1], "@") {
		skip = 3
	}
	if len(parts) <= skip {
		return ""
	}
	return strings.Join(parts[skip:], "/")
}

// VirtualModule is an identity-only module: a platform built-in or an
// external reference.
type VirtualModule struct {
	spec *specifier.Specifier
}

func (m *VirtualModule) Specifier() *specifier.Specifier { return m.spec }
func (*VirtualModule) isModule()                          {}

// Kind returns a short name for the variant of m.
func Kind(m Module) string {
	switch m.(type) {
	case *ESMModule:
		return "esm"
	case *NPMImport:
		return "npm"
	case *VirtualModule:
		return "virtual"
	}
	return "unknown"
}
