package transform

import (
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/deno-plc/build/pkg/graph"
)

// Served path prefixes understood by the dev server.
const (
	ModulePrefix = "/@module/"
	ErrorPrefix  = "/@module/error/"
	NpmPrefix    = "/@npm/"
)

// Resolve looks raw up in the importer's table and then in the graph's
// global import table.
func Resolve(g *graph.Graph, importer *graph.ESMModule, raw string) (graph.Module, bool) {
	if m, ok := importer.LookupImport(raw); ok {
		return m, true
	}
	return g.GlobalImport(raw)
}

// ServedPath returns the URL path the browser should request for raw as
// imported by importer. Unresolvable imports map to an error path carrying
// the diagnostic, so the failure surfaces where the module is requested.
func ServedPath(g *graph.Graph, importer *graph.ESMModule, raw string) (string, bool) {
	target, ok := Resolve(g, importer, raw)
	if !ok {
		return ErrorPrefix + Encode("Failed to resolve import "+raw), false
	}
	return ModulePath(g, target), true
}

// ModulePath returns the served path of a resolved module.
func ModulePath(g *graph.Graph, m graph.Module) string {
	switch m := m.(type) {
	case *graph.ESMModule:
		spec := m.Specifier()
		switch spec.Scheme() {
		case "file":
			path, err := spec.FilePath()
			if err != nil {
				return ErrorPrefix + "invalid-file-url"
			}
			if rel, ok := g.RelativePath(path); ok {
				return "/" + rel
			}
			return ModulePrefix + Encode(strings.ReplaceAll(spec.String(), `\`, "/"))
		case "http", "https":
			return ModulePrefix + Encode(spec.String())
		default:
			return ErrorPrefix + Encode("Unsupported scheme for ESM Import")
		}
	case *graph.NPMImport:
		id := m.Package().ID()
		p := NpmPrefix + Encode(id.Name) + "/" + id.Version
		if sub := m.Subpath(); sub != "" {
			p += "/" + Encode(sub)
		}
		return p
	case *graph.VirtualModule:
		return ModulePrefix + Encode(strings.ReplaceAll(m.Specifier().String(), `\`, "/"))
	}
	return ErrorPrefix + Encode("Unknown module kind")
}

// Encode percent-encodes every byte except ASCII letters, digits and
// "-_.~".
func Encode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Fingerprint digests the graph state that decides how importer's imports are
// rewritten: the root directory, the importer's own table and the global
// import table, each rendered as served paths. Two graphs with equal
// fingerprints produce the same output for the same source.
func Fingerprint(g *graph.Graph, importer *graph.ESMModule) string {
	h := xxhash.New()
	fmt.Fprintf(h, "root %q\n", g.RootDir())
	if table, ok := importer.LookupTable(); ok {
		writeTable(h, "import", g, table)
	}
	writeTable(h, "global", g, g.GlobalImports())
	return strconv.FormatUint(h.Sum64(), 16)
}

func writeTable(w io.Writer, kind string, g *graph.Graph, table map[string]graph.Module) {
	for _, raw := range slices.Sorted(maps.Keys(table)) {
		fmt.Fprintf(w, "%s %q %q\n", kind, raw, ModulePath(g, table[raw]))
	}
}
