package graph

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/goccy/go-graphviz"
)

// DOTOptions configures [ToDOT].
type DOTOptions struct {
	// IncludeVirtual adds built-in and external modules as nodes.
	IncludeVirtual bool
	// Packages collapses npm imports into one node per package.
	Packages bool
}

// ToDOT renders the import edges of the graph in Graphviz DOT format.
// Nodes are sorted by specifier for stable output.
func ToDOT(g *Graph, opts DOTOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph modules {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12];\n")
	buf.WriteString("\n")

	nodeID := func(m Module) (string, bool) {
		switch m := m.(type) {
		case *ESMModule:
			return m.Specifier().String(), true
		case *NPMImport:
			if opts.Packages {
				return "npm:" + m.Package().ID().String(), true
			}
			return m.Specifier().String(), true
		case *VirtualModule:
			return m.Specifier().String(), opts.IncludeVirtual
		}
		return "", false
	}

	nodes := make(map[string]string)
	for _, m := range g.Modules() {
		if id, ok := nodeID(m); ok {
			nodes[id] = Kind(m)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(nodes)) {
		fmt.Fprintf(&buf, "  %q [%s];\n", id, nodeAttrs(id, nodes[id], g))
	}

	buf.WriteString("\n")
	for _, m := range g.Modules() {
		esm, ok := m.(*ESMModule)
		if !ok {
			continue
		}
		table, _ := esm.LookupTable()
		edges := make(map[string]struct{})
		for _, target := range table {
			if id, ok := nodeID(target); ok {
				edges[id] = struct{}{}
			}
		}
		for _, to := range slices.Sorted(maps.Keys(edges)) {
			fmt.Fprintf(&buf, "  %q -> %q;\n", esm.Specifier().String(), to)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(id, kind string, g *Graph) string {
	attrs := fmt.Sprintf("label=%q", id)
	switch kind {
	case "npm":
		attrs += ", fillcolor=\"#fde7c8\""
	case "virtual":
		attrs += ", style=\"rounded,filled,dashed\", fillcolor=lightgrey"
	}
	if g.rootSpec != nil && id == g.rootSpec.String() {
		attrs += ", penwidth=2"
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	parsed, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer parsed.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, parsed, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
