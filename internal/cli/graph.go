package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deno-plc/build/pkg/config"
	"github.com/deno-plc/build/pkg/graph"
	"github.com/deno-plc/build/pkg/specifier"
)

func (c *CLI) graphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the module graph",
	}
	cmd.AddCommand(c.graphLookupCommand())
	cmd.AddCommand(c.graphStatsCommand())
	cmd.AddCommand(c.graphDotCommand())
	return cmd
}

// withGraph loads config and graph, then hands both to fn.
func (c *CLI) withGraph(fn func(cmd *cobra.Command, args []string, cfg *config.Config, g *graph.Graph) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := c.loadConfig(cmd)
		if err != nil {
			return err
		}
		if c.flags.infoFile != "" && cfg.RootModule == "" {
			// the saved graph names its own roots
			cfg.RootModule = "."
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		g, err := c.loadGraph(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return fn(cmd, args, cfg, g)
	}
}

func (c *CLI) graphLookupCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lookup <specifier>",
		Short: "Print how a module's imports resolve",
		Args:  cobra.ExactArgs(1),
		RunE: c.withGraph(func(cmd *cobra.Command, args []string, cfg *config.Config, g *graph.Graph) error {
			spec, err := resolveArg(cfg, args[0])
			if err != nil {
				return err
			}
			mod, err := g.LookupESM(spec)
			if err != nil {
				return err
			}
			resolved, _ := mod.LookupTable()
			table := make(map[string]string, len(resolved))
			for raw, m := range resolved {
				table[raw] = m.Specifier().String()
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"table": table})
			}
			fmt.Fprintln(w, StyleTitle.Render(mod.Specifier().String()))
			printTable(w, table)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the table as JSON")
	return cmd
}

func (c *CLI) graphStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print module and package counts",
		Args:  cobra.NoArgs,
		RunE: c.withGraph(func(cmd *cobra.Command, _ []string, _ *config.Config, g *graph.Graph) error {
			s := g.Stats()
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, StyleTitle.Render(g.RootSpecifier().String()))
			for _, kv := range []struct {
				k string
				v int
			}{
				{"modules", s.Modules},
				{"esm", s.ESM},
				{"npm imports", s.NPM},
				{"virtual", s.Virtual},
				{"npm packages", s.Packages},
				{"redirects", s.Redirects},
				{"global imports", s.GlobalImports},
				{"specifiers", s.Specifiers},
			} {
				printKeyValue(w, kv.k, strconv.Itoa(kv.v))
			}
			return nil
		}),
	}
}

func (c *CLI) graphDotCommand() *cobra.Command {
	var (
		opts    graph.DOTOptions
		outPath string
		svg     bool
	)
	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Export the module graph as Graphviz DOT or SVG",
		Args:  cobra.NoArgs,
		RunE: c.withGraph(func(cmd *cobra.Command, _ []string, _ *config.Config, g *graph.Graph) error {
			data := []byte(graph.ToDOT(g, opts))
			if svg {
				rendered, err := graph.RenderSVG(cmd.Context(), string(data))
				if err != nil {
					return err
				}
				data = rendered
			}
			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}
			printSuccess("Wrote %s", outPath)
			return nil
		}),
	}
	f := cmd.Flags()
	f.BoolVar(&opts.IncludeVirtual, "virtual", false, "include built-in and external modules")
	f.BoolVar(&opts.Packages, "packages", false, "collapse npm imports into one node per package")
	f.BoolVar(&svg, "svg", false, "render SVG with graphviz instead of printing DOT")
	f.StringVarP(&outPath, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

// resolveArg turns a command argument into a specifier: full specifiers pass
// through, anything else is a path relative to the project root.
func resolveArg(cfg *config.Config, arg string) (string, error) {
	if s, err := specifier.Parse(arg); err == nil && len(s.Scheme()) > 1 {
		return s.String(), nil
	}
	path := arg
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.RootDir, path)
	}
	s, err := specifier.FromFilePath(path)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}
