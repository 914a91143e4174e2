package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/deno-plc/build/pkg/buildinfo"
	"github.com/deno-plc/build/pkg/cache"
	"github.com/deno-plc/build/pkg/config"
	"github.com/deno-plc/build/pkg/graph"
	"github.com/deno-plc/build/pkg/info"
	"github.com/deno-plc/build/pkg/pipeline"
	"github.com/deno-plc/build/pkg/transform"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	flags  globalFlags
}

type globalFlags struct {
	configPath string
	jsonConfig string
	root       string
	rootModule string
	deno       string
	infoFile   string
	noCache    bool
}

// New creates a CLI logging to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   config.AppName,
		Short: "plcbuild serves a Deno module graph as browser-ready JavaScript",
		Long: `plcbuild resolves the module graph of a Deno project once and serves its
modules to the browser on demand, with TypeScript and JSX compiled and every
import rewritten to a URL the server can answer.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.configPath, "config", "c", "", "config file (default <root>/"+config.FileName+")")
	pf.StringVar(&c.flags.jsonConfig, "json", "", "config as a JSON object, applied over the config file")
	pf.StringVar(&c.flags.root, "root", "", "project root directory (default: working directory)")
	pf.StringVarP(&c.flags.rootModule, "module", "m", "", "root module, specifier or path relative to the root")
	pf.StringVar(&c.flags.deno, "deno", "", "deno executable")
	pf.StringVar(&c.flags.infoFile, "info", "", "read the graph from a saved `deno info --json` file instead of running deno")
	pf.BoolVar(&c.flags.noCache, "no-cache", false, "disable the transform cache")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.transformCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())
	return root
}

// loadConfig layers defaults, config file, --json and global flags.
// Commands apply their own flags on top before validating.
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.flags.configPath, c.flags.root)
	if err != nil {
		return nil, err
	}
	if c.flags.jsonConfig != "" {
		if err := cfg.ApplyJSON([]byte(c.flags.jsonConfig)); err != nil {
			return nil, err
		}
	}

	pf := cmd.Flags()
	if pf.Changed("root") {
		cfg.RootDir = c.flags.root
	}
	if pf.Changed("module") {
		cfg.RootModule = c.flags.rootModule
	}
	if pf.Changed("deno") {
		cfg.Deno = c.flags.deno
	}
	if c.flags.noCache {
		cfg.Cache.Backend = config.BackendNone
	}
	return cfg, nil
}

// loadGraph resolves the module graph, from deno or from --info.
func (c *CLI) loadGraph(ctx context.Context, cfg *config.Config) (*graph.Graph, error) {
	prog := newProgress(c.Logger)

	var (
		in  *info.Info
		err error
	)
	if c.flags.infoFile != "" {
		in, err = readInfoFile(c.flags.infoFile)
	} else {
		root, rerr := cfg.RootSpecifier()
		if rerr != nil {
			return nil, rerr
		}
		spin := newSpinnerWithContext(ctx, "Resolving module graph")
		spin.Start()
		in, err = info.Run(ctx, info.Options{Executable: cfg.Deno, Dir: cfg.RootDir, Specifier: root.String()})
		spin.Stop()
	}
	if err != nil {
		return nil, err
	}

	g, err := graph.Build(in, cfg.RootDir, graph.WithLogger(c.Logger))
	if err != nil {
		return nil, err
	}
	s := g.Stats()
	prog.done(fmt.Sprintf("Built graph of %d modules and %d npm packages", s.Modules, s.Packages))
	return g, nil
}

func readInfoFile(path string) (*info.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return info.Decode(f)
}

// newCache opens the configured backend, scoped to the project root so
// several projects can share one cache.
func (c *CLI) newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	scope := cache.Hash([]byte(cfg.RootDir))[:12] + ":"
	switch cfg.Cache.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		return cache.Scoped(rc, config.AppName+":"+scope), nil
	}
	dir, err := cfg.CacheDir()
	if err != nil {
		c.Logger.Warn("no cache directory, caching disabled", "err", err)
		return cache.NewNullCache(), nil
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return nil, err
	}
	return cache.Scoped(fc, scope), nil
}

// newRunner wires graph, workers and cache into a pipeline runner.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, g *graph.Graph) (*pipeline.Runner, error) {
	cc, err := c.newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	engine := transform.New(
		transform.WithJSXImportSource(cfg.JSXImportSource),
		transform.WithLogger(c.Logger),
	)
	r := pipeline.NewRunner(g, pipeline.NewWorkers(cfg.Workers, engine, c.Logger), cc, c.Logger)
	if cfg.Cache.TTL.Duration > 0 {
		r.CacheTTL = cfg.Cache.TTL.Duration
	}
	return r, nil
}
