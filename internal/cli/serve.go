package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/deno-plc/build/pkg/config"
	"github.com/deno-plc/build/pkg/observability"
	"github.com/deno-plc/build/pkg/server"
)

type serveFlags struct {
	host    string
	port    int
	workers int
	hmr     bool
	jsx     string
	backend string
}

func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("host") {
		cfg.Host = f.host
	}
	if fl.Changed("port") {
		cfg.Port = f.port
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("hmr") {
		cfg.HMR = f.hmr
	}
	if fl.Changed("jsx-import-source") {
		cfg.JSXImportSource = f.jsx
	}
	if fl.Changed("cache") {
		cfg.Cache.Backend = f.backend
	}
}

func (c *CLI) serveCommand() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Resolve the module graph and serve it over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			// metrics first, so the graph build is recorded
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			observability.NewMetrics(reg).Install()
			defer observability.Reset()

			ctx := cmd.Context()
			g, err := c.loadGraph(ctx, cfg)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(ctx, cfg, g)
			if err != nil {
				return err
			}
			defer runner.Close()

			srv := server.New(runner,
				server.WithLogger(c.Logger),
				server.WithDefaultHMR(cfg.HMR),
				server.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
			)
			printSuccess("Graph server listening on %s", StyleHighlight.Render("http://"+cfg.Addr()))
			return srv.Serve(ctx, cfg.Addr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.host, "host", "", "listen host (default ::1)")
	f.IntVarP(&flags.port, "port", "p", 0, "listen port (default 3000)")
	f.IntVarP(&flags.workers, "workers", "w", 0, "transform workers (default: one per CPU)")
	f.BoolVar(&flags.hmr, "hmr", false, "default to hot module reload output")
	f.StringVar(&flags.jsx, "jsx-import-source", "", "JSX runtime package (default preact)")
	f.StringVar(&flags.backend, "cache", "", "cache backend: none, file or redis")
	return cmd
}
