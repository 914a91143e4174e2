// Package cli implements the plcbuild command-line interface.
//
// Commands:
//   - serve: resolve the module graph and start the HTTP server
//   - transform: print the browser-ready output of one module
//   - graph: inspect the module graph (lookup, stats, dot)
//   - cache: locate or clear the transform cache
//
// Every command reads its settings through pkg/config, so a plcbuild.toml in
// the project root applies to all of them. --verbose (-v) switches logging to
// debug level.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger with "HH:MM:SS.ms" timestamps.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs how long an operation took.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Built graph of 42 modules (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}
