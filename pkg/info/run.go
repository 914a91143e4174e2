package info

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	errs "github.com/deno-plc/build/pkg/errors"
)

// DefaultExecutable is the graph tool looked up on PATH when none is given.
const DefaultExecutable = "deno"

// Options configures [Run].
type Options struct {
	Executable string // defaults to DefaultExecutable
	Dir        string // working directory, usually the project root
	Specifier  string // root module, absolute URL or path relative to Dir
}

// Run invokes `deno info --json` for the root module and decodes its output.
func Run(ctx context.Context, opts Options) (*Info, error) {
	exe := opts.Executable
	if exe == "" {
		exe = DefaultExecutable
	}
	if opts.Specifier == "" {
		return nil, errs.New(errs.ErrCodeInvalidInput, "no root module given")
	}

	cmd := exec.CommandContext(ctx, exe, "info", "--json", opts.Specifier)
	cmd.Dir = opts.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, ok := err.(*exec.ExitError); ok {
			return nil, errs.Wrap(errs.ErrCodeGraphTool, err,
				"deno info command failed: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, errs.Wrap(errs.ErrCodeGraphTool, err, "failed to execute %s info", exe)
	}
	return DecodeBytes(stdout.Bytes())
}
