// Package config loads server settings.
//
// Sources are applied in order, each overriding the previous:
//
//  1. [Default]
//  2. a TOML file, plcbuild.toml in the project root unless given explicitly
//  3. a JSON object, as passed with --json
//  4. command-line flags (applied by the CLI)
//
// A minimal plcbuild.toml:
//
//	root_module = "frontend/dev.client.tsx"
//	port = 3000
//
//	[cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//	ttl = "12h"
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/specifier"
)

// AppName names the config file and the cache directory.
const AppName = "plcbuild"

// FileName is the config file looked up in the project root.
const FileName = AppName + ".toml"

// Cache backends.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config is the full server configuration.
type Config struct {
	// RootDir is the project root. Modules inside it are served by path.
	RootDir string `toml:"root_dir" json:"root_path"`
	// RootModule is the entry point, either an absolute specifier or a path
	// relative to RootDir.
	RootModule string `toml:"root_module" json:"root_module"`

	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`

	// Deno is the executable used to compute the module graph.
	Deno    string `toml:"deno" json:"deno"`
	Workers int    `toml:"workers" json:"workers"`

	JSXImportSource string `toml:"jsx_import_source" json:"jsx_import_source"`
	// HMR is the default for transform requests that do not say.
	HMR bool `toml:"hmr" json:"hmr"`

	Cache CacheConfig `toml:"cache" json:"cache"`
}

// CacheConfig selects and configures the transform cache.
type CacheConfig struct {
	Backend  string   `toml:"backend" json:"backend"`
	Dir      string   `toml:"dir" json:"dir"`
	RedisURL string   `toml:"redis_url" json:"redis_url"`
	TTL      Duration `toml:"ttl" json:"ttl"`
}

// Duration reads "90s"-style strings from TOML and JSON.
type Duration struct{ time.Duration }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration rooted at the working
// directory.
func Default() *Config {
	wd, _ := os.Getwd()
	return &Config{
		RootDir:         wd,
		Host:            "::1",
		Port:            3000,
		Deno:            "deno",
		JSXImportSource: "preact",
		Cache: CacheConfig{
			Backend: BackendFile,
			TTL:     Duration{24 * time.Hour},
		},
	}
}

// Load builds a config from defaults and the TOML file at path. An empty path
// looks for FileName in rootDir (or the working directory) and is not an
// error when missing.
func Load(path, rootDir string) (*Config, error) {
	cfg := Default()
	if rootDir != "" {
		cfg.RootDir = rootDir
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.RootDir, FileName)
	}
	if err := cfg.ApplyFile(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyFile overlays the TOML file at path. Unknown keys are rejected. A
// relative root_dir in the file is resolved against the file's directory.
func (c *Config) ApplyFile(path string) error {
	before := c.RootDir
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return errs.Wrap(errs.ErrCodeInvalidConfig, err, "failed to parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errs.New(errs.ErrCodeInvalidConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if c.RootDir != before && !filepath.IsAbs(c.RootDir) {
		c.RootDir = filepath.Join(filepath.Dir(path), c.RootDir)
	}
	return nil
}

// ApplyJSON overlays a JSON object. "entrypoint" is accepted as an alias of
// "root_module".
func (c *Config) ApplyJSON(data []byte) error {
	aux := struct {
		*Config
		Entrypoint string `json:"entrypoint"`
	}{Config: c}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return errs.Wrap(errs.ErrCodeInvalidConfig, err, "invalid JSON config")
	}
	if aux.Entrypoint != "" {
		c.RootModule = aux.Entrypoint
	}
	return nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	var problems []string
	if c.RootDir == "" {
		problems = append(problems, "root_dir is required")
	}
	if c.RootModule == "" {
		problems = append(problems, "root_module is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Workers < 0 {
		problems = append(problems, "workers must not be negative")
	}
	if c.Deno == "" {
		problems = append(problems, "deno executable is required")
	}
	if !slices.Contains([]string{BackendNone, BackendFile, BackendRedis}, c.Cache.Backend) {
		problems = append(problems, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisURL == "" {
		problems = append(problems, "cache.redis_url is required for the redis backend")
	}
	if c.Cache.TTL.Duration < 0 {
		problems = append(problems, "cache.ttl must not be negative")
	}
	if len(problems) > 0 {
		return errs.New(errs.ErrCodeInvalidConfig, "%s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RootSpecifier resolves RootModule against RootDir.
func (c *Config) RootSpecifier() (*specifier.Specifier, error) {
	if s, err := specifier.Parse(c.RootModule); err == nil && len(s.Scheme()) > 1 {
		return s, nil
	}
	path := c.RootModule
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.RootDir, path)
	}
	s, err := specifier.FromFilePath(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidConfig, err, "invalid root module %q", c.RootModule)
	}
	return s, nil
}

// CacheDir returns Cache.Dir, or the user cache directory
// ($XDG_CACHE_HOME/plcbuild, ~/.cache/plcbuild).
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if home := os.Getenv("XDG_CACHE_HOME"); home != "" {
		return filepath.Join(home, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}
