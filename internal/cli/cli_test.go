package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deno-plc/build/pkg/config"
	"github.com/deno-plc/build/pkg/info"
	"github.com/deno-plc/build/pkg/specifier"
)

// project writes a two-module app and a saved graph for it.
func project(t *testing.T) (dir, infoPath string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "xdg"))

	write := func(name, content string) *specifier.Specifier {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		s, err := specifier.FromFilePath(path)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	mainSpec := write("main.tsx", "import { a } from \"./a.ts\";\nexport const App = () => <b>{a}</b>;\n")
	aSpec := write("a.ts", "export const a: number = 1;\n")

	in := info.Info{
		Version: 1,
		Roots:   []*specifier.Specifier{mainSpec},
		Modules: []info.Module{
			{Kind: info.KindESM, ESM: &info.EsmModule{
				Specifier: mainSpec, MediaType: info.MediaTSX, Local: filepath.Join(dir, "main.tsx"),
				Dependencies: []info.Dependency{{Specifier: "./a.ts", Code: &info.CodeRef{Specifier: aSpec}}},
			}},
			{Kind: info.KindESM, ESM: &info.EsmModule{Specifier: aSpec, MediaType: info.MediaTypeScript, Local: filepath.Join(dir, "a.ts")}},
		},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	infoPath = filepath.Join(dir, "graph.json")
	if err := os.WriteFile(infoPath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, infoPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	captureOut(t)
	var stdout, logs bytes.Buffer
	root := New(&logs, LogInfo).RootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&logs)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestGraphLookup(t *testing.T) {
	dir, infoPath := project(t)
	got, err := run(t, "--root", dir, "--info", infoPath, "graph", "lookup", "--json", "main.tsx")
	if err != nil {
		t.Fatal(err)
	}
	var body struct{ Table map[string]string }
	if err := json.Unmarshal([]byte(got), &body); err != nil {
		t.Fatalf("output %q: %v", got, err)
	}
	if !strings.HasSuffix(body.Table["./a.ts"], "/a.ts") {
		t.Errorf("table = %v", body.Table)
	}
}

func TestGraphStats(t *testing.T) {
	dir, infoPath := project(t)
	got, err := run(t, "--root", dir, "--info", infoPath, "graph", "stats")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "esm") || !strings.Contains(got, "2") {
		t.Errorf("stats output = %q", got)
	}
}

func TestGraphDot(t *testing.T) {
	dir, infoPath := project(t)
	got, err := run(t, "--root", dir, "--info", infoPath, "graph", "dot")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "digraph modules {") {
		t.Errorf("dot output = %.60q", got)
	}
}

func TestTransformCommand(t *testing.T) {
	dir, infoPath := project(t)
	mapPath := filepath.Join(dir, "main.js.map")
	got, err := run(t, "--root", dir, "--info", infoPath, "transform", "--hmr", "--map", mapPath, "main.tsx")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`from "/a.ts"; // import "./a.ts";`, "$RefreshReg$(App", "sourceMappingURL=data:"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %s:\n%s", want, got)
		}
	}
	raw, err := os.ReadFile(mapPath)
	if err != nil || !bytes.Contains(raw, []byte(`"version":3`)) {
		t.Errorf("source map file = %.60q, %v", raw, err)
	}
}

func TestTransformUnknownModule(t *testing.T) {
	dir, infoPath := project(t)
	if _, err := run(t, "--root", dir, "--info", infoPath, "--no-cache", "transform", "nope.ts"); err == nil {
		t.Error("unknown module should fail")
	}
}

func TestConfigLayering(t *testing.T) {
	dir, _ := project(t)
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte("root_module = \"a.ts\"\ndeno = \"deno-file\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(&bytes.Buffer{}, LogInfo)
	root := c.RootCommand()
	cmd, _, err := root.Find([]string{"cache", "path"})
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.ParseFlags([]string{"--root", dir, "--json", `{"deno":"deno-json","port":4000}`, "--deno", "deno-flag"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := c.loadConfig(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RootModule != "a.ts" || cfg.Port != 4000 || cfg.Deno != "deno-flag" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestCacheCommands(t *testing.T) {
	dir, infoPath := project(t)
	got, err := run(t, "--root", dir, "cache", "path")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "xdg", config.AppName)
	if strings.TrimSpace(got) != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}

	if _, err := run(t, "--root", dir, "--info", infoPath, "transform", "main.tsx"); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(want)
	if len(entries) == 0 {
		t.Fatal("transform wrote nothing to the cache")
	}

	if _, err := run(t, "--root", dir, "cache", "clear"); err != nil {
		t.Fatal(err)
	}
	entries, _ = os.ReadDir(want)
	if len(entries) != 0 {
		t.Errorf("%d entries left after clear", len(entries))
	}
}

func TestDecodeDataURL(t *testing.T) {
	raw, err := decodeDataURL("data:application/json;base64,e30=")
	if err != nil || string(raw) != "{}" {
		t.Errorf("decodeDataURL = %q, %v", raw, err)
	}
	if _, err := decodeDataURL("not a data url"); err == nil {
		t.Error("expected error")
	}
}
