package buildinfo

import (
	"strings"
	"testing"
)

func TestTemplate(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "v9.9.9"

	tmpl := Template()
	for _, want := range []string{"{{.Name}} v9.9.9", "commit: ", "esbuild: "} {
		if !strings.Contains(tmpl, want) {
			t.Errorf("Template() = %q, missing %q", tmpl, want)
		}
	}
}

func TestDependencyVersionUnknown(t *testing.T) {
	if v := DependencyVersion("example.com/not/linked"); v != "unknown" {
		t.Errorf("DependencyVersion = %q", v)
	}
}
