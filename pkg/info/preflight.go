package info

import (
	"encoding/json"
	"fmt"
)

// preflight is a lenient view of a descriptor that only keeps error fields.
type preflight struct {
	Modules []preflightModule `json:"modules"`
}

type preflightModule struct {
	Kind         string                `json:"kind"`
	Specifier    *string               `json:"specifier"`
	Error        *string               `json:"error"`
	Dependencies []preflightDependency `json:"dependencies"`
}

type preflightDependency struct {
	Specifier string `json:"specifier"`
	Code      *struct {
		Error *string `json:"error"`
	} `json:"code"`
}

func (m preflightModule) diagnostics() []string {
	var out []string
	for _, dep := range m.Dependencies {
		if dep.Code != nil && dep.Code.Error != nil {
			out = append(out, fmt.Sprintf("Dependency %s:\n%s", dep.Specifier, *dep.Code.Error))
		}
	}
	if m.Error != nil {
		spec := "<no specifier available>"
		if m.Specifier != nil {
			spec = *m.Specifier
		}
		kind := m.Kind
		if kind == "" {
			kind = "module"
		}
		out = append(out, fmt.Sprintf("%s: %s %s", kind, spec, *m.Error))
	}
	return out
}

// preflightDiagnostics returns every error message found in data, or nil if
// data is not even leniently decodable.
func preflightDiagnostics(data []byte) []string {
	var p preflight
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	var out []string
	for _, m := range p.Modules {
		out = append(out, m.diagnostics()...)
	}
	return out
}
