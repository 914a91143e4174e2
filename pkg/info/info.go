// Package info decodes the module-graph descriptor emitted by `deno info --json`.
//
// The descriptor is the only input the module graph is built from: a list of
// roots, a flat module list tagged by kind, the npm package map and the
// redirect map. [Decode] validates the schema version and, when the document
// does not match the expected shape, salvages per-module diagnostics from it
// so the caller sees why the graph tool failed rather than a bare JSON error.
package info

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/specifier"
)

// SchemaVersion is the only descriptor version this package understands.
const SchemaVersion = 1

// Info is a decoded graph descriptor.
type Info struct {
	Version     int                             `json:"version"`
	Roots       []*specifier.Specifier          `json:"roots"`
	Modules     []Module                        `json:"modules"`
	NpmPackages map[string]NpmPackage           `json:"npmPackages"`
	Packages    map[string]string               `json:"packages"`
	Redirects   map[string]*specifier.Specifier `json:"redirects"`
}

// Kind tags a descriptor module.
type Kind string

const (
	KindESM      Kind = "esm"
	KindNpm      Kind = "npm"
	KindNode     Kind = "node"
	KindExternal Kind = "external"
)

// Module is one entry of the descriptor module list. Exactly one of the
// variant pointers is set, matching Kind.
type Module struct {
	Kind     Kind
	ESM      *EsmModule
	Npm      *NpmModule
	Node     *NodeModule
	External *ExternalModule
}

// Specifier returns the specifier of whichever variant is set.
func (m Module) Specifier() *specifier.Specifier {
	switch m.Kind {
	case KindESM:
		return m.ESM.Specifier
	case KindNpm:
		return m.Npm.Specifier
	case KindNode:
		return m.Node.Specifier
	case KindExternal:
		return m.External.Specifier
	}
	return nil
}

// MediaType returns the module's media type. Non-ESM variants report
// JavaScript for node built-ins and Unknown otherwise.
func (m Module) MediaType() MediaType {
	switch m.Kind {
	case KindESM:
		return m.ESM.MediaType
	case KindNode:
		return MediaJavaScript
	}
	return MediaUnknown
}

func (m *Module) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	var target any
	switch head.Kind {
	case KindESM:
		m.ESM = &EsmModule{}
		target = m.ESM
	case KindNpm:
		m.Npm = &NpmModule{}
		target = m.Npm
	case KindNode:
		m.Node = &NodeModule{}
		target = m.Node
	case KindExternal:
		m.External = &ExternalModule{}
		target = m.External
	default:
		return fmt.Errorf("unknown module kind %q", head.Kind)
	}
	m.Kind = head.Kind

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%s module: %w", head.Kind, err)
	}
	if m.Specifier() == nil {
		return fmt.Errorf("%s module: missing specifier", head.Kind)
	}
	return nil
}

func (m Module) MarshalJSON() ([]byte, error) {
	var body any
	switch m.Kind {
	case KindESM:
		body = m.ESM
	case KindNpm:
		body = m.Npm
	case KindNode:
		body = m.Node
	case KindExternal:
		body = m.External
	default:
		return nil, fmt.Errorf("unknown module kind %q", m.Kind)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	// splice the tag in front of the variant fields
	tag := fmt.Sprintf(`{"kind":%q`, m.Kind)
	if len(raw) > 2 {
		tag += ","
	}
	return append([]byte(tag), raw[1:]...), nil
}

// EsmModule is a local or remote ECMAScript module.
type EsmModule struct {
	Specifier    *specifier.Specifier `json:"specifier"`
	MediaType    MediaType            `json:"mediaType"`
	Local        string               `json:"local"`
	Dependencies []Dependency         `json:"dependencies,omitempty"`
}

// Dependency is one declared import of an ESM module. Code is nil for
// type-only imports.
type Dependency struct {
	Specifier string   `json:"specifier"`
	Code      *CodeRef `json:"code,omitempty"`
}

// CodeRef is the resolved runtime target of a dependency.
type CodeRef struct {
	Specifier *specifier.Specifier `json:"specifier"`
}

// NpmModule binds a specifier to an npm package key.
type NpmModule struct {
	Specifier  *specifier.Specifier `json:"specifier"`
	NpmPackage string               `json:"npmPackage"`
}

// NodeModule is a platform built-in such as "node:fs".
type NodeModule struct {
	Specifier  *specifier.Specifier `json:"specifier"`
	ModuleName string               `json:"moduleName"`
}

// ExternalModule is a reference the graph tool did not follow.
type ExternalModule struct {
	Specifier *specifier.Specifier `json:"specifier"`
}

// NpmPackage is a package entry of the descriptor.
type NpmPackage struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies"`
	RegistryURL  string   `json:"registryUrl"`
}

// Decode reads a descriptor from r.
//
// A document that fails to decode is re-read leniently; any module or
// dependency errors it reports are folded into the returned error.
func Decode(r io.Reader) (*Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeGraphTool, err, "failed to read graph descriptor")
	}
	return DecodeBytes(data)
}

// DecodeBytes is [Decode] for an in-memory document.
func DecodeBytes(data []byte) (*Info, error) {
	var info Info
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&info); err != nil {
		if diags := preflightDiagnostics(data); len(diags) > 0 {
			return nil, errs.Wrap(errs.ErrCodeGraphTool, err,
				"failed to parse graph descriptor:\n%s", strings.Join(diags, "\n"))
		}
		return nil, errs.Wrap(errs.ErrCodeGraphTool, err, "failed to parse graph descriptor")
	}
	if info.Version != SchemaVersion {
		return nil, errs.New(errs.ErrCodeUnsupportedSchema,
			"unsupported graph descriptor schema version: %d", info.Version)
	}
	return &info, nil
}
