// Package specifier defines module specifiers: canonical absolute URLs that
// identify a module (file, http(s), npm, node and other synthetic schemes).
//
// Specifiers are immutable. An [Interner] hands out one shared *Specifier per
// distinct canonical string, so two interned specifiers are equal exactly when
// the pointers are equal.
package specifier

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotAbsolute is returned when a specifier has no scheme.
var ErrNotAbsolute = errors.New("specifier is not an absolute URL")

// ErrNotFileURL is returned by [Specifier.FilePath] for non-file specifiers.
var ErrNotFileURL = errors.New("specifier is not a file URL")

// Specifier is a parsed, canonical module URL.
type Specifier struct {
	u   *url.URL
	str string
}

// Parse parses an absolute URL into a Specifier.
func Parse(raw string) (*Specifier, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse specifier %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrNotAbsolute, raw)
	}
	return &Specifier{u: u, str: u.String()}, nil
}

// MustParse is like [Parse] but panics on error. Intended for tests and
// package-level constants.
func MustParse(raw string) *Specifier {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// FromFilePath builds a file: specifier from an absolute local path.
func FromFilePath(path string) (*Specifier, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // windows drive letter
	}
	return Parse((&url.URL{Scheme: "file", Path: p}).String())
}

// String returns the canonical URL string.
func (s *Specifier) String() string { return s.str }

// Scheme returns the URL scheme without the trailing colon.
func (s *Specifier) Scheme() string { return s.u.Scheme }

// Path returns the decoded URL path. For opaque URLs such as "node:fs" the
// opaque part is returned.
func (s *Specifier) Path() string {
	if s.u.Opaque != "" {
		return s.u.Opaque
	}
	return s.u.Path
}

// URL returns a copy of the underlying URL.
func (s *Specifier) URL() *url.URL {
	c := *s.u
	return &c
}

// IsFile reports whether the specifier uses the file scheme.
func (s *Specifier) IsFile() bool { return s.u.Scheme == "file" }

// FilePath converts a file: specifier into a local path using the host
// platform's separators.
func (s *Specifier) FilePath() (string, error) {
	if !s.IsFile() {
		return "", fmt.Errorf("%w: %s", ErrNotFileURL, s.str)
	}
	if h := s.u.Host; h != "" && h != "localhost" {
		return "", fmt.Errorf("%w: unsupported host %q", ErrNotFileURL, h)
	}
	p := s.u.Path
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFileURL)
	}
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:] // "/C:/dev" -> "C:/dev"
	}
	return filepath.FromSlash(p), nil
}

// MarshalText implements encoding.TextMarshaler.
func (s *Specifier) MarshalText() ([]byte, error) {
	return []byte(s.str), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Specifier) UnmarshalText(text []byte) error {
	p, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = *p
	return nil
}

// Interner deduplicates specifiers by canonical string.
// It is safe for concurrent use.
type Interner struct {
	mu   sync.Mutex
	seen map[string]*Specifier
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{seen: make(map[string]*Specifier)}
}

// Intern returns the shared instance equal to s, registering s if it is the
// first of its value.
func (in *Interner) Intern(s *Specifier) *Specifier {
	in.mu.Lock()
	defer in.mu.Unlock()
	if shared, ok := in.seen[s.str]; ok {
		return shared
	}
	in.seen[s.str] = s
	return s
}

// InternString parses raw and interns the result.
func (in *Interner) InternString(raw string) (*Specifier, error) {
	s, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return in.Intern(s), nil
}

// Lookup returns the interned instance for a canonical string, if any.
func (in *Interner) Lookup(raw string) (*Specifier, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	s, ok := in.seen[raw]
	return s, ok
}

// Len returns the number of distinct specifiers.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.seen)
}
