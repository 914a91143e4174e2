package npm

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// PackageID identifies a registry package by name and version.
type PackageID struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// String returns "name@version".
func (id PackageID) String() string {
	return id.Name + "@" + id.Version
}

// ParseID splits "name@version". The search for the separator starts after
// the first character so scoped names like "@scope/pkg@1.0.0" parse.
func ParseID(s string) (PackageID, error) {
	if len(s) < 2 {
		return PackageID{}, fmt.Errorf("invalid package id %q", s)
	}
	at := strings.IndexByte(s[1:], '@')
	if at < 0 {
		return PackageID{}, fmt.Errorf("invalid package id %q: missing version", s)
	}
	return PackageID{Name: s[:at+1], Version: s[at+2:]}, nil
}

// Scoped reports whether the package name has an "@scope/" prefix.
func (id PackageID) Scoped() bool {
	return strings.HasPrefix(id.Name, "@")
}

// SemVer parses the version. Descriptor versions may carry a peer-dependency
// suffix ("1.2.3_react@18.2.0"), which is ignored.
func (id PackageID) SemVer() (*semver.Version, error) {
	v := id.Version
	if i := strings.IndexByte(v, '_'); i >= 0 {
		v = v[:i]
	}
	return semver.StrictNewVersion(v)
}
