package info

import (
	"encoding/json"
	"fmt"
)

// MediaType is the content type the graph tool assigned to a module.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaJavaScript
	MediaJSX
	MediaMjs
	MediaCjs
	MediaTypeScript
	MediaMts
	MediaCts
	MediaDts
	MediaDmts
	MediaDcts
	MediaTSX
	MediaCss
	MediaJson
	MediaHtml
	MediaSql
	MediaWasm
	MediaSourceMap
)

var mediaTypeNames = map[MediaType]string{
	MediaUnknown:    "Unknown",
	MediaJavaScript: "JavaScript",
	MediaJSX:        "JSX",
	MediaMjs:        "Mjs",
	MediaCjs:        "Cjs",
	MediaTypeScript: "TypeScript",
	MediaMts:        "Mts",
	MediaCts:        "Cts",
	MediaDts:        "Dts",
	MediaDmts:       "Dmts",
	MediaDcts:       "Dcts",
	MediaTSX:        "TSX",
	MediaCss:        "Css",
	MediaJson:       "Json",
	MediaHtml:       "Html",
	MediaSql:        "Sql",
	MediaWasm:       "Wasm",
	MediaSourceMap:  "SourceMap",
}

var mediaTypesByName = func() map[string]MediaType {
	m := make(map[string]MediaType, len(mediaTypeNames))
	for t, name := range mediaTypeNames {
		m[name] = t
	}
	return m
}()

// ParseMediaType maps a descriptor name to a MediaType. Names are
// case-sensitive.
func ParseMediaType(name string) (MediaType, error) {
	t, ok := mediaTypesByName[name]
	if !ok {
		return MediaUnknown, fmt.Errorf("unknown media type %q", name)
	}
	return t, nil
}

func (t MediaType) String() string {
	if name, ok := mediaTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MediaType(%d)", int(t))
}

// IsTypeScript reports whether the module carries type syntax.
func (t MediaType) IsTypeScript() bool {
	switch t {
	case MediaTypeScript, MediaMts, MediaCts, MediaDts, MediaDmts, MediaDcts, MediaTSX:
		return true
	}
	return false
}

// IsDeclaration reports whether the module is a .d.ts style declaration file.
func (t MediaType) IsDeclaration() bool {
	return t == MediaDts || t == MediaDmts || t == MediaDcts
}

func (t MediaType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *MediaType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseMediaType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
