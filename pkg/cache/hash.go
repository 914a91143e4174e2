package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// keyVersion is bumped whenever the cached value layout or the transform
// output changes incompatibly.
const keyVersion = 2

// TransformKey returns the cache key for one transform result. inputs
// fingerprints everything besides the source that shapes the output, such as
// the resolved import table and the engine configuration.
func TransformKey(specifier string, hmr bool, source []byte, inputs string) string {
	return hashKey("transform", keyVersion, specifier, hmr, Hash(source), inputs)
}

// hashKey renders prefix:sha256(json(parts)).
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// KeyType returns the part of key before the first colon. Metrics label cache
// traffic by it.
func KeyType(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
