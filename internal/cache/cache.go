package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a namespaced, versioned cache key. Parts are joined before hashing
// so arbitrary journal names stay filesystem safe.
func Key(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "scitrue:" + namespace + ":v1:" + hex.EncodeToString(hash[:])
}

// GetJSON decodes a cached value into v. A value that no longer decodes is
// reported as a miss.
func GetJSON(c Cache, key string, v any) bool {
	raw, ok := c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// SetJSON encodes v and stores it under key
func SetJSON(c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(key, raw, ttl)
}
