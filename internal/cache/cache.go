// Package cache provides a best-effort, namespaced, read-through JSON cache.
// A miss or failure never affects correctness, only latency.
package cache

import (
	"encoding/json"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a key -> JSON value store with expiry. Implementations must be
// safe for concurrent use.
type Cache interface {
	// GetJSON unmarshals the cached value for key into out, returning false
	// on a miss or decode failure.
	GetJSON(key string, out any) bool

	// SetJSON stores v under key for ttl. Failures are swallowed.
	SetJSON(key string, v any, ttl time.Duration)

	// DeletePrefix removes every key under the given prefix.
	DeletePrefix(prefix string)
}

// Memory is an in-process Cache backed by go-cache.
type Memory struct {
	namespace string
	store     *gocache.Cache
}

// NewMemory creates a namespaced in-process cache. Expired entries are purged
// every cleanupInterval.
func NewMemory(namespace string, cleanupInterval time.Duration) *Memory {
	return &Memory{
		namespace: namespace + ":",
		store:     gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// GetJSON implements Cache.
func (m *Memory) GetJSON(key string, out any) bool {
	raw, ok := m.store.Get(m.namespace + key)
	if !ok {
		return false
	}
	data, ok := raw.([]byte)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON implements Cache.
func (m *Memory) SetJSON(key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	m.store.Set(m.namespace+key, data, ttl)
}

// DeletePrefix implements Cache.
func (m *Memory) DeletePrefix(prefix string) {
	full := m.namespace + prefix
	for key := range m.store.Items() {
		if strings.HasPrefix(key, full) {
			m.store.Delete(key)
		}
	}
}

// Nop is a Cache that stores nothing. It is the constructor default when no
// cache is wired.
type Nop struct{}

// GetJSON always misses.
func (Nop) GetJSON(string, any) bool { return false }

// SetJSON discards the value.
func (Nop) SetJSON(string, any, time.Duration) {}

// DeletePrefix does nothing.
func (Nop) DeletePrefix(string) {}

var (
	_ Cache = (*Memory)(nil)
	_ Cache = Nop{}
)
