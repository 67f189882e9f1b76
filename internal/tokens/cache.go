// Package tokens keeps the API keys accepted by the service in memory.
package tokens

import (
	"errors"
	"sync"
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrTokenStoreNotReady = errors.New("token store not ready")
	// ErrScopeDenied signals a known key that may not call the endpoint.
	ErrScopeDenied = errors.New("api key not allowed for this operation")
)

// ScopeConvert is required to call POST /convert.
const ScopeConvert = "convert"

// Scope lists the operations a token may perform. An empty scope allows all.
type Scope map[string]bool

// Allows reports whether the scope grants name.
func (s Scope) Allows(name string) bool {
	return len(s) == 0 || s[name]
}

// Entry is one API key as stored in the tokens table.
type Entry struct {
	RateLimit int
	Scope     Scope
}

// Cache is a concurrency-safe snapshot of all tokens.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps in a new snapshot. The map is copied.
func (c *Cache) Replace(m map[string]Entry) {
	entries := make(map[string]Entry, len(m))
	for k, v := range m {
		entries[k] = v
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// Ready returns true if the cache has been loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries != nil
}

// Validate checks that token exists and may use scope.
func (c *Cache) Validate(token, scope string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entries == nil {
		return ErrTokenStoreNotReady
	}
	e, ok := c.entries[token]
	if !ok {
		return ErrInvalidAPIKey
	}
	if !e.Scope.Allows(scope) {
		return ErrScopeDenied
	}
	return nil
}

// RateLimit returns the configured limit for token. Unknown tokens get 0,
// which disables token rate limiting for them.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[token].RateLimit
}

// Len is the number of cached tokens.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
