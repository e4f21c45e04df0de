package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// Memory is an in-process Cacher. Dry runs use it so nothing reaches the database.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) GetCache(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) SetCache(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(val))
	copy(cp, val)
	m.data[key] = cp
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Key builds a namespaced cache key. Parts are normalized and hashed so that
// arbitrary query text stays short and free of separators.
func Key(namespace string, parts ...string) string {
	h := sha1.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// Overlay reads through to a base cache but keeps every write in memory,
// leaving the base untouched.
type Overlay struct {
	base Cacher
	mem  *Memory
}

// NewOverlay wraps base. A nil base behaves like a plain Memory.
func NewOverlay(base Cacher) *Overlay {
	return &Overlay{base: base, mem: NewMemory()}
}

func (o *Overlay) GetCache(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := o.mem.GetCache(ctx, key); ok {
		return v, true
	}
	if o.base == nil {
		return nil, false
	}
	return o.base.GetCache(ctx, key)
}

func (o *Overlay) SetCache(ctx context.Context, key string, val []byte) error {
	return o.mem.SetCache(ctx, key, val)
}
