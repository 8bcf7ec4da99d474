package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Backend errors.
var (
	// ErrNotFound is returned by Backend.Read for a missing key.
	ErrNotFound = errors.New("cache: key not found")

	// ErrQuota is returned by Backend.Write when the write would exceed the
	// backend's storage quota.
	ErrQuota = errors.New("cache: backend quota exceeded")
)

// Backend is a key/value byte store with a quota error signal.
//
// Implementations must return ErrNotFound (possibly wrapped) from Read for
// missing keys and ErrQuota (possibly wrapped) from Write when out of space.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error

	// Keys lists the keys starting with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// MemoryBackend is an in-process Backend with an optional byte quota.
type MemoryBackend struct {
	mu    sync.Mutex
	data  map[string][]byte
	used  int64
	quota int64
}

// NewMemoryBackend returns an empty MemoryBackend.
// A quota <= 0 means unlimited.
func NewMemoryBackend(quota int64) *MemoryBackend {
	return &MemoryBackend{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

// Read implements Backend.
func (m *MemoryBackend) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Write implements Backend.
func (m *MemoryBackend) Write(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used - int64(len(m.data[key])) + int64(len(value))
	if m.quota > 0 && used > m.quota {
		return ErrQuota
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	m.used = used
	return nil
}

// Remove implements Backend. Removing a missing key is not an error.
func (m *MemoryBackend) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= int64(len(m.data[key]))
	delete(m.data, key)
	return nil
}

// Clear implements Backend.
func (m *MemoryBackend) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string][]byte)
	m.used = 0
	return nil
}

// Keys implements Backend.
func (m *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Used returns the number of bytes currently stored.
func (m *MemoryBackend) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Close implements Backend. It is a no-op.
func (m *MemoryBackend) Close() error { return nil }
