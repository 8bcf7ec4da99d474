// Package cache implements the persistent image cache: a capacity- and
// age-bounded store mapping an image URL to its encoded bytes plus usage
// metadata.
//
// # Store
//
// Store owns the eviction policy. After every mutating call the sum of
// entry sizes is at most the configured budget. Entries older than the
// maximum age are treated as absent on read and removed.
//
//	store, err := cache.Open(ctx, cache.NewMemoryBackend(0))
//	if err := store.Put(ctx, url, data); errors.Is(err, cache.ErrQuotaExceeded) {
//	    // degrade to a network fetch next time
//	}
//	data, ok := store.Get(ctx, url)
//
// Eviction removes expired entries first, then the least used entries,
// breaking ties by least recent access. A write that hits the backend's
// quota triggers one aggressive eviction down to 70% of the budget and a
// single retry.
//
// # Backends
//
// Backend is the persistence boundary: a key/value byte store with a quota
// error signal. This package provides an in-memory backend; cache/leveldb
// and cache/redis provide on-disk and shared ones.
//
// # Thread Safety
//
// Store and MemoryBackend are safe for concurrent use.
package cache
