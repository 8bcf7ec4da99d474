// Package leveldb provides an on-disk cache.Backend backed by goleveldb.
//
// The backend enforces its own byte quota, independent of the Store's
// budget, so it can model a browser-style storage limit: writes that would
// take the sum of stored values past the quota fail with cache.ErrQuota.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/gogpu/stackview/cache"
)

// Backend is a cache.Backend stored in a LevelDB database.
type Backend struct {
	mu    sync.Mutex
	db    *leveldb.DB
	used  int64
	quota int64
}

// Open opens (or creates) the database at path. A corrupted database is
// recovered rather than rejected. A quota <= 0 means unlimited.
func Open(path string, quota int64) (*Backend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil && lderrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", path, err)
	}
	return newBackend(db, quota)
}

// OpenMemory opens a database held entirely in memory.
func OpenMemory(quota int64) (*Backend, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open memory: %w", err)
	}
	return newBackend(db, quota)
}

func newBackend(db *leveldb.DB, quota int64) (*Backend, error) {
	b := &Backend{db: db, quota: quota}

	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		b.used += int64(len(iter.Value()))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("leveldb: scan: %w", err)
	}
	return b, nil
}

// Read implements cache.Backend.
func (b *Backend) Read(_ context.Context, key string) ([]byte, error) {
	v, err := b.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb: get %q: %w", key, err)
	}
	return v, nil
}

// Write implements cache.Backend.
func (b *Backend) Write(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, err := b.sizeOf(key)
	if err != nil {
		return err
	}
	used := b.used - prev + int64(len(value))
	if b.quota > 0 && used > b.quota {
		return cache.ErrQuota
	}
	if err := b.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("leveldb: put %q: %w", key, err)
	}
	b.used = used
	return nil
}

// sizeOf returns the stored size of key, 0 if absent.
func (b *Backend) sizeOf(key string) (int64, error) {
	v, err := b.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("leveldb: get %q: %w", key, err)
	}
	return int64(len(v)), nil
}

// Remove implements cache.Backend.
func (b *Backend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, err := b.sizeOf(key)
	if err != nil {
		return err
	}
	if err := b.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb: delete %q: %w", key, err)
	}
	b.used -= prev
	return nil
}

// Clear implements cache.Backend.
func (b *Backend) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := new(leveldb.Batch)
	iter := b.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb: scan: %w", err)
	}
	if err := b.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb: clear: %w", err)
	}
	b.used = 0
	return nil
}

// Keys implements cache.Backend.
func (b *Backend) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb: scan: %w", err)
	}
	return keys, nil
}

// Used returns the number of value bytes stored.
func (b *Backend) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Close implements cache.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}

var _ cache.Backend = (*Backend)(nil)
