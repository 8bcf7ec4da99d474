// Package redis provides a cache.Backend stored in Redis, so several viewer
// processes can share one image cache.
//
// Keys are namespaced under a prefix. The backend keeps a set of its keys
// and a running byte counter next to the values so that Keys and the quota
// check never need a SCAN over the whole keyspace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/gogpu/stackview/cache"
)

// Backend is a cache.Backend on a Redis client.
type Backend struct {
	client *redis.Client
	prefix string
	quota  int64
}

// New returns a Backend using client. prefix namespaces every key
// ("stackview" if empty). A quota <= 0 means unlimited.
func New(client *redis.Client, prefix string, quota int64) *Backend {
	if prefix == "" {
		prefix = "stackview"
	}
	return &Backend{client: client, prefix: prefix, quota: quota}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, prefix string, quota int64) (*Backend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return New(client, prefix, quota), nil
}

func (b *Backend) valueKey(key string) string { return b.prefix + ":v:" + key }
func (b *Backend) indexKey() string           { return b.prefix + ":keys" }
func (b *Backend) usedKey() string            { return b.prefix + ":used" }

// Read implements cache.Backend.
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, b.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %q: %w", key, err)
	}
	return v, nil
}

// Write implements cache.Backend.
func (b *Backend) Write(ctx context.Context, key string, value []byte) error {
	prev, err := b.client.StrLen(ctx, b.valueKey(key)).Result()
	if err != nil {
		return fmt.Errorf("redis: strlen %q: %w", key, err)
	}
	delta := int64(len(value)) - prev

	if b.quota > 0 && delta > 0 {
		used, err := b.used(ctx)
		if err != nil {
			return err
		}
		if used+delta > b.quota {
			return cache.ErrQuota
		}
	}

	_, err = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, b.valueKey(key), value, 0)
		p.SAdd(ctx, b.indexKey(), key)
		p.IncrBy(ctx, b.usedKey(), delta)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: write %q: %w", key, err)
	}
	return nil
}

func (b *Backend) used(ctx context.Context) (int64, error) {
	n, err := b.client.Get(ctx, b.usedKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: read usage: %w", err)
	}
	return n, nil
}

// Remove implements cache.Backend.
func (b *Backend) Remove(ctx context.Context, key string) error {
	prev, err := b.client.StrLen(ctx, b.valueKey(key)).Result()
	if err != nil {
		return fmt.Errorf("redis: strlen %q: %w", key, err)
	}
	_, err = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, b.valueKey(key))
		p.SRem(ctx, b.indexKey(), key)
		if prev > 0 {
			p.DecrBy(ctx, b.usedKey(), prev)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: remove %q: %w", key, err)
	}
	return nil
}

// Clear implements cache.Backend.
func (b *Backend) Clear(ctx context.Context) error {
	keys, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("redis: list keys: %w", err)
	}
	del := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		del = append(del, b.valueKey(k))
	}
	del = append(del, b.indexKey(), b.usedKey())
	if err := b.client.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("redis: clear: %w", err)
	}
	return nil
}

// Keys implements cache.Backend.
func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	all, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list keys: %w", err)
	}
	keys := all[:0]
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements cache.Backend. It closes the client.
func (b *Backend) Close() error {
	return b.client.Close()
}

var _ cache.Backend = (*Backend)(nil)
