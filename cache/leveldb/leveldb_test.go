package leveldb

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/stackview/cache"
)

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := OpenMemory(0)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer b.Close()

	if _, err := b.Read(ctx, "missing"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("Read missing = %v, want ErrNotFound", err)
	}
	if err := b.Write(ctx, "m/a", []byte("meta")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := b.Write(ctx, "d/a", []byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := b.Read(ctx, "d/a")
	if err != nil || string(got) != "data" {
		t.Errorf("Read = %q, %v", got, err)
	}
	keys, err := b.Keys(ctx, "m/")
	if err != nil || len(keys) != 1 || keys[0] != "m/a" {
		t.Errorf("Keys(m/) = %v, %v", keys, err)
	}
	if err := b.Remove(ctx, "d/a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if b.Used() != 4 {
		t.Errorf("Used = %d, want 4", b.Used())
	}
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if keys, _ := b.Keys(ctx, ""); len(keys) != 0 {
		t.Errorf("keys after Clear: %v", keys)
	}
}

func TestBackendQuota(t *testing.T) {
	ctx := context.Background()
	b, err := OpenMemory(10)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer b.Close()

	if err := b.Write(ctx, "a", make([]byte, 8)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := b.Write(ctx, "b", make([]byte, 3)); !errors.Is(err, cache.ErrQuota) {
		t.Errorf("Write over quota = %v, want ErrQuota", err)
	}
	// Overwriting with a smaller value frees room.
	if err := b.Write(ctx, "a", make([]byte, 2)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := b.Write(ctx, "b", make([]byte, 3)); err != nil {
		t.Errorf("Write after shrink: %v", err)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, err := cache.Open(ctx, b)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	if err := s.Put(ctx, "https://img/ct-001.jpg", []byte("slice")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err = Open(dir, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s, err = cache.Open(ctx, b)
	if err != nil {
		t.Fatalf("cache.Open after reopen: %v", err)
	}
	defer s.Close()

	got, ok := s.Get(ctx, "https://img/ct-001.jpg")
	if !ok || string(got) != "slice" {
		t.Errorf("Get after reopen = %q, %v", got, ok)
	}
}

func TestStoreRespectsBackendQuota(t *testing.T) {
	ctx := context.Background()
	// Quota far below the store budget: the backend, not the store, runs out.
	b, err := OpenMemory(2500)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	s, err := cache.Open(ctx, b, cache.WithMaxBytes(1<<20))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer s.Close()

	for i := 0; i < 20; i++ {
		url := string(rune('a'+i)) + ".jpg"
		err := s.Put(ctx, url, make([]byte, 400))
		if err != nil && !errors.Is(err, cache.ErrQuotaExceeded) {
			t.Fatalf("Put %s: %v", url, err)
		}
		if b.Used() > 2500 {
			t.Fatalf("backend over quota: %d", b.Used())
		}
	}
	if st := s.Stats(); st.ItemCount == 0 {
		t.Error("no entries survived")
	}
}
