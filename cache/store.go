package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Default limits.
const (
	// DefaultMaxBytes is the cache budget on a fast connection.
	DefaultMaxBytes int64 = 50 << 20

	// SlowConnectionMaxBytes is the budget used while the connection is slow.
	SlowConnectionMaxBytes int64 = 25 << 20

	// DefaultMaxAge is how long an entry stays valid after it was written.
	DefaultMaxAge = 7 * 24 * time.Hour

	// aggressiveRatio is the fraction of the budget an aggressive eviction
	// shrinks the cache to.
	aggressiveRatio = 0.7
)

// Store errors.
var (
	// ErrQuotaExceeded is returned by Put when the entry could not be
	// persisted even after an aggressive eviction. Callers treat it as a
	// cache miss.
	ErrQuotaExceeded = errors.New("cache: storage quota exceeded")

	// ErrUnavailable is returned when the backend fails for a reason other
	// than quota.
	ErrUnavailable = errors.New("cache: storage unavailable")
)

// Stats is a snapshot of the store.
type Stats struct {
	TotalBytes int64
	MaxBytes   int64
	ItemCount  int

	// HitRate is the mean access count across entries. It is a usage
	// density figure, not a hit/miss ratio.
	HitRate float64
}

// UsagePercent returns TotalBytes as a percentage of MaxBytes.
func (s Stats) UsagePercent() float64 {
	if s.MaxBytes <= 0 {
		return 0
	}
	return float64(s.TotalBytes) / float64(s.MaxBytes) * 100
}

// Option configures a Store.
type Option func(*options)

type options struct {
	maxBytes int64
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func defaultOptions() options {
	return options{
		maxBytes: DefaultMaxBytes,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
	}
}

// WithMaxBytes sets the byte budget. Values <= 0 are ignored.
func WithMaxBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// WithMaxAge sets the entry lifetime. Values <= 0 are ignored.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxAge = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger. nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Store is the budgeted, age-bounded image cache.
//
// The store keeps an index of entry metadata in memory and delegates the
// bytes to a Backend. Every mutation goes through the store's lock, and a
// write always re-reads the current total before deciding what to evict.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	entries  map[string]*Entry
	total    int64
	maxBytes int64
	maxAge   time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// Open creates a Store on backend and rebuilds its index from the entries a
// previous session persisted. Expired entries are dropped; if the restored
// total exceeds the budget a normal eviction runs before Open returns.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Store{
		backend:  backend,
		entries:  make(map[string]*Entry),
		maxBytes: o.maxBytes,
		maxAge:   o.maxAge,
		now:      o.now,
		log:      log,
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	keys, err := s.backend.Keys(ctx, metaPrefix)
	if err != nil {
		return fmt.Errorf("%w: list entries: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, k := range keys {
		raw, err := s.backend.Read(ctx, k)
		if err != nil {
			s.log.Warn("cache: unreadable entry metadata", "key", k, "err", err)
			continue
		}
		e, err := decodeEntry(raw)
		if err != nil || metaKey(e.URL) != k {
			s.log.Warn("cache: dropping corrupt entry", "key", k, "err", err)
			_ = s.backend.Remove(ctx, k)
			_ = s.backend.Remove(ctx, dataKey(strings.TrimPrefix(k, metaPrefix)))
			continue
		}
		if e.expired(now, s.maxAge) {
			s.removeLocked(ctx, &Entry{URL: e.URL})
			continue
		}
		s.entries[e.URL] = e
		s.total += e.SizeBytes
	}

	if s.total > s.maxBytes {
		s.evictLocked(ctx, s.maxBytes)
	}
	s.log.Debug("cache: index loaded",
		"entries", len(s.entries),
		"size", humanize.IBytes(uint64(s.total)))
	return nil
}

// Put inserts or overwrites the entry for url.
//
// If the projected total exceeds the budget, eviction runs before the
// write. If the backend still reports a quota error, an aggressive eviction
// runs and the write is retried once. A second failure is returned as
// ErrQuotaExceeded. An entry larger than the whole budget is rejected
// without evicting anything. A failed overwrite keeps the previous entry
// unless the backend had already replaced its bytes.
func (s *Store) Put(ctx context.Context, url string, data []byte) error {
	size := int64(len(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	if size > s.maxBytes {
		return fmt.Errorf("%w: entry of %s exceeds budget of %s",
			ErrQuotaExceeded, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.maxBytes)))
	}

	// The previous entry leaves the index, not the backend, until the
	// outcome of the write is known.
	old, hadOld := s.entries[url]
	if hadOld {
		s.total -= old.SizeBytes
		delete(s.entries, url)
	}

	if s.total+size > s.maxBytes {
		s.evictAllExpiredLocked(ctx)
		s.evictLocked(ctx, s.maxBytes-size)
	}

	touched, err := s.writeLocked(ctx, url, data)
	if errors.Is(err, ErrQuota) {
		target := min(int64(float64(s.maxBytes)*aggressiveRatio), s.maxBytes-size)
		s.log.Warn("cache: backend quota hit, evicting aggressively",
			"url", url, "target", humanize.IBytes(uint64(max(target, 0))))
		s.evictAllExpiredLocked(ctx)
		s.evictLocked(ctx, target)
		var again bool
		again, err = s.writeLocked(ctx, url, data)
		touched = touched || again
	}
	if err != nil && hadOld {
		if touched {
			s.log.Warn("cache: overwrite failed, previous entry lost", "url", url, "err", err)
		} else {
			s.entries[url] = old
			s.total += old.SizeBytes
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrQuota):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// writeLocked persists data and metadata for url and adds it to the index.
// It reports whether the bytes under url were replaced. If the metadata
// write fails after that, both keys are removed.
func (s *Store) writeLocked(ctx context.Context, url string, data []byte) (bool, error) {
	now := s.now()
	e := &Entry{
		URL:            url,
		CreatedAt:      now,
		SizeBytes:      int64(len(data)),
		AccessCount:    1,
		LastAccessedAt: now,
	}
	meta, err := encodeEntry(e)
	if err != nil {
		return false, err
	}
	if err := s.backend.Write(ctx, dataKey(url), data); err != nil {
		return false, err
	}
	if err := s.backend.Write(ctx, metaKey(url), meta); err != nil {
		_ = s.backend.Remove(ctx, dataKey(url))
		_ = s.backend.Remove(ctx, metaKey(url))
		return true, err
	}
	s.entries[url] = e
	s.total += e.SizeBytes
	return true, nil
}

// Get returns the bytes cached for url.
//
// An entry older than the maximum age is removed and reported absent.
// A hit increments the access count and refreshes the access time.
func (s *Store) Get(ctx context.Context, url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[url]
	if !ok {
		return nil, false
	}
	now := s.now()
	if e.expired(now, s.maxAge) {
		s.log.Debug("cache: entry expired", "url", url)
		s.removeLocked(ctx, e)
		return nil, false
	}

	data, err := s.backend.Read(ctx, dataKey(url))
	if err != nil {
		s.log.Warn("cache: entry unreadable, dropping", "url", url, "err", err)
		s.removeLocked(ctx, e)
		return nil, false
	}

	e.AccessCount++
	e.LastAccessedAt = now
	if meta, err := encodeEntry(e); err == nil {
		if err := s.backend.Write(ctx, metaKey(url), meta); err != nil {
			s.log.Debug("cache: access metadata not persisted", "url", url, "err", err)
		}
	}
	return data, true
}

// Has reports whether a live entry exists for url without touching its
// usage metadata.
func (s *Store) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[url]
	return ok && !e.expired(s.now(), s.maxAge)
}

// Entry returns a copy of the metadata for url.
func (s *Store) Entry(url string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[url]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove deletes the entry for url, if any.
func (s *Store) Remove(ctx context.Context, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[url]; ok {
		s.removeLocked(ctx, e)
	}
}

// Evict removes expired entries, then, if the total still exceeds the
// budget or aggressive is set, removes the least used entries until the
// total is within the target: the full budget normally, 70% of it when
// aggressive. It returns the number of entries removed.
func (s *Store) Evict(ctx context.Context, aggressive bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.evictAllExpiredLocked(ctx)
	target := s.maxBytes
	if aggressive {
		target = int64(float64(s.maxBytes) * aggressiveRatio)
	}
	if s.total > target {
		n += s.evictLocked(ctx, target)
	}
	return n
}

func (s *Store) evictAllExpiredLocked(ctx context.Context) int {
	now := s.now()
	n := 0
	for _, e := range s.entries {
		if e.expired(now, s.maxAge) {
			s.removeLocked(ctx, e)
			n++
		}
	}
	return n
}

// evictLocked removes entries in eviction order until total <= target.
func (s *Store) evictLocked(ctx context.Context, target int64) int {
	if s.total <= target {
		return 0
	}
	order := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		order = append(order, e)
	}
	sortForEviction(order)

	freed := int64(0)
	n := 0
	for _, e := range order {
		if s.total <= target {
			break
		}
		freed += e.SizeBytes
		s.removeLocked(ctx, e)
		n++
	}
	if n > 0 {
		s.log.Info("cache: evicted entries",
			"count", n,
			"freed", humanize.IBytes(uint64(freed)),
			"remaining", humanize.IBytes(uint64(s.total)))
	}
	return n
}

func (s *Store) removeLocked(ctx context.Context, e *Entry) {
	if cur, ok := s.entries[e.URL]; ok {
		s.total -= cur.SizeBytes
		delete(s.entries, e.URL)
	}
	if err := s.backend.Remove(ctx, dataKey(e.URL)); err != nil {
		s.log.Debug("cache: remove data failed", "url", e.URL, "err", err)
	}
	if err := s.backend.Remove(ctx, metaKey(e.URL)); err != nil {
		s.log.Debug("cache: remove metadata failed", "url", e.URL, "err", err)
	}
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	s.total = 0
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("%w: clear: %v", ErrUnavailable, err)
	}
	return nil
}

// Stats returns a snapshot of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalBytes: s.total,
		MaxBytes:   s.maxBytes,
		ItemCount:  len(s.entries),
	}
	if len(s.entries) > 0 {
		var sum int64
		for _, e := range s.entries {
			sum += e.AccessCount
		}
		st.HitRate = float64(sum) / float64(len(s.entries))
	}
	return st
}

// Entries returns a copy of all entry metadata in eviction order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		order = append(order, e)
	}
	sortForEviction(order)
	out := make([]Entry, len(order))
	for i, e := range order {
		out[i] = *e
	}
	return out
}

// MaxBytes returns the current budget.
func (s *Store) MaxBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxBytes
}

// SetMaxBytes changes the budget. Shrinking below the current total evicts
// immediately so the budget invariant keeps holding.
func (s *Store) SetMaxBytes(ctx context.Context, n int64) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if n == s.maxBytes {
		return
	}
	s.log.Info("cache: budget changed",
		"from", humanize.IBytes(uint64(s.maxBytes)),
		"to", humanize.IBytes(uint64(n)))
	s.maxBytes = n
	if s.total > n {
		s.evictAllExpiredLocked(ctx)
		s.evictLocked(ctx, n)
	}
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
