package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/gogpu/stackview/cache"
)

// DefaultTimeout bounds a single fetch-and-decode attempt.
const DefaultTimeout = 10 * time.Second

// ErrLoadTimeout is returned when an attempt exceeds its timeout.
var ErrLoadTimeout = errors.New("loader: load timed out")

// Observer is told how long each attempt took and how it ended.
type Observer func(url string, d time.Duration, err error)

// Option configures a Loader.
type Option func(*Loader)

// WithSource sets where image bytes come from.
func WithSource(s Source) Option {
	return func(l *Loader) {
		if s != nil {
			l.source = s
		}
	}
}

// WithStore enables the persistent cache. Hits skip the network and
// successfully decoded fetches are written back.
func WithStore(s *cache.Store) Option {
	return func(l *Loader) { l.store = s }
}

// WithMemo sets the decoded-image memo. A nil memo disables memoization.
func WithMemo(m *Memo) Option {
	return func(l *Loader) { l.memo = m }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithObserver registers a load-duration observer.
func WithObserver(fn Observer) Option {
	return func(l *Loader) { l.observe = fn }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// Loader resolves an image URL to a decoded image.
// It is safe for concurrent use.
type Loader struct {
	source  Source
	store   *cache.Store
	memo    *Memo
	timeout time.Duration
	observe Observer
	log     *slog.Logger
}

// New returns a Loader. Without options it reads http(s) URLs with
// http.DefaultClient and everything else from disk.
func New(opts ...Option) *Loader {
	l := &Loader{
		source:  DefaultSource(nil),
		memo:    NewMemo(DefaultMemoSize),
		timeout: DefaultTimeout,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Memoized reports whether url is already decoded in memory.
func (l *Loader) Memoized(url string) bool {
	return l.memo != nil && l.memo.Contains(url)
}

// Cached reports whether url is decoded in memory or present in the
// persistent cache.
func (l *Loader) Cached(url string) bool {
	if l.Memoized(url) {
		return true
	}
	return l.store != nil && l.store.Has(url)
}

// Purge drops every decoded image held in memory.
func (l *Loader) Purge() {
	if l.memo != nil {
		l.memo.Purge()
	}
}

// Timeout returns the per-attempt timeout.
func (l *Loader) Timeout() time.Duration { return l.timeout }

type loadResult struct {
	img image.Image
	err error
}

// Load fetches and decodes url within the configured timeout.
//
// On timeout the returned error wraps ErrLoadTimeout. If ctx itself is
// cancelled, ctx.Err() is returned.
func (l *Loader) Load(ctx context.Context, url string) (image.Image, error) {
	if l.memo != nil {
		if img, ok := l.memo.Get(url); ok {
			return img, nil
		}
	}

	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// Decoding is not context aware; run it aside so the timeout holds.
	ch := make(chan loadResult, 1)
	go func() {
		img, err := l.fetchDecode(actx, url)
		ch <- loadResult{img, err}
	}()

	var res loadResult
	select {
	case res = <-ch:
	case <-actx.Done():
		res.err = actx.Err()
	}

	if res.err != nil {
		switch {
		case ctx.Err() != nil:
			res.err = ctx.Err()
		case errors.Is(res.err, context.DeadlineExceeded):
			res.err = fmt.Errorf("%w: %s after %s", ErrLoadTimeout, url, l.timeout)
		}
	}
	if l.observe != nil && !errors.Is(res.err, context.Canceled) {
		l.observe(url, time.Since(start), res.err)
	}
	if res.err != nil {
		return nil, res.err
	}
	if l.memo != nil {
		l.memo.Add(url, res.img)
	}
	return res.img, nil
}

func (l *Loader) fetchDecode(ctx context.Context, url string) (image.Image, error) {
	if l.store != nil {
		if data, ok := l.store.Get(ctx, url); ok {
			img, _, err := Decode(data)
			if err == nil {
				return img, nil
			}
			l.log.Warn("loader: dropping undecodable cache entry", "url", url, "err", err)
			l.store.Remove(ctx, url)
		}
	}

	data, err := l.source.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	if l.store != nil {
		if err := l.store.Put(ctx, url, data); err != nil {
			l.log.Warn("loader: cache write failed", "url", url, "err", err)
		}
	}
	return img, nil
}
