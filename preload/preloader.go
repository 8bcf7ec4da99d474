package preload

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Window bounds.
const (
	DefaultRange = 2
	MaxRange     = 3
)

// purgeSlack is how far beyond the window finished results are kept.
const purgeSlack = 2

// ErrClosed is returned by Request after Close.
var ErrClosed = errors.New("preload: closed")

// ErrOutOfRange is returned by Request for an index outside the study.
var ErrOutOfRange = errors.New("preload: index out of range")

// LoadFunc loads the image at index.
type LoadFunc func(ctx context.Context, index int) (image.Image, error)

// Option configures a Preloader.
type Option func(*Preloader)

// WithRange sets how many indices on each side of the current one are
// preloaded. Values are clamped to [DefaultRange, MaxRange].
func WithRange(r int) Option {
	return func(p *Preloader) {
		p.rng = min(max(r, DefaultRange), MaxRange)
	}
}

// WithCached lets the Preloader skip indices that are already available
// elsewhere, such as in the persistent cache.
func WithCached(fn func(index int) bool) Option {
	return func(p *Preloader) { p.cached = fn }
}

// WithIdleDelay sets the longest low priority work waits for foreground
// work to finish.
func WithIdleDelay(d time.Duration) Option {
	return func(p *Preloader) { p.idleDelay = d }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Preloader) {
		if l != nil {
			p.log = l
		}
	}
}

// Preloader loads the neighbourhood of the current index ahead of use.
// It is safe for concurrent use.
type Preloader struct {
	n         int
	load      LoadFunc
	rng       int
	cached    func(int) bool
	idleDelay time.Duration
	idle      *IdleScheduler
	log       *slog.Logger

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current int
	tasks   map[int]*Task
	results map[int]image.Image
	closed  bool
}

// New returns a Preloader over n indices.
func New(n int, load LoadFunc, opts ...Option) *Preloader {
	p := &Preloader{
		n:       n,
		load:    load,
		rng:     DefaultRange,
		log:     slog.New(slog.DiscardHandler),
		tasks:   make(map[int]*Task),
		results: make(map[int]image.Image),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.idle = NewIdleScheduler(p.idleDelay)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Range returns the window half-width.
func (p *Preloader) Range() int { return p.rng }

// Window returns the indices to preload around current with their
// priorities, nearest first. current itself is never included.
func Window(current, n, rng int) []Task {
	out := make([]Task, 0, 2*rng)
	for d := 1; d <= rng; d++ {
		for _, i := range []int{current - d, current + d} {
			if i < 0 || i >= n {
				continue
			}
			out = append(out, Task{Index: i, Priority: PriorityFor(d)})
		}
	}
	return out
}

// OnIndexChange records the new current index and schedules loads for its
// window. Indices already loaded, in flight or reported cached are skipped.
func (p *Preloader) OnIndexChange(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.current = index

	for _, w := range Window(index, p.n, p.rng) {
		i := w.Index
		if _, ok := p.results[i]; ok {
			continue
		}
		if t, ok := p.tasks[i]; ok && t.pending() {
			continue
		}
		if p.cached != nil && p.cached(i) {
			continue
		}
		p.tasks[i] = &Task{Index: i, Priority: w.Priority, State: Queued}

		if w.Priority == Low {
			p.idle.Submit(func() { p.run(i) })
			continue
		}
		done := p.idle.Busy()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer done()
			p.run(i)
		}()
	}
}

func (p *Preloader) run(i int) {
	if p.dropStale(i) {
		return
	}
	if _, err := p.wait(p.ctx, p.fetch(i)); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Debug("preload: load failed", "index", i, "err", err)
	}
}

// dropStale forgets a still queued task once the window has moved past it.
func (p *Preloader) dropStale(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[i]
	if !ok || t.State != Queued || abs(i-p.current) <= p.rng {
		return false
	}
	delete(p.tasks, i)
	p.log.Debug("preload: dropped stale task", "index", i, "current", p.current)
	return true
}

// Pending reports whether a preload of index is queued or loading.
func (p *Preloader) Pending(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[index]
	return ok && t.pending()
}

// fetch starts or joins the load for i.
func (p *Preloader) fetch(i int) <-chan singleflight.Result {
	return p.group.DoChan(strconv.Itoa(i), func() (any, error) {
		p.mu.Lock()
		if img, ok := p.results[i]; ok {
			p.mu.Unlock()
			return img, nil
		}
		if t, ok := p.tasks[i]; ok {
			t.State = Loading
		}
		p.mu.Unlock()

		img, err := p.load(p.ctx, i)
		p.complete(i, img, err)
		return img, err
	})
}

func (p *Preloader) wait(ctx context.Context, ch <-chan singleflight.Result) (image.Image, error) {
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(image.Image), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Preloader) complete(i int, img image.Image, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[i]
	if !ok {
		t = &Task{Index: i, Priority: PriorityFor(i - p.current)}
		p.tasks[i] = t
	}
	if err != nil {
		t.State = Failed
		t.Err = err
	} else {
		t.State = Done
		t.Err = nil
		p.results[i] = img
	}
	p.purgeLocked()
}

// purgeLocked forgets finished work too far from the current index.
func (p *Preloader) purgeLocked() {
	limit := p.rng + purgeSlack
	for i := range p.results {
		if abs(i-p.current) > limit {
			delete(p.results, i)
		}
	}
	for i, t := range p.tasks {
		if !t.pending() && abs(i-p.current) > limit {
			delete(p.tasks, i)
		}
	}
}

// IsPreloaded reports whether the image at index is ready.
func (p *Preloader) IsPreloaded(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.results[index]
	return ok
}

// Get returns the preloaded image at index.
func (p *Preloader) Get(index int) (image.Image, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	img, ok := p.results[index]
	return img, ok
}

// Request returns the image at index, joining an in-flight preload if one
// exists. Cancelling ctx abandons the wait but not the shared load.
func (p *Preloader) Request(ctx context.Context, index int) (image.Image, error) {
	if index < 0 || index >= p.n {
		return nil, ErrOutOfRange
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if img, ok := p.results[index]; ok {
		p.mu.Unlock()
		return img, nil
	}
	p.mu.Unlock()

	return p.wait(ctx, p.fetch(index))
}

// Tasks returns a snapshot of known tasks ordered by index.
func (p *Preloader) Tasks() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Close cancels outstanding loads and waits for them to return.
func (p *Preloader) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.idle.Close()
	p.wg.Wait()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
