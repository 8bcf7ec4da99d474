package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// ErrNoCandidates is returned when Progressive.Load is given no tiers.
var ErrNoCandidates = errors.New("loader: no candidates")

// TierFunc receives each tier as soon as it is decoded.
type TierFunc func(img image.Image, tier Tier)

// FetchFunc loads one candidate. It lets a caller join work already in
// flight elsewhere instead of going through the Loader.
type FetchFunc func(ctx context.Context, c Candidate) (image.Image, error)

// Progressive loads the tiers of one logical image from lowest to highest.
type Progressive struct {
	loader *Loader
	log    *slog.Logger
}

// NewProgressive returns a Progressive backed by l.
func NewProgressive(l *Loader, log *slog.Logger) *Progressive {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Progressive{loader: l, log: log}
}

// Handle tracks one progressive load.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	aborted bool
	best    Tier
	any     bool
	err     error
}

// Cancel aborts the load. No callback runs after Cancel returns.
// Cancel must not be called from within the load's own callback.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.aborted = true
	h.mu.Unlock()
	h.cancel()
}

// Aborted reports whether Cancel was called.
func (h *Handle) Aborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}

// Done is closed once every tier has been attempted or the load ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the load ends. It returns nil if the lowest tier
// loaded, the lowest tier's error otherwise, or context.Canceled if the
// load was cancelled first.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Best returns the highest tier delivered so far.
func (h *Handle) Best() (Tier, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.best, h.any
}

// deliver runs fn under the handle lock unless the load was aborted.
func (h *Handle) deliver(img image.Image, tier Tier, fn TierFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.aborted {
		return false
	}
	if !h.any || tier > h.best {
		h.best = tier
	}
	h.any = true
	if fn != nil {
		fn(img, tier)
	}
	return true
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	if h.aborted && err == nil && !h.any {
		err = context.Canceled
	}
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Load starts loading candidates in ascending tier order and returns
// immediately. onTierReady is called once per tier that decodes, in the
// order they complete, from a goroutine owned by the load.
//
// A failure above the lowest tier is logged and the next tier is tried.
// A failure on the lowest tier ends the load; Wait reports it.
func (p *Progressive) Load(ctx context.Context, candidates []Candidate, onTierReady TierFunc) *Handle {
	return p.LoadWith(ctx, candidates, nil, onTierReady)
}

// LoadWith is Load with candidates fetched by fetch. A nil fetch loads
// through the Loader.
func (p *Progressive) LoadWith(ctx context.Context, candidates []Candidate, fetch FetchFunc, onTierReady TierFunc) *Handle {
	if fetch == nil {
		fetch = func(ctx context.Context, c Candidate) (image.Image, error) {
			return p.loader.Load(ctx, c.URL)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	if len(candidates) == 0 {
		cancel()
		h.finish(ErrNoCandidates)
		return h
	}

	ordered := sortCandidates(candidates)
	go func() {
		defer cancel()
		h.finish(p.run(ctx, h, ordered, fetch, onTierReady))
	}()
	return h
}

func (p *Progressive) run(ctx context.Context, h *Handle, ordered []Candidate, fetch FetchFunc, fn TierFunc) error {
	for i, c := range ordered {
		if h.Aborted() {
			return context.Canceled
		}
		img, err := fetch(ctx, c)
		if err != nil {
			if errors.Is(err, context.Canceled) || h.Aborted() {
				return context.Canceled
			}
			if i == 0 {
				p.log.Error("loader: lowest tier failed", "url", c.URL, "tier", c.Tier, "err", err)
				return fmt.Errorf("tier %s: %w", c.Tier, err)
			}
			p.log.Warn("loader: tier failed, continuing", "url", c.URL, "tier", c.Tier, "err", err)
			continue
		}
		if !h.deliver(img, c.Tier, fn) {
			return context.Canceled
		}
		p.log.Debug("loader: tier ready", "url", c.URL, "tier", c.Tier)
	}
	return nil
}
