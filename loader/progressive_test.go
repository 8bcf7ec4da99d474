package loader

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"
)

type tierLog struct {
	mu    sync.Mutex
	tiers []Tier
}

func (l *tierLog) add(_ image.Image, t Tier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tiers = append(l.tiers, t)
}

func (l *tierLog) get() []Tier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Tier(nil), l.tiers...)
}

func equalTiers(a, b []Tier) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProgressiveAscendingOrder(t *testing.T) {
	src := newMapSource(map[string][]byte{
		"lo":  pngBytes(t, 1, 1, color.White),
		"mid": pngBytes(t, 2, 2, color.White),
		"hi":  pngBytes(t, 4, 4, color.White),
	})
	p := NewProgressive(New(WithSource(src)), nil)

	var got tierLog
	h := p.Load(context.Background(), []Candidate{
		{URL: "hi", Tier: TierHigh},
		{URL: "lo", Tier: TierLow},
		{URL: "mid", Tier: TierMedium},
	}, got.add)
	if err := h.Wait(); err != nil {
		t.Fatal(err)
	}
	if want := []Tier{TierLow, TierMedium, TierHigh}; !equalTiers(got.get(), want) {
		t.Errorf("tiers = %v, want %v", got.get(), want)
	}
	if best, ok := h.Best(); !ok || best != TierHigh {
		t.Errorf("Best = %v, %v", best, ok)
	}
}

func TestProgressiveSkipsFailedUpperTier(t *testing.T) {
	src := newMapSource(map[string][]byte{
		"lo":  pngBytes(t, 1, 1, color.White),
		"mid": []byte("corrupt"),
		"hi":  pngBytes(t, 4, 4, color.White),
	})
	p := NewProgressive(New(WithSource(src)), nil)

	var got tierLog
	h := p.Load(context.Background(), []Candidate{
		{URL: "lo", Tier: TierLow},
		{URL: "mid", Tier: TierMedium},
		{URL: "hi", Tier: TierHigh},
	}, got.add)
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait = %v, want nil", err)
	}
	if want := []Tier{TierLow, TierHigh}; !equalTiers(got.get(), want) {
		t.Errorf("tiers = %v, want %v", got.get(), want)
	}
}

func TestProgressiveLowestTierTerminal(t *testing.T) {
	src := newMapSource(map[string][]byte{
		"lo": []byte("corrupt"),
		"hi": pngBytes(t, 4, 4, color.White),
	})
	p := NewProgressive(New(WithSource(src)), nil)

	var got tierLog
	h := p.Load(context.Background(), []Candidate{
		{URL: "lo", Tier: TierLow},
		{URL: "hi", Tier: TierHigh},
	}, got.add)
	if err := h.Wait(); !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("Wait = %v, want ErrDecodeFailure", err)
	}
	if len(got.get()) != 0 {
		t.Errorf("callbacks ran: %v", got.get())
	}
	if src.count("hi") != 0 {
		t.Error("higher tier fetched after terminal failure")
	}
}

func TestProgressiveLowestTierTimeout(t *testing.T) {
	block := SourceFunc(func(ctx context.Context, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := NewProgressive(New(WithSource(block), WithTimeout(10*time.Millisecond)), nil)
	h := p.Load(context.Background(), []Candidate{{URL: "lo", Tier: TierLow}}, nil)
	if err := h.Wait(); !errors.Is(err, ErrLoadTimeout) {
		t.Fatalf("Wait = %v, want ErrLoadTimeout", err)
	}
}

func TestProgressiveNoCallbackAfterCancel(t *testing.T) {
	lo := pngBytes(t, 1, 1, color.White)
	hi := pngBytes(t, 4, 4, color.White)
	release := make(chan struct{})
	src := SourceFunc(func(ctx context.Context, url string) ([]byte, error) {
		if url == "lo" {
			return lo, nil
		}
		select {
		case <-release:
			return hi, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	p := NewProgressive(New(WithSource(src)), nil)

	var got tierLog
	lowReady := make(chan struct{})
	h := p.Load(context.Background(), []Candidate{
		{URL: "lo", Tier: TierLow},
		{URL: "hi", Tier: TierHigh},
	}, func(img image.Image, tier Tier) {
		got.add(img, tier)
		if tier == TierLow {
			close(lowReady)
		}
	})

	<-lowReady
	h.Cancel()
	close(release)

	if err := h.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
	if want := []Tier{TierLow}; !equalTiers(got.get(), want) {
		t.Errorf("tiers = %v, want %v", got.get(), want)
	}
	if !h.Aborted() {
		t.Error("Aborted = false")
	}
}

func TestProgressiveLoadWithFetch(t *testing.T) {
	src := newMapSource(map[string][]byte{
		"lo": pngBytes(t, 1, 1, color.White),
	})
	p := NewProgressive(New(WithSource(src)), nil)
	joined := image.NewGray(image.Rect(0, 0, 4, 4))

	var got tierLog
	h := p.LoadWith(context.Background(), []Candidate{
		{URL: "lo", Tier: TierLow},
		{URL: "hi", Tier: TierHigh},
	}, func(ctx context.Context, c Candidate) (image.Image, error) {
		if c.URL == "hi" {
			return joined, nil
		}
		return p.loader.Load(ctx, c.URL)
	}, got.add)
	if err := h.Wait(); err != nil {
		t.Fatal(err)
	}
	if want := []Tier{TierLow, TierHigh}; !equalTiers(got.get(), want) {
		t.Errorf("tiers = %v, want %v", got.get(), want)
	}
	if src.count("hi") != 0 || src.count("lo") != 1 {
		t.Errorf("fetches hi=%d lo=%d, want 0 and 1", src.count("hi"), src.count("lo"))
	}
}

func TestProgressiveNoCandidates(t *testing.T) {
	p := NewProgressive(New(), nil)
	h := p.Load(context.Background(), nil, nil)
	if err := h.Wait(); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Wait = %v, want ErrNoCandidates", err)
	}
}
