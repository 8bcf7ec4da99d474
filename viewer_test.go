package stackview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/stackview/cache"
	"github.com/gogpu/stackview/gesture"
	"github.com/gogpu/stackview/loader"
	"github.com/gogpu/stackview/view"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeSource serves fixed bytes per URL and counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	data    map[string][]byte
	fetches map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{data: make(map[string][]byte), fetches: make(map[string]int)}
}

func (s *fakeSource) set(url string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[url] = b
}

func (s *fakeSource) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[url]
}

func (s *fakeSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[url]++
	b, ok := s.data[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s: 404", loader.ErrFetchFailed, url)
	}
	return b, nil
}

type fixedMemory float64

func (m fixedMemory) MemoryMB(context.Context) (float64, error) { return float64(m), nil }

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func stackOf(t *testing.T, src *fakeSource, n int) *Study {
	t.Helper()
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("mem://slice/%d.png", i)
		src.set(urls[i], pngBytes(t, 8, 8, red))
	}
	return NewStudy("test", urls...)
}

func openViewer(t *testing.T, study *Study, opts ...Option) *Viewer {
	t.Helper()
	base := []Option{
		WithSize(32, 32),
		WithMemorySensor(fixedMemory(50)),
		WithIdleDelay(10 * time.Millisecond),
	}
	v, err := Open(context.Background(), study, append(base, opts...)...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func waitLoaded(t *testing.T, v *Viewer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := v.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestOpenRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, &Study{}); !errors.Is(err, ErrEmptyStudy) {
		t.Errorf("empty study err = %v, want ErrEmptyStudy", err)
	}
	if _, err := Open(ctx, nil); !errors.Is(err, ErrEmptyStudy) {
		t.Errorf("nil study err = %v, want ErrEmptyStudy", err)
	}
	study := NewStudy("s", "a.png")
	if _, err := Open(ctx, study, WithStartIndex(3)); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("bad start err = %v, want ErrIndexOutOfRange", err)
	}
}

func TestViewerShowsFirstImage(t *testing.T) {
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 3), WithSource(src))
	waitLoaded(t, v)

	st, err := v.Status(0)
	if err != nil || !st.Loaded || st.Tier != loader.TierHigh {
		t.Fatalf("Status(0) = %+v, %v", st, err)
	}

	img := v.Snapshot()
	r, g, _, _ := img.At(16, 16).RGBA()
	if r>>8 < 200 || g>>8 > 60 {
		t.Errorf("center pixel = %v, want red", img.At(16, 16))
	}
	if r, _, _, _ := img.At(1, 1).RGBA(); r>>8 > 30 {
		t.Errorf("corner pixel = %v, want background", img.At(1, 1))
	}
}

func TestViewerProgressiveTiers(t *testing.T) {
	src := newFakeSource()
	src.set("low.png", pngBytes(t, 4, 4, green))
	src.set("full.png", pngBytes(t, 8, 8, red))
	study := &Study{Images: []ImageRef{{
		URL:   "full.png",
		Tiers: []loader.Candidate{{URL: "low.png", Tier: loader.TierLow}},
	}}}

	v := openViewer(t, study, WithSource(src))
	waitLoaded(t, v)

	rs := v.Stats().Render
	if !rs.HasImage || rs.Tier != loader.TierHigh || rs.Key != "full.png" {
		t.Errorf("render stats = %+v, want high tier of full.png", rs)
	}
	if src.count("low.png") != 1 || src.count("full.png") != 1 {
		t.Errorf("fetches low=%d full=%d, want 1 each", src.count("low.png"), src.count("full.png"))
	}
}

func TestViewerFailedImage(t *testing.T) {
	src := newFakeSource()
	study := NewStudy("broken", "missing.png")
	v := openViewer(t, study, WithSource(src))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := v.Wait(ctx); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Wait err = %v, want ErrFetchFailed", err)
	}
	eventually(t, "failed status", func() bool {
		st, _ := v.Status(0)
		return st.Failed()
	})
	if !v.Stats().Render.Failed {
		t.Error("compositor should show the failure overlay")
	}
}

// gatedSource holds fetches of one URL until release is closed.
type gatedSource struct {
	*fakeSource
	url     string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == g.url {
		g.once.Do(func() { close(g.started) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.fakeSource.Fetch(ctx, url)
}

func TestViewerShowJoinsPendingPreload(t *testing.T) {
	src := &gatedSource{
		fakeSource: newFakeSource(),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	study := stackOf(t, src.fakeSource, 4)
	src.url = study.Images[1].URL
	v := openViewer(t, study, WithSource(src))

	select {
	case <-src.started:
	case <-time.After(2 * time.Second):
		t.Fatal("preload of image 1 never started")
	}
	if err := v.Show(1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	waitLoaded(t, v)

	if n := src.count(src.url); n != 1 {
		t.Errorf("fetches of image 1 = %d, want 1", n)
	}
	if st, _ := v.Status(1); !st.Loaded || st.Tier != loader.TierHigh {
		t.Errorf("Status(1) = %+v", st)
	}
}

func TestViewerNavigationPreloads(t *testing.T) {
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 5), WithSource(src))
	waitLoaded(t, v)

	eventually(t, "neighbours preloaded", func() bool {
		return v.Preloaded(1) && v.Preloaded(2)
	})
	if v.Preloaded(3) {
		t.Error("index 3 is outside the preload range")
	}

	i, err := v.Next()
	if err != nil || i != 1 {
		t.Fatalf("Next = %d, %v", i, err)
	}
	st, _ := v.Status(1)
	if !st.Loaded {
		t.Errorf("preloaded image should be shown at once, status %+v", st)
	}
	if n := src.count("mem://slice/1.png"); n != 1 {
		t.Errorf("slice 1 fetched %d times, want 1", n)
	}
	eventually(t, "index 3 preloaded", func() bool { return v.Preloaded(3) })
}

func TestViewerNavigationBounds(t *testing.T) {
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 2), WithSource(src))

	if i, err := v.Prev(); err != nil || i != 0 {
		t.Errorf("Prev at start = %d, %v; want 0", i, err)
	}
	if i, _ := v.Next(); i != 1 {
		t.Errorf("Next = %d, want 1", i)
	}
	if i, err := v.Next(); err != nil || i != 1 {
		t.Errorf("Next at end = %d, %v; want 1", i, err)
	}
	if err := v.Show(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Show(2) err = %v", err)
	}
	if _, err := v.Status(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Status(-1) err = %v", err)
	}
}

func TestViewerTransformControls(t *testing.T) {
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 1), WithSource(src))

	if got := v.SetBrightness(150).Brightness; got != 100 {
		t.Errorf("brightness = %d, want 100", got)
	}
	if got := v.SetContrast(-150).Contrast; got != -100 {
		t.Errorf("contrast = %d, want -100", got)
	}
	if got := v.SetZoom(50).Zoom; got != view.Desktop.MaxZoom {
		t.Errorf("zoom = %v, want %v", got, view.Desktop.MaxZoom)
	}

	tr, err := v.ApplyPreset("lung")
	if err != nil || tr.Brightness != 20 || tr.Contrast != 60 {
		t.Errorf("lung preset = %+v, %v", tr, err)
	}
	if _, err := v.ApplyPreset("knee"); err == nil {
		t.Error("unknown preset should fail")
	}

	if tr := v.DoubleTap(); tr != view.Default() {
		t.Errorf("DoubleTap = %+v, want default", tr)
	}

	v.HandlePointer(gesture.Down(1, 0, 0))
	tr = v.HandlePointer(gesture.Move(1, 10, 5))
	v.HandlePointer(gesture.Up(1))
	if tr.Pan != view.Pt(10, 5) {
		t.Errorf("pan = %+v, want (10,5)", tr.Pan)
	}
	if v.Stats().Render.Key == "" {
		t.Error("compositor has no current image key")
	}
	if got := v.Reset(); got != view.Default() {
		t.Errorf("Reset = %+v", got)
	}
}

func TestViewerTouchProfile(t *testing.T) {
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 1), WithSource(src), WithProfile(view.Touch))

	v.HandlePointer(gesture.Down(1, 0, 0))
	v.HandlePointer(gesture.Down(2, 10, 0))
	tr := v.HandlePointer(gesture.Move(2, 1000, 0))
	if tr.Zoom != view.Touch.MaxZoom {
		t.Errorf("pinch zoom = %v, want %v", tr.Zoom, view.Touch.MaxZoom)
	}
}

func TestViewerReusesPersistentCache(t *testing.T) {
	backend := cache.NewMemoryBackend(0)
	src := newFakeSource()
	study := stackOf(t, src, 1)

	v1, err := Open(context.Background(), study,
		WithBackend(backend), WithSource(src), WithSize(16, 16), WithMemorySensor(fixedMemory(1)))
	if err != nil {
		t.Fatal(err)
	}
	waitLoaded(t, v1)
	if err := v1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	offline := newFakeSource()
	v2 := openViewer(t, study, WithBackend(backend), WithSource(offline))
	waitLoaded(t, v2)
	if n := offline.count(study.Images[0].URL); n != 0 {
		t.Errorf("cached image fetched %d times", n)
	}
	if st := v2.Stats().Cache; st.ItemCount != 1 {
		t.Errorf("cache items = %d, want 1", st.ItemCount)
	}
}

func TestViewerClearCache(t *testing.T) {
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 1), WithSource(src))
	waitLoaded(t, v)

	if err := v.ClearCache(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := v.Stats().Cache; st.ItemCount != 0 || st.TotalBytes != 0 {
		t.Errorf("cache after clear = %+v", st)
	}
}

func TestViewerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 1), WithSource(src), WithRegisterer(reg))
	waitLoaded(t, v)
	v.Sample(context.Background())

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]bool)
	for _, mf := range mfs {
		got[mf.GetName()] = true
	}
	for _, name := range []string{"stackview_fps", "stackview_memory_megabytes", "stackview_cache_bytes"} {
		if !got[name] {
			t.Errorf("metric %s not exported", name)
		}
	}
}

func TestViewerSessionInLogs(t *testing.T) {
	var buf syncBuffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 1), WithSource(src), WithLogger(l))

	if !strings.Contains(buf.String(), "session="+v.Session()) {
		t.Errorf("log output lacks session id:\n%s", buf.String())
	}
}

func TestViewerClose(t *testing.T) {
	src := newFakeSource()
	v := openViewer(t, stackOf(t, src, 3), WithSource(src))

	if err := v.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := v.Show(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Show after Close err = %v, want ErrClosed", err)
	}
}

func TestViewerSwitchCancelsPending(t *testing.T) {
	release := make(chan struct{})
	slow := loader.SourceFunc(func(ctx context.Context, url string) ([]byte, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, errors.New("never")
	})
	study := NewStudy("slow", "a.png", "b.png")
	v := openViewer(t, study, WithSource(slow), WithPreloadRange(2))
	defer close(release)

	if err := v.Show(1); err != nil {
		t.Fatal(err)
	}
	st, _ := v.Status(0)
	if st.Failed() {
		t.Errorf("cancelled image reported as failed: %+v", st)
	}
	if v.Current() != 1 {
		t.Errorf("Current = %d, want 1", v.Current())
	}
}
