package stackview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/stackview/adaptive"
	"github.com/gogpu/stackview/cache"
	"github.com/gogpu/stackview/gesture"
	"github.com/gogpu/stackview/loader"
	"github.com/gogpu/stackview/preload"
	"github.com/gogpu/stackview/render"
	"github.com/gogpu/stackview/telemetry"
	"github.com/gogpu/stackview/view"
)

// closeTimeout bounds how long Close waits for a running cache sweep.
const closeTimeout = 5 * time.Second

// Status describes the load state of one image.
type Status struct {
	Index  int
	Tier   loader.Tier // best tier shown so far, valid when Loaded
	Loaded bool
	Err    error
}

// Failed reports whether the image could not be loaded at any tier.
func (s Status) Failed() bool { return !s.Loaded && s.Err != nil }

// Stats is a snapshot of a viewer's subsystems.
type Stats struct {
	Session         string
	Index           int
	Cache           cache.Stats
	Render          render.Stats
	Sample          telemetry.Sample
	Optimized       bool
	HighPerformance bool
	Connection      telemetry.Connection
	Preload         []preload.Task
}

// Viewer displays one study. It owns the cache, the loaders, the
// compositor and the telemetry loop of a single viewing session.
//
// All methods are safe for concurrent use.
type Viewer struct {
	id    string
	study *Study
	log   *slog.Logger

	store       *cache.Store
	sweeper     *cache.Sweeper
	loader      *loader.Loader
	progressive *loader.Progressive
	preloader   *preload.Preloader
	comp        *render.Compositor
	surface     io.Closer // nil when the caller owns the surface
	gestures    *gesture.Machine
	frames      *telemetry.FrameCounter
	monitor     *telemetry.Monitor
	metrics     *telemetry.Metrics
	controller  *adaptive.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current int
	handle  *loader.Handle
	status  map[int]Status
	closed  bool
}

// Open starts a viewing session for study and shows its first image.
// ctx bounds the opening of the cache; the session itself runs until Close.
func Open(ctx context.Context, study *Study, opts ...Option) (*Viewer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := checkStudy(study, o.start); err != nil {
		if o.backend != nil {
			err = errors.Join(err, o.backend.Close())
		}
		return nil, err
	}

	id := uuid.NewString()
	log := o.logger
	if log == nil {
		log = Logger()
	}
	log = log.With("session", id)

	backend := o.backend
	if backend == nil {
		backend = cache.NewMemoryBackend(0)
	}
	store, err := cache.Open(ctx, backend,
		cache.WithMaxBytes(o.cacheBytes),
		cache.WithMaxAge(o.cacheMaxAge),
		cache.WithLogger(log),
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("stackview: open cache: %w", err), backend.Close())
	}

	var metrics *telemetry.Metrics
	if o.registerer != nil {
		metrics, err = telemetry.NewMetrics(o.registerer)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("stackview: metrics: %w", err), store.Close())
		}
	}

	v := &Viewer{
		id:      id,
		study:   study,
		log:     log,
		store:   store,
		metrics: metrics,
		current: o.start,
		status:  make(map[int]Status),
	}

	surf := o.surface
	if surf == nil {
		gs, err := render.NewGGSurface(o.width, o.height)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("stackview: surface: %w", err), store.Close())
		}
		surf, v.surface = gs, gs
	}

	v.frames = telemetry.NewFrameCounter(nil)
	v.monitor = telemetry.NewMonitor(v.monitorOptions(o)...)

	src := o.source
	if src == nil {
		src = loader.DefaultSource(o.client)
	}
	var memo *loader.Memo
	if o.memoSize > 0 {
		memo = loader.NewMemo(o.memoSize)
	}
	v.loader = loader.New(
		loader.WithSource(src),
		loader.WithStore(store),
		loader.WithMemo(memo),
		loader.WithTimeout(o.timeout),
		loader.WithObserver(v.monitor.RecordImageLoad),
		loader.WithLogger(log),
	)
	v.progressive = loader.NewProgressive(v.loader, log)

	v.comp = render.NewCompositor(surf,
		render.WithProfile(o.profile),
		render.WithRenderObserver(v.monitor.RecordRender),
		render.WithLogger(log),
	)
	v.gestures = gesture.NewMachine(o.profile,
		gesture.WithOnChange(v.comp.SetTransform),
		gesture.WithLogger(log),
	)
	v.preloader = preload.New(study.Len(), v.preload,
		preload.WithRange(o.preloadRange),
		preload.WithCached(v.cached),
		preload.WithIdleDelay(o.idleDelay),
		preload.WithLogger(log),
	)
	v.controller = adaptive.New(v.comp, store,
		adaptive.WithWarningLimit(o.warningLimit),
		adaptive.WithBudgets(o.cacheBytes, o.cacheBytes/2),
		adaptive.WithMetrics(metrics),
		adaptive.WithLogger(log),
	)
	v.sweeper = cache.NewSweeper(store, o.sweepInterval, log)

	v.ctx, v.cancel = context.WithCancel(context.WithoutCancel(ctx))
	v.controller.Attach(v.ctx, v.monitor)
	if metrics != nil {
		v.monitor.OnSample(func(telemetry.Sample) {
			st := store.Stats()
			metrics.SetCache(st.TotalBytes, st.ItemCount)
		})
	}

	v.sweeper.Start()
	v.spawn(func() { v.comp.Run(v.ctx) })
	v.spawn(func() { v.frames.Run(v.ctx, 0) })
	v.spawn(func() { v.monitor.Run(v.ctx) })

	log.Info("stackview: viewer opened",
		"study", study.Name,
		"images", study.Len(),
		"profile", o.profile.Name)

	if err := v.Show(o.start); err != nil {
		return nil, errors.Join(err, v.Close())
	}
	return v, nil
}

func checkStudy(study *Study, start int) error {
	if study == nil || study.Len() == 0 {
		return ErrEmptyStudy
	}
	if start < 0 || start >= study.Len() {
		return fmt.Errorf("%w: start %d", ErrIndexOutOfRange, start)
	}
	return nil
}

func (v *Viewer) monitorOptions(o options) []telemetry.Option {
	opts := []telemetry.Option{
		telemetry.WithFPS(v.frames),
		telemetry.WithInterval(o.interval),
		telemetry.WithThresholds(o.thresholds),
		telemetry.WithMetrics(v.metrics),
		telemetry.WithLogger(v.log),
	}
	mem := o.memory
	if mem == nil {
		pm, err := telemetry.NewProcessMemory()
		if err != nil {
			v.log.Debug("stackview: process memory unavailable", "err", err)
		} else {
			mem = pm
		}
	}
	if mem != nil {
		opts = append(opts, telemetry.WithMemory(mem))
	}
	if o.power != nil {
		opts = append(opts, telemetry.WithPower(o.power))
	}
	if o.network != nil {
		opts = append(opts, telemetry.WithNetwork(o.network))
	}
	return opts
}

func (v *Viewer) spawn(fn func()) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		fn()
	}()
}

func (v *Viewer) preload(ctx context.Context, index int) (image.Image, error) {
	return v.loader.Load(ctx, v.study.Images[index].URL)
}

func (v *Viewer) cached(index int) bool {
	return v.loader.Cached(v.study.Images[index].URL)
}

// Session returns the id attached to every log record of the viewer.
func (v *Viewer) Session() string { return v.id }

// Study returns the study being viewed.
func (v *Viewer) Study() *Study { return v.study }

// Current returns the index of the image being shown.
func (v *Viewer) Current() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Show switches to the image at index. The previous image's pending tiers
// are cancelled and no longer reach the screen. A preloaded image is shown
// at once; otherwise its tiers are loaded progressively, lowest first, and
// a preload still in flight is joined rather than fetched again.
// Show does not wait for the image; see Wait.
func (v *Viewer) Show(index int) error {
	if index < 0 || index >= v.study.Len() {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	ref := v.study.Images[index]

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	prev := v.handle
	v.handle = nil
	v.current = index
	v.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	key := ref.URL
	v.comp.Begin(key)
	candidates := ref.Candidates()
	if img, ok := v.preloader.Get(index); ok {
		tier := ref.tierOf(ref.URL)
		v.comp.SetImage(key, img, tier)
		v.markLoaded(index, tier)
		candidates = above(candidates, tier)
	}

	if len(candidates) > 0 {
		var fetch loader.FetchFunc
		if v.preloader.Pending(index) {
			fetch = v.joinPreload(index, ref.URL)
		}
		h := v.progressive.LoadWith(v.ctx, candidates, fetch, func(img image.Image, tier loader.Tier) {
			if v.comp.SetImage(key, img, tier) {
				v.markLoaded(index, tier)
			}
		})
		v.mu.Lock()
		owned := !v.closed && v.current == index && v.handle == nil
		if owned {
			v.handle = h
			v.wg.Add(1)
		}
		v.mu.Unlock()
		if !owned {
			h.Cancel()
		} else {
			go v.watch(index, key, h)
		}
	}

	v.preloader.OnIndexChange(index)
	return nil
}

// joinPreload fetches url through the preloader so an in-flight preload of
// index is reused. Other tiers go through the loader.
func (v *Viewer) joinPreload(index int, url string) loader.FetchFunc {
	return func(ctx context.Context, c loader.Candidate) (image.Image, error) {
		if c.URL == url {
			return v.preloader.Request(ctx, index)
		}
		return v.loader.Load(ctx, c.URL)
	}
}

func above(c []loader.Candidate, t loader.Tier) []loader.Candidate {
	out := c[:0:0]
	for _, cand := range c {
		if cand.Tier > t {
			out = append(out, cand)
		}
	}
	return out
}

func (v *Viewer) watch(index int, key string, h *loader.Handle) {
	defer v.wg.Done()
	err := h.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	v.comp.SetFailed(key, "")
	v.mu.Lock()
	st := v.status[index]
	st.Index, st.Err = index, err
	v.status[index] = st
	v.mu.Unlock()
	v.log.Warn("stackview: image failed", "index", index, "err", err)
}

func (v *Viewer) markLoaded(index int, tier loader.Tier) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.status[index]
	if !st.Loaded || tier > st.Tier {
		st.Tier = tier
	}
	st.Index, st.Loaded, st.Err = index, true, nil
	v.status[index] = st
}

// Wait blocks until the current image has finished loading its tiers and
// returns the terminal error, if any.
func (v *Viewer) Wait(ctx context.Context) error {
	v.mu.Lock()
	h := v.handle
	v.mu.Unlock()
	if h == nil {
		return nil
	}
	select {
	case <-h.Done():
		return h.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next shows the following image and returns the new index. At the end of
// the study it stays put.
func (v *Viewer) Next() (int, error) { return v.step(1) }

// Prev shows the preceding image and returns the new index. At the start of
// the study it stays put.
func (v *Viewer) Prev() (int, error) { return v.step(-1) }

func (v *Viewer) step(d int) (int, error) {
	cur := v.Current()
	next := cur + d
	if next < 0 || next >= v.study.Len() {
		return cur, nil
	}
	return next, v.Show(next)
}

// Status returns the load state of the image at index.
func (v *Viewer) Status(index int) (Status, error) {
	if index < 0 || index >= v.study.Len() {
		return Status{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.status[index]
	st.Index = index
	return st, nil
}

// Preloaded reports whether the image at index is held by the preloader.
func (v *Viewer) Preloaded(index int) bool {
	return v.preloader.IsPreloaded(index)
}

// HandlePointer feeds one input event to the gesture machine and returns
// the resulting transform.
func (v *Viewer) HandlePointer(ev gesture.Event) view.Transform {
	t, _ := v.gestures.Handle(ev)
	return t
}

// DoubleTap resets the view, as a double tap on the image does.
func (v *Viewer) DoubleTap() view.Transform {
	return v.HandlePointer(gesture.Event{Kind: gesture.DoubleTap})
}

// SetTool selects what single-pointer drags do.
func (v *Viewer) SetTool(t gesture.Tool) { v.gestures.SetTool(t) }

// Tool returns the active tool.
func (v *Viewer) Tool() gesture.Tool { return v.gestures.Tool() }

// SetBrightness sets the brightness level, clamped to [-100, 100].
func (v *Viewer) SetBrightness(b int) view.Transform {
	return v.gestures.Update(func(t view.Transform) view.Transform { return t.WithBrightness(b) })
}

// SetContrast sets the contrast level, clamped to [-100, 100].
func (v *Viewer) SetContrast(c int) view.Transform {
	return v.gestures.Update(func(t view.Transform) view.Transform { return t.WithContrast(c) })
}

// SetZoom sets the zoom factor, clamped to the device profile.
func (v *Viewer) SetZoom(z float64) view.Transform {
	p := v.gestures.Profile()
	return v.gestures.Update(func(t view.Transform) view.Transform { return t.WithZoom(z, p) })
}

// Pan moves the image by (dx, dy) pixels.
func (v *Viewer) Pan(dx, dy float64) view.Transform {
	return v.gestures.Update(func(t view.Transform) view.Transform { return t.PanBy(dx, dy) })
}

// ApplyPreset applies the named window preset.
func (v *Viewer) ApplyPreset(name string) (view.Transform, error) {
	p, err := gesture.PresetByName(name)
	if err != nil {
		return v.gestures.Transform(), err
	}
	return v.gestures.Update(p.Apply), nil
}

// Reset restores the default view.
func (v *Viewer) Reset() view.Transform { return v.gestures.Reset() }

// Transform returns the current view transform.
func (v *Viewer) Transform() view.Transform { return v.gestures.Transform() }

// Resize changes the surface size. Bursts of resizes are coalesced.
func (v *Viewer) Resize(w, h int) { v.comp.Resize(w, h) }

// Snapshot draws the current frame and returns a copy of it.
func (v *Viewer) Snapshot() image.Image {
	v.comp.Draw()
	return v.comp.Image()
}

// Sample takes a telemetry sample now.
func (v *Viewer) Sample(ctx context.Context) telemetry.Sample {
	return v.monitor.Sample(ctx)
}

// Stats returns a snapshot of the viewer's subsystems.
func (v *Viewer) Stats() Stats {
	return Stats{
		Session:         v.id,
		Index:           v.Current(),
		Cache:           v.store.Stats(),
		Render:          v.comp.Stats(),
		Sample:          v.monitor.Last(),
		Optimized:       v.controller.Optimized(),
		HighPerformance: v.controller.HighPerformance(),
		Connection:      v.controller.Connection(),
		Preload:         v.preloader.Tasks(),
	}
}

// ClearCache removes every cached image, in memory and in storage.
func (v *Viewer) ClearCache(ctx context.Context) error {
	v.loader.Purge()
	return v.store.Clear(ctx)
}

// Close cancels pending loads, stops the background loops and releases
// the cache and surface. It is safe to call more than once.
func (v *Viewer) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	h := v.handle
	v.handle = nil
	v.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	v.cancel()
	v.preloader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	v.sweeper.Stop(ctx)
	cancel()
	v.wg.Wait()

	errs := []error{v.store.Close()}
	if v.surface != nil {
		errs = append(errs, v.surface.Close())
	}
	v.log.Info("stackview: viewer closed")
	return errors.Join(errs...)
}
