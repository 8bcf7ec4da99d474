package render

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gogpu/stackview/loader"
	"github.com/gogpu/stackview/view"
)

// Redraw rates and resize debounce.
const (
	NormalFPS         = 60
	OptimizedFPS      = 30
	DefaultResizeWait = 100 * time.Millisecond
)

// FailedMessage is drawn over an image whose lowest tier failed.
const FailedMessage = "Image failed to load"

// Option configures a Compositor.
type Option func(*Compositor)

// WithProfile sets the device profile that bounds the zoom.
func WithProfile(p view.Profile) Option {
	return func(c *Compositor) { c.profile = p }
}

// WithRenderObserver registers fn to receive the duration of every draw.
// fn is called without the compositor's lock held.
func WithRenderObserver(fn func(time.Duration)) Option {
	return func(c *Compositor) { c.onRender = fn }
}

// WithResizeWait sets the resize debounce delay.
func WithResizeWait(d time.Duration) Option {
	return func(c *Compositor) { c.resizeWait = d }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) {
		if l != nil {
			c.log = l
		}
	}
}

// Stats describes compositor activity.
type Stats struct {
	Draws      int
	LastRender time.Duration
	Key        string
	Tier       loader.Tier
	HasImage   bool
	Failed     bool
	Optimized  bool
}

// Compositor draws the current image under the current transform.
// It is safe for concurrent use.
type Compositor struct {
	surf       Surface
	profile    view.Profile
	onRender   func(time.Duration)
	resizeWait time.Duration
	log        *slog.Logger
	limiter    *rate.Limiter
	kick       chan struct{}

	mu         sync.Mutex
	key        string
	img        image.Image
	tier       loader.Tier
	failed     string
	t          view.Transform
	optimized  bool
	dirty      bool
	draws      int
	lastRender time.Duration
	resize     *time.Timer
}

// NewCompositor returns a Compositor drawing onto surf.
func NewCompositor(surf Surface, opts ...Option) *Compositor {
	c := &Compositor{
		surf:       surf,
		profile:    view.Desktop,
		resizeWait: DefaultResizeWait,
		log:        slog.New(slog.DiscardHandler),
		limiter:    rate.NewLimiter(NormalFPS, 1),
		kick:       make(chan struct{}, 1),
		t:          view.Default(),
		dirty:      true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin switches to the image identified by key with nothing to show yet.
func (c *Compositor) Begin(key string) {
	c.mu.Lock()
	c.key, c.img, c.tier, c.failed = key, nil, 0, ""
	c.mu.Unlock()
	c.Invalidate()
}

// SetImage shows img as tier of the image identified by key. For the
// current key, a tier lower than the one already shown is ignored, so a
// late low-quality callback never replaces a better image. It reports
// whether img was accepted.
func (c *Compositor) SetImage(key string, img image.Image, tier loader.Tier) bool {
	c.mu.Lock()
	if key == c.key && c.img != nil && tier < c.tier {
		c.mu.Unlock()
		c.log.Debug("render: ignoring lower tier", "key", key, "tier", tier, "shown", c.tier)
		return false
	}
	c.key, c.img, c.tier, c.failed = key, img, tier, ""
	c.mu.Unlock()
	c.Invalidate()
	return true
}

// SetFailed shows the failure overlay for key. It is ignored when key is
// no longer current or an image for it is already shown.
func (c *Compositor) SetFailed(key, msg string) {
	c.mu.Lock()
	if key != c.key || c.img != nil {
		c.mu.Unlock()
		return
	}
	if msg == "" {
		msg = FailedMessage
	}
	c.failed = msg
	c.mu.Unlock()
	c.Invalidate()
}

// SetTransform sets the view transform, clamped to the profile.
func (c *Compositor) SetTransform(t view.Transform) {
	t = t.Clamp(c.profile)
	c.mu.Lock()
	if t == c.t {
		c.mu.Unlock()
		return
	}
	c.t = t
	c.mu.Unlock()
	c.Invalidate()
}

// Transform returns the transform used by the next draw.
func (c *Compositor) Transform() view.Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// SetOptimized turns optimized mode on or off. Optimized mode samples
// with nearest neighbour and halves the redraw rate.
func (c *Compositor) SetOptimized(on bool) {
	c.mu.Lock()
	if c.optimized == on {
		c.mu.Unlock()
		return
	}
	c.optimized = on
	c.mu.Unlock()

	if on {
		c.limiter.SetLimit(OptimizedFPS)
	} else {
		c.limiter.SetLimit(NormalFPS)
	}
	c.log.Info("render: optimized mode", "on", on)
	c.Invalidate()
}

// Optimized reports whether optimized mode is on.
func (c *Compositor) Optimized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.optimized
}

// Resize resizes the surface once no further Resize call has arrived for
// the debounce delay.
func (c *Compositor) Resize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resize != nil {
		c.resize.Stop()
	}
	c.resize = time.AfterFunc(c.resizeWait, func() {
		c.mu.Lock()
		err := c.surf.Resize(w, h)
		c.dirty = true
		c.mu.Unlock()
		if err != nil {
			c.log.Warn("render: resize failed", "w", w, "h", h, "err", err)
			return
		}
		c.Invalidate()
	})
}

// Invalidate marks the surface dirty and wakes Run.
func (c *Compositor) Invalidate() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run redraws the surface whenever it is invalidated, no faster than the
// current rate, until ctx is done.
func (c *Compositor) Run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		if c.resize != nil {
			c.resize.Stop()
		}
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
		}

		r := c.limiter.Reserve()
		if d := r.Delay(); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				r.Cancel()
				return
			case <-t.C:
			}
		}
		if !c.isDirty() {
			r.Cancel()
			continue
		}
		c.Draw()
	}
}

func (c *Compositor) isDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Draw performs one composed draw immediately.
func (c *Compositor) Draw() {
	c.mu.Lock()
	start := time.Now()

	s := c.surf
	s.Clear()
	w, h := s.Size()
	if c.img != nil {
		b := c.img.Bounds()
		s.Push()
		s.Translate(float64(w)/2+c.t.Pan.X, float64(h)/2+c.t.Pan.Y)
		s.Scale(c.t.Zoom, c.t.Zoom)
		s.SetLevels(c.t.Brightness, c.t.Contrast)
		s.SetSmoothing(!c.optimized)
		s.DrawImage(c.img, -float64(b.Dx())/2, -float64(b.Dy())/2)
		s.Pop()
	}
	if c.failed != "" {
		s.DrawLabel(c.failed, float64(w)/2, float64(h)/2)
	}

	d := time.Since(start)
	c.draws++
	c.lastRender = d
	c.dirty = false
	c.mu.Unlock()

	if c.onRender != nil {
		c.onRender(d)
	}
}

// Image returns a snapshot of the surface.
func (c *Compositor) Image() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surf.Image()
}

// Current returns the image shown and its tier.
func (c *Compositor) Current() (image.Image, loader.Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img, c.tier, c.img != nil
}

// Stats returns a snapshot of compositor activity.
func (c *Compositor) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Draws:      c.draws,
		LastRender: c.lastRender,
		Key:        c.key,
		Tier:       c.tier,
		HasImage:   c.img != nil,
		Failed:     c.failed != "",
		Optimized:  c.optimized,
	}
}
