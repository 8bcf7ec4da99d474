package stackview

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/stackview/adaptive"
	"github.com/gogpu/stackview/cache"
	"github.com/gogpu/stackview/loader"
	"github.com/gogpu/stackview/preload"
	"github.com/gogpu/stackview/render"
	"github.com/gogpu/stackview/telemetry"
	"github.com/gogpu/stackview/view"
)

// Default surface size in pixels.
const (
	DefaultWidth  = 512
	DefaultHeight = 512
)

// Option configures a Viewer during Open.
//
// Example:
//
//	v, err := stackview.Open(ctx, study,
//	    stackview.WithProfile(view.Touch),
//	    stackview.WithPreloadRange(3),
//	)
type Option func(*options)

type options struct {
	backend       cache.Backend
	cacheBytes    int64
	cacheMaxAge   time.Duration
	sweepInterval time.Duration
	profile       view.Profile
	surface       render.Surface
	width, height int
	source        loader.Source
	client        *http.Client
	timeout       time.Duration
	memoSize      int
	preloadRange  int
	idleDelay     time.Duration
	registerer    prometheus.Registerer
	memory        telemetry.MemorySensor
	power         telemetry.PowerSensor
	network       telemetry.NetworkSensor
	interval      time.Duration
	thresholds    telemetry.Thresholds
	warningLimit  int
	start         int
	logger        *slog.Logger
}

func defaultOptions() options {
	return options{
		cacheBytes:   cache.DefaultMaxBytes,
		cacheMaxAge:  cache.DefaultMaxAge,
		profile:      view.Desktop,
		width:        DefaultWidth,
		height:       DefaultHeight,
		timeout:      loader.DefaultTimeout,
		memoSize:     loader.DefaultMemoSize,
		preloadRange: preload.DefaultRange,
		idleDelay:    preload.DefaultIdleDelay,
		interval:     telemetry.DefaultInterval,
		thresholds:   telemetry.DefaultThresholds(),
		warningLimit: adaptive.DefaultWarningLimit,
	}
}

// WithBackend stores cached image bytes in b instead of process memory.
// The viewer takes ownership of b: it is closed by Close, or by Open when
// Open fails.
func WithBackend(b cache.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithCacheBudget sets the cache budget used on a fast connection.
func WithCacheBudget(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheBytes = n
		}
	}
}

// WithCacheMaxAge sets how long cached images stay valid.
func WithCacheMaxAge(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cacheMaxAge = d
		}
	}
}

// WithSweepInterval sets how often expired cache entries are evicted.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithProfile selects the device profile that bounds zoom.
func WithProfile(p view.Profile) Option {
	return func(o *options) { o.profile = p }
}

// WithSurface draws into s instead of a new gg surface.
// The caller keeps ownership of s.
func WithSurface(s render.Surface) Option {
	return func(o *options) { o.surface = s }
}

// WithSize sets the size of the surface created by Open.
func WithSize(w, h int) Option {
	return func(o *options) {
		if w > 0 && h > 0 {
			o.width, o.height = w, h
		}
	}
}

// WithSource fetches image bytes from s.
func WithSource(s loader.Source) Option {
	return func(o *options) { o.source = s }
}

// WithHTTPClient sets the client of the default source.
// It has no effect together with WithSource.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithTimeout sets the per-image load timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMemoSize sets how many decoded images are kept in memory.
// Zero disables the in-memory layer.
func WithMemoSize(n int) Option {
	return func(o *options) { o.memoSize = n }
}

// WithPreloadRange sets how many neighbours on each side are preloaded.
func WithPreloadRange(n int) Option {
	return func(o *options) { o.preloadRange = n }
}

// WithIdleDelay sets how long low-priority preloads wait for foreground
// loads before starting anyway.
func WithIdleDelay(d time.Duration) Option {
	return func(o *options) { o.idleDelay = d }
}

// WithRegisterer exports the viewer's metrics to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMemorySensor replaces the process memory sensor.
func WithMemorySensor(s telemetry.MemorySensor) Option {
	return func(o *options) { o.memory = s }
}

// WithPowerSensor reports battery state to the monitor.
func WithPowerSensor(s telemetry.PowerSensor) Option {
	return func(o *options) { o.power = s }
}

// WithNetworkSensor reports connection quality to the monitor.
func WithNetworkSensor(s telemetry.NetworkSensor) Option {
	return func(o *options) { o.network = s }
}

// WithSampleInterval sets how often telemetry is sampled.
func WithSampleInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithThresholds sets the performance warning thresholds.
func WithThresholds(t telemetry.Thresholds) Option {
	return func(o *options) { o.thresholds = t }
}

// WithWarningLimit sets how many performance warnings switch rendering to
// optimized mode.
func WithWarningLimit(n int) Option {
	return func(o *options) { o.warningLimit = n }
}

// WithStartIndex selects the first image shown.
func WithStartIndex(i int) Option {
	return func(o *options) { o.start = i }
}

// WithLogger sets the viewer's logger. Without it the package logger
// from [Logger] is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
