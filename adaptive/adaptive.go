// Package adaptive reacts to telemetry by trading rendering fidelity and
// cache size for responsiveness.
//
// Two low frame rate or slow render warnings switch the renderer to
// optimized mode for the rest of the session; there is no way back, so a
// struggling device does not oscillate between modes. A slow connection
// shrinks the persistent cache budget, and a fast one restores it.
package adaptive

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gogpu/stackview/cache"
	"github.com/gogpu/stackview/telemetry"
)

// DefaultWarningLimit is the number of frame warnings that switches the
// renderer to optimized mode.
const DefaultWarningLimit = 2

// Renderer is the part of the compositor the controller drives.
type Renderer interface {
	SetOptimized(on bool)
}

// Budget is the part of the cache store the controller drives.
type Budget interface {
	SetMaxBytes(ctx context.Context, n int64)
	MaxBytes() int64
}

// Option configures a Controller.
type Option func(*Controller)

// WithWarningLimit sets how many frame warnings trigger optimized mode.
func WithWarningLimit(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithBudgets sets the cache budgets for fast and slow connections.
func WithBudgets(fast, slow int64) Option {
	return func(c *Controller) {
		c.fastBytes, c.slowBytes = fast, slow
	}
}

// WithMetrics reports the optimized flag to mt.
func WithMetrics(mt *telemetry.Metrics) Option {
	return func(c *Controller) { c.metrics = mt }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// Controller applies telemetry to the renderer and the cache.
// It is safe for concurrent use.
type Controller struct {
	renderer  Renderer
	budget    Budget
	limit     int
	fastBytes int64
	slowBytes int64
	metrics   *telemetry.Metrics
	log       *slog.Logger

	mu         sync.Mutex
	warnings   int
	optimized  bool
	highPerf   bool
	connection telemetry.Connection
}

// New returns a Controller. Either collaborator may be nil.
func New(r Renderer, b Budget, opts ...Option) *Controller {
	c := &Controller{
		renderer:   r,
		budget:     b,
		limit:      DefaultWarningLimit,
		fastBytes:  cache.DefaultMaxBytes,
		slowBytes:  cache.SlowConnectionMaxBytes,
		log:        slog.New(slog.DiscardHandler),
		highPerf:   true,
		connection: telemetry.ConnectionFast,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach subscribes the controller to m. ctx bounds cache operations
// triggered by samples.
func (c *Controller) Attach(ctx context.Context, m *telemetry.Monitor) {
	m.OnWarning(c.HandleWarning)
	m.OnSample(func(s telemetry.Sample) { c.HandleSample(ctx, s) })
}

// HandleWarning counts frame warnings and switches to optimized mode when
// the limit is reached. Image load warnings are ignored.
func (c *Controller) HandleWarning(w telemetry.Warning) {
	if w.Kind != telemetry.LowFPS && w.Kind != telemetry.SlowRender {
		return
	}
	c.mu.Lock()
	c.warnings++
	flip := !c.optimized && c.warnings >= c.limit
	if flip {
		c.optimized = true
	}
	n := c.warnings
	c.mu.Unlock()

	if !flip {
		return
	}
	c.log.Warn("adaptive: switching to optimized mode", "warnings", n)
	if c.renderer != nil {
		c.renderer.SetOptimized(true)
	}
	if c.metrics != nil {
		c.metrics.SetOptimized(true)
	}
}

// HandleSample records the device class and adjusts the cache budget to
// the connection. An offline sample leaves the budget alone.
func (c *Controller) HandleSample(ctx context.Context, s telemetry.Sample) {
	c.mu.Lock()
	c.highPerf = s.IsHighPerformance()
	prev := c.connection
	c.connection = s.Connection
	c.mu.Unlock()

	if c.budget == nil || s.Connection == prev {
		return
	}
	var target int64
	switch s.Connection {
	case telemetry.ConnectionSlow:
		target = c.slowBytes
	case telemetry.ConnectionFast:
		target = c.fastBytes
	default:
		return
	}
	if c.budget.MaxBytes() == target {
		return
	}
	c.log.Info("adaptive: cache budget", "connection", s.Connection, "max_bytes", target)
	c.budget.SetMaxBytes(ctx, target)
}

// Optimized reports whether optimized mode has been triggered.
func (c *Controller) Optimized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.optimized
}

// HighPerformance reports the classification of the last sample.
func (c *Controller) HighPerformance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highPerf
}

// Connection returns the connection class of the last sample.
func (c *Controller) Connection() telemetry.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection
}

// Warnings returns the number of frame warnings seen.
func (c *Controller) Warnings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warnings
}
