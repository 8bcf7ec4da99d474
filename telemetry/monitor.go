package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the sampling period of Monitor.Run.
const DefaultInterval = 5 * time.Second

// Option configures a Monitor.
type Option func(*Monitor)

// WithFPS sets the frame rate sensor.
func WithFPS(s FPSSensor) Option { return func(m *Monitor) { m.fps = s } }

// WithMemory sets the memory sensor.
func WithMemory(s MemorySensor) Option { return func(m *Monitor) { m.mem = s } }

// WithPower sets the battery sensor.
func WithPower(s PowerSensor) Option { return func(m *Monitor) { m.power = s } }

// WithNetwork sets the connection sensor.
func WithNetwork(s NetworkSensor) Option { return func(m *Monitor) { m.net = s } }

// WithInterval sets the sampling period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithThresholds overrides the warning thresholds.
func WithThresholds(t Thresholds) Option { return func(m *Monitor) { m.th = t } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics exports samples and warnings to mt.
func WithMetrics(mt *Metrics) Option { return func(m *Monitor) { m.metrics = mt } }

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// Monitor samples sensors and raises warnings.
// It is safe for concurrent use.
type Monitor struct {
	fps      FPSSensor
	mem      MemorySensor
	power    PowerSensor
	net      NetworkSensor
	interval time.Duration
	th       Thresholds
	now      func() time.Time
	metrics  *Metrics
	log      *slog.Logger

	mu          sync.Mutex
	last        Sample
	onSample    []func(Sample)
	onWarning   []func(Warning)
	unavailable map[string]bool
}

// NewMonitor returns a Monitor. Sensors left unset report defaults.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		interval:    DefaultInterval,
		th:          DefaultThresholds(),
		now:         time.Now,
		log:         slog.New(slog.DiscardHandler),
		last:        DefaultSample(),
		unavailable: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnSample registers fn to receive every sample.
func (m *Monitor) OnSample(fn func(Sample)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSample = append(m.onSample, fn)
}

// OnWarning registers fn to receive every warning.
func (m *Monitor) OnWarning(fn func(Warning)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWarning = append(m.onWarning, fn)
}

// Last returns the most recent sample.
func (m *Monitor) Last() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Sample reads every sensor, publishes the result and returns it.
// Sensor failures are logged once and replaced by defaults.
func (m *Monitor) Sample(ctx context.Context) Sample {
	s := DefaultSample()
	s.At = m.now()
	fpsKnown := false

	if m.fps != nil {
		if v, err := m.fps.FPS(); m.sensorOK("fps", err) {
			s.FPS = v
			fpsKnown = true
		}
	}
	if m.mem != nil {
		if v, err := m.mem.MemoryMB(ctx); m.sensorOK("memory", err) {
			s.MemoryMB = v
		}
	}
	if m.power != nil {
		if p, err := m.power.Power(ctx); m.sensorOK("power", err) {
			pct, low := p.BatteryPct, p.LowPower
			s.BatteryPct, s.LowPower = &pct, &low
		}
	}
	if m.net != nil {
		if c, err := m.net.Connection(ctx); m.sensorOK("network", err) {
			s.Connection = c
		}
	}

	m.mu.Lock()
	s.RenderMs = m.last.RenderMs
	s.ImageLoadMs = m.last.ImageLoadMs
	m.last = s
	subs := m.onSample
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.observeSample(s)
	}
	m.log.Debug("telemetry: sample",
		"fps", s.FPS, "memory_mb", s.MemoryMB, "connection", s.Connection,
		"high_performance", s.IsHighPerformance())
	for _, fn := range subs {
		fn(s)
	}

	if fpsKnown && s.FPS < m.th.MinFPS {
		m.warn(Warning{
			Kind: LowFPS, At: s.At, Value: s.FPS,
			Message: fmt.Sprintf("Low FPS: %.1f", s.FPS),
		})
	}
	return s
}

// sensorOK reports whether err is nil, logging the first failure of each
// sensor and its recovery.
func (m *Monitor) sensorOK(name string, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if !m.unavailable[name] {
			m.unavailable[name] = true
			m.log.Info("telemetry: sensor unavailable, using default", "sensor", name, "err", err)
		}
		return false
	}
	if m.unavailable[name] {
		delete(m.unavailable, name)
		m.log.Info("telemetry: sensor recovered", "sensor", name)
	}
	return true
}

// RecordRender reports the duration of one composed draw.
func (m *Monitor) RecordRender(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	m.mu.Lock()
	m.last.RenderMs = ms
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.observeRender(d)
	}
	if d > m.th.MaxRender {
		m.warn(Warning{
			Kind: SlowRender, At: m.now(), Value: ms,
			Message: fmt.Sprintf("Slow render: %.1fms", ms),
		})
	}
}

// RecordImageLoad reports the duration of one image load attempt. Its
// signature matches loader.Observer.
func (m *Monitor) RecordImageLoad(url string, d time.Duration, err error) {
	ms := float64(d) / float64(time.Millisecond)
	m.mu.Lock()
	m.last.ImageLoadMs = ms
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.observeImageLoad(d)
	}
	if d > m.th.MaxImageLoad {
		m.warn(Warning{
			Kind: SlowImageLoad, At: m.now(), Value: ms,
			Message: fmt.Sprintf("Slow image load: %.0fms %s", ms, url),
		})
	}
}

func (m *Monitor) warn(w Warning) {
	m.log.Warn("telemetry: "+w.Message, "kind", w.Kind, "value", w.Value)
	if m.metrics != nil {
		m.metrics.observeWarning(w)
	}
	m.mu.Lock()
	subs := m.onWarning
	m.mu.Unlock()
	for _, fn := range subs {
		fn(w)
	}
}

// Run samples immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	m.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sample(ctx)
		}
	}
}
