package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stackview"

// Metrics exports telemetry as Prometheus collectors.
type Metrics struct {
	fps        prometheus.Gauge
	memory     prometheus.Gauge
	highPerf   prometheus.Gauge
	connection *prometheus.GaugeVec
	render     prometheus.Histogram
	imageLoad  prometheus.Histogram
	warnings   *prometheus.CounterVec
	cacheBytes prometheus.Gauge
	cacheItems prometheus.Gauge
	optimized  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fps",
			Help: "Frames per second over the last sampling window.",
		}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "memory_megabytes",
			Help: "Resident memory of the viewer process.",
		}),
		highPerf: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "high_performance",
			Help: "1 when the last sample qualified as high performance.",
		}),
		connection: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connection",
			Help: "1 for the current connection class.",
		}, []string{"class"}),
		render: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "render_seconds",
			Help:    "Duration of composed draws.",
			Buckets: []float64{.001, .002, .004, .008, .0167, .033, .066, .1},
		}),
		imageLoad: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "image_load_seconds",
			Help:    "Duration of image fetch and decode attempts.",
			Buckets: prometheus.ExponentialBuckets(.05, 2, 9),
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "warnings_total",
			Help: "Performance warnings by kind.",
		}, []string{"kind"}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_bytes",
			Help: "Bytes held by the persistent cache.",
		}),
		cacheItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_items",
			Help: "Entries held by the persistent cache.",
		}),
		optimized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "optimized_mode",
			Help: "1 once the renderer has switched to optimized mode.",
		}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		m.fps, m.memory, m.highPerf, m.connection, m.render,
		m.imageLoad, m.warnings, m.cacheBytes, m.cacheItems, m.optimized,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observeSample(s Sample) {
	m.fps.Set(s.FPS)
	m.memory.Set(s.MemoryMB)
	m.highPerf.Set(boolGauge(s.IsHighPerformance()))
	for _, c := range []Connection{ConnectionFast, ConnectionSlow, ConnectionOffline} {
		m.connection.WithLabelValues(c.String()).Set(boolGauge(c == s.Connection))
	}
}

func (m *Metrics) observeRender(d time.Duration) {
	m.render.Observe(d.Seconds())
}

func (m *Metrics) observeImageLoad(d time.Duration) {
	m.imageLoad.Observe(d.Seconds())
}

func (m *Metrics) observeWarning(w Warning) {
	m.warnings.WithLabelValues(w.Kind.String()).Inc()
}

// SetCache records the persistent cache size.
func (m *Metrics) SetCache(bytes int64, items int) {
	m.cacheBytes.Set(float64(bytes))
	m.cacheItems.Set(float64(items))
}

// SetOptimized records the renderer mode.
func (m *Metrics) SetOptimized(on bool) {
	m.optimized.Set(boolGauge(on))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
