package observability

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by client_golang. Dotted metric
// names are converted to Prometheus naming ("tally.usage.recorded" becomes
// "tally_usage_recorded_total").
type PrometheusFactory struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	buckets    []float64
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusFactory registers metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		registerer: reg,
		buckets:    []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// WithBuckets overrides the histogram buckets.
func (f *PrometheusFactory) WithBuckets(buckets []float64) *PrometheusFactory {
	if len(buckets) > 0 {
		f.buckets = buckets
	}
	return f
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}

	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Count of " + name + ".",
	})
	c = register(f.registerer, c)
	f.counters[name] = c
	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}

	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + name + ".",
		Buckets: f.buckets,
	})
	h = register(f.registerer, h)
	f.histograms[name] = h
	return h
}

// register returns the collector already registered under the same name, so
// two trackers in one process share their metrics.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

var _ MetricFactory = (*PrometheusFactory)(nil)
