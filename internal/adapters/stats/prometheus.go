package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

// PromClient exposes pipeline counters and timings through a Prometheus
// registry, for deployments scraping the sync host.
type PromClient struct {
	mu        sync.Mutex
	registry  *prometheus.Registry
	namespace string
	counters  map[string]prometheus.Counter
	timings   map[string]prometheus.Histogram
}

func NewProm(namespace string) *PromClient {
	return &PromClient{
		registry:  prometheus.NewRegistry(),
		namespace: namespace,
		counters:  map[string]prometheus.Counter{},
		timings:   map[string]prometheus.Histogram{},
	}
}

// Registry exposes the underlying registry so a caller can mount promhttp.
func (p *PromClient) Registry() *prometheus.Registry { return p.registry }

func (p *PromClient) Count(name string, value int64) {
	p.mu.Lock()
	c, ok := p.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      sanitize(name) + "_total",
		})
		p.registry.MustRegister(c)
		p.counters[name] = c
	}
	p.mu.Unlock()
	c.Add(float64(value))
}

func (p *PromClient) Timing(name string, d time.Duration) {
	p.mu.Lock()
	h, ok := p.timings[name]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      sanitize(name) + "_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		})
		p.registry.MustRegister(h)
		p.timings[name] = h
	}
	p.mu.Unlock()
	h.Observe(d.Seconds())
}

func (p *PromClient) Close() error { return nil }

func sanitize(name string) string {
	out := []rune(name)
	for i, r := range out {
		if r == '.' || r == '-' {
			out[i] = '_'
		}
	}
	return string(out)
}

var _ ports.StatsClient = (*PromClient)(nil)
