package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// Latency buckets in milliseconds.
	latencyBuckets = []float64{
		5, 10, 25,
		50, 100, 250, 300,
		500, 1000, 2500,
		5000, 10000, 30000,
	}
	dataBuckets = prometheus.ExponentialBuckets(64, 4, 10)
)

// Exporter mirrors registry samples into Prometheus collectors so a run can
// be scraped while it is in progress. Trends become histograms, counters and
// rates become counters, gauges stay gauges. Every series carries a scenario
// label.
type Exporter struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewExporter creates an exporter with its own registry under namespace
func NewExporter(namespace string) *Exporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Exporter{
		namespace:  namespace,
		registry:   reg,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observe records one registry sample
func (e *Exporter) Observe(s Sample) {
	scenario := s.Tags["scenario"]
	switch s.Type {
	case TypeTrend:
		e.histogram(s.Metric, s.Contains).WithLabelValues(scenario).Observe(s.Value)
	case TypeCounter:
		if s.Value > 0 {
			e.counter(s.Metric, "scenario").WithLabelValues(scenario).Add(s.Value)
		}
	case TypeRate:
		result := "false"
		if s.Value != 0 {
			result = "true"
		}
		e.counter(s.Metric, "scenario", "result").WithLabelValues(scenario, result).Inc()
	case TypeGauge:
		e.gauge(s.Metric).WithLabelValues(scenario).Set(s.Value)
	}
}

func (e *Exporter) histogram(name string, contains ValueType) *prometheus.HistogramVec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.histograms[name]; ok {
		return h
	}
	buckets := prometheus.DefBuckets
	switch contains {
	case Time:
		buckets = latencyBuckets
	case Data:
		buckets = dataBuckets
	default:
		if strings.HasSuffix(name, "_ms") {
			buckets = latencyBuckets
		} else if strings.Contains(name, "bytes") {
			buckets = dataBuckets
		}
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: e.namespace,
		Name:      name,
		Help:      "Distribution of " + name + " samples",
		Buckets:   buckets,
	}, []string{"scenario"})
	e.register(name, h)
	e.histograms[name] = h
	return h
}

func (e *Exporter) counter(name string, labels ...string) *prometheus.CounterVec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: e.namespace,
		Name:      name + "_total",
		Help:      "Total of " + name + " samples",
	}, labels)
	e.register(name, c)
	e.counters[name] = c
	return c
}

func (e *Exporter) gauge(name string) *prometheus.GaugeVec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok := e.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: e.namespace,
		Name:      name,
		Help:      "Last value of " + name,
	}, []string{"scenario"})
	e.register(name, g)
	e.gauges[name] = g
	return g
}

func (e *Exporter) register(name string, c prometheus.Collector) {
	if err := e.registry.Register(c); err != nil {
		logrus.WithError(err).WithField("metric", name).Warn("Failed to register prometheus collector")
	}
}

// Handler serves the exporter's registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("Serving prometheus metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
