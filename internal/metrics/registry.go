package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTrendStats are the trend aggregates included in a snapshot.
var DefaultTrendStats = []string{"avg", "min", "med", "max", "p(90)", "p(95)"}

// Sample is a single value added to a metric.
type Sample struct {
	Metric   string
	Type     Type
	Contains ValueType
	Value    float64
	Tags     Tags
}

// Observer receives every sample as it is added.
type Observer interface {
	Observe(s Sample)
}

// Registry owns the metrics of one run. Metrics are created on first use and
// returned as-is on later lookups with the same name and kind.
type Registry struct {
	mu         sync.RWMutex
	metrics    map[string]Metric
	obs        Observer
	trendStats []string
}

func NewRegistry() *Registry {
	return &Registry{
		metrics:    make(map[string]Metric),
		trendStats: DefaultTrendStats,
	}
}

// SetObserver mirrors all subsequent samples to o.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	r.obs = o
	r.mu.Unlock()
}

// SetTrendStats overrides the trend aggregates reported in snapshots.
func (r *Registry) SetTrendStats(stats []string) {
	if len(stats) == 0 {
		return
	}
	r.mu.Lock()
	r.trendStats = append([]string(nil), stats...)
	r.mu.Unlock()
}

func (r *Registry) observer() Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.obs
}

// Counter panics when name is already registered with another kind.
func (r *Registry) Counter(name string, contains ValueType) *Counter {
	return lookup(r, name, func() *Counter {
		return &Counter{base: base{name: name, contains: contains, reg: r}}
	})
}

func (r *Registry) Gauge(name string, contains ValueType) *Gauge {
	return lookup(r, name, func() *Gauge {
		return &Gauge{base: base{name: name, contains: contains, reg: r}}
	})
}

func (r *Registry) Rate(name string) *Rate {
	return lookup(r, name, func() *Rate {
		return &Rate{base: base{name: name, contains: Default, reg: r}}
	})
}

func (r *Registry) Trend(name string, contains ValueType) *Trend {
	return lookup(r, name, func() *Trend {
		return &Trend{base: base{name: name, contains: contains, reg: r}}
	})
}

func lookup[M Metric](r *Registry, name string, create func() M) M {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[name]; ok {
		m, ok := existing.(M)
		if !ok {
			panic(fmt.Sprintf("metric %q already registered as %s", name, existing.Type()))
		}
		return m
	}
	m := create()
	r.metrics[name] = m
	return m
}

// Get returns the metric registered under name.
func (r *Registry) Get(name string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

// Names returns the registered metric names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Snapshot aggregates every metric. elapsed is the run duration used for
// per-second rates.
func (r *Registry) Snapshot(elapsed time.Duration) Snapshot {
	r.mu.RLock()
	stats := r.trendStats
	all := make(map[string]Metric, len(r.metrics))
	for name, m := range r.metrics {
		all[name] = m
	}
	r.mu.RUnlock()

	snap := Snapshot{Metrics: make(map[string]MetricSummary, len(all))}
	for name, m := range all {
		snap.Metrics[name] = MetricSummary{
			Type:     m.Type(),
			Contains: m.Contains(),
			Values:   m.values(elapsed, stats),
		}
	}
	return snap
}

// ThresholdResult is the outcome of one threshold expression.
type ThresholdResult struct {
	OK bool `json:"ok"`
}

type MetricSummary struct {
	Type       Type                       `json:"type"`
	Contains   ValueType                  `json:"contains"`
	Values     map[string]float64         `json:"values"`
	Thresholds map[string]ThresholdResult `json:"thresholds,omitempty"`
}

// Snapshot is the aggregated state of a registry at one point in time.
type Snapshot struct {
	Metrics map[string]MetricSummary `json:"metrics"`
}

// Value looks up one aggregate. ok is false when the metric or the aggregate
// is missing.
func (s Snapshot) Value(metric, stat string) (float64, bool) {
	m, ok := s.Metrics[metric]
	if !ok || m.Values == nil {
		return 0, false
	}
	v, ok := m.Values[stat]
	return v, ok
}

// ValueOr returns the aggregate or def when it is missing.
func (s Snapshot) ValueOr(metric, stat string, def float64) float64 {
	if v, ok := s.Value(metric, stat); ok {
		return v
	}
	return def
}
