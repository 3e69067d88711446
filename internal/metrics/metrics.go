package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Type is the aggregation kind of a metric.
type Type string

const (
	TypeCounter Type = "counter"
	TypeGauge   Type = "gauge"
	TypeRate    Type = "rate"
	TypeTrend   Type = "trend"
)

// ValueType describes what a metric's samples measure.
type ValueType string

const (
	Default ValueType = "default"
	Time    ValueType = "time"
	Data    ValueType = "data"
)

// Tags annotate a sample. Only the "scenario" tag is exported to Prometheus.
type Tags map[string]string

// Metric is the read side shared by all metric kinds.
type Metric interface {
	Name() string
	Type() Type
	Contains() ValueType
	// Stat returns a single aggregate, e.g. "rate", "count" or "p(95)".
	Stat(agg string, elapsed time.Duration) (float64, error)
	values(elapsed time.Duration, trendStats []string) map[string]float64
}

type base struct {
	name     string
	contains ValueType
	reg      *Registry
}

func (b *base) Name() string        { return b.name }
func (b *base) Contains() ValueType { return b.contains }

func (b *base) observe(kind Type, value float64, tags Tags) {
	if o := b.reg.observer(); o != nil {
		o.Observe(Sample{Metric: b.name, Type: kind, Contains: b.contains, Value: value, Tags: tags})
	}
}

// Counter accumulates a sum.
type Counter struct {
	base
	mu  sync.Mutex
	sum float64
}

func (c *Counter) Type() Type { return TypeCounter }

func (c *Counter) Add(v float64, tags Tags) {
	c.mu.Lock()
	c.sum += v
	c.mu.Unlock()
	c.observe(TypeCounter, v, tags)
}

func (c *Counter) Count() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sum
}

func (c *Counter) Stat(agg string, elapsed time.Duration) (float64, error) {
	v := c.values(elapsed, nil)
	if s, ok := v[agg]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("counter %s has no %q aggregate", c.name, agg)
}

func (c *Counter) values(elapsed time.Duration, _ []string) map[string]float64 {
	count := c.Count()
	rate := 0.0
	if elapsed > 0 {
		rate = count / elapsed.Seconds()
	}
	return map[string]float64{"count": count, "rate": rate}
}

// Gauge keeps the last value and its extremes.
type Gauge struct {
	base
	mu       sync.Mutex
	value    float64
	min, max float64
	seen     bool
}

func (g *Gauge) Type() Type { return TypeGauge }

func (g *Gauge) Add(v float64, tags Tags) {
	g.mu.Lock()
	g.setLocked(v)
	g.mu.Unlock()
	g.observe(TypeGauge, v, tags)
}

// Max raises the gauge to v when v exceeds the current value.
func (g *Gauge) Max(v float64, tags Tags) {
	g.mu.Lock()
	if g.seen && v <= g.value {
		g.mu.Unlock()
		return
	}
	g.setLocked(v)
	g.mu.Unlock()
	g.observe(TypeGauge, v, tags)
}

func (g *Gauge) setLocked(v float64) {
	g.value = v
	if !g.seen || v < g.min {
		g.min = v
	}
	if !g.seen || v > g.max {
		g.max = v
	}
	g.seen = true
}

func (g *Gauge) Stat(agg string, elapsed time.Duration) (float64, error) {
	v := g.values(elapsed, nil)
	if s, ok := v[agg]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("gauge %s has no %q aggregate", g.name, agg)
}

func (g *Gauge) values(time.Duration, []string) map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]float64{"value": g.value, "min": g.min, "max": g.max}
}

// Rate tracks the share of non-zero samples.
type Rate struct {
	base
	mu           sync.Mutex
	trues, total int64
}

func (r *Rate) Type() Type { return TypeRate }

func (r *Rate) Add(ok bool, tags Tags) {
	r.mu.Lock()
	r.total++
	if ok {
		r.trues++
	}
	r.mu.Unlock()
	v := 0.0
	if ok {
		v = 1
	}
	r.observe(TypeRate, v, tags)
}

// Value returns the fraction of true samples, 0 when there are none.
func (r *Rate) Value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total == 0 {
		return 0
	}
	return float64(r.trues) / float64(r.total)
}

func (r *Rate) Stat(agg string, elapsed time.Duration) (float64, error) {
	v := r.values(elapsed, nil)
	if s, ok := v[agg]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("rate %s has no %q aggregate", r.name, agg)
}

func (r *Rate) values(time.Duration, []string) map[string]float64 {
	r.mu.Lock()
	trues, total := r.trues, r.total
	r.mu.Unlock()
	rate := 0.0
	if total > 0 {
		rate = float64(trues) / float64(total)
	}
	return map[string]float64{"rate": rate, "passes": float64(trues), "fails": float64(total - trues)}
}

// Trend keeps every sample so any percentile can be computed at the end.
type Trend struct {
	base
	mu      sync.Mutex
	samples []float64
	sum     float64
	sorted  bool
}

func (t *Trend) Type() Type { return TypeTrend }

func (t *Trend) Add(v float64, tags Tags) {
	t.mu.Lock()
	t.samples = append(t.samples, v)
	t.sum += v
	t.sorted = false
	t.mu.Unlock()
	t.observe(TypeTrend, v, tags)
}

// AddDuration records d in milliseconds.
func (t *Trend) AddDuration(d time.Duration, tags Tags) {
	t.Add(float64(d)/float64(time.Millisecond), tags)
}

func (t *Trend) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Percentile returns the p-th percentile (0..100) using linear interpolation
// between the closest ranks.
func (t *Trend) Percentile(p float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percentileLocked(p)
}

func (t *Trend) percentileLocked(p float64) float64 {
	n := len(t.samples)
	switch n {
	case 0:
		return 0
	case 1:
		return t.samples[0]
	}
	if !t.sorted {
		sort.Float64s(t.samples)
		t.sorted = true
	}
	if p <= 0 {
		return t.samples[0]
	}
	if p >= 100 {
		return t.samples[n-1]
	}
	i := p / 100 * float64(n-1)
	lower := int(math.Floor(i))
	if lower+1 >= n {
		return t.samples[n-1]
	}
	return t.samples[lower] + (t.samples[lower+1]-t.samples[lower])*(i-float64(lower))
}

func (t *Trend) Stat(agg string, _ time.Duration) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.statLocked(agg); ok {
		return v, nil
	}
	return 0, fmt.Errorf("trend %s has no %q aggregate", t.name, agg)
}

func (t *Trend) statLocked(agg string) (float64, bool) {
	n := len(t.samples)
	switch agg {
	case "count":
		return float64(n), true
	case "avg":
		if n == 0 {
			return 0, true
		}
		return t.sum / float64(n), true
	case "min":
		return t.percentileLocked(0), true
	case "max":
		return t.percentileLocked(100), true
	case "med":
		return t.percentileLocked(50), true
	}
	if p, ok := ParsePercentile(agg); ok {
		return t.percentileLocked(p), true
	}
	return 0, false
}

func (t *Trend) values(_ time.Duration, trendStats []string) map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(trendStats))
	for _, agg := range trendStats {
		if v, ok := t.statLocked(agg); ok {
			out[agg] = v
		}
	}
	return out
}

// ParsePercentile parses an aggregate of the form "p(95)" or "p(99.9)".
func ParsePercentile(agg string) (float64, bool) {
	if !strings.HasPrefix(agg, "p(") || !strings.HasSuffix(agg, ")") {
		return 0, false
	}
	p, err := strconv.ParseFloat(agg[2:len(agg)-1], 64)
	if err != nil || p < 0 || p > 100 {
		return 0, false
	}
	return p, true
}
