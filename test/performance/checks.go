package performance

import (
	"sync"

	"history-calendar-loadtest/internal/metrics"
)

const MetricChecks = "checks"

// CheckResult is the outcome of one named assertion.
type CheckResult struct {
	Name string
	OK   bool
}

// CheckCount is the tally of one check name over a run.
type CheckCount struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Checker records named checks into the checks rate and keeps per-name
// tallies for the summary.
type Checker struct {
	registry *metrics.Registry

	mu     sync.Mutex
	order  []string
	counts map[string]*CheckCount
}

// NewChecker creates a checker recording into registry
func NewChecker(registry *metrics.Registry) *Checker {
	return &Checker{registry: registry, counts: make(map[string]*CheckCount)}
}

// Check records every result and reports whether all of them passed.
func (c *Checker) Check(tags metrics.Tags, results ...CheckResult) bool {
	rate := c.registry.Rate(MetricChecks)
	all := true

	c.mu.Lock()
	for _, r := range results {
		cc, ok := c.counts[r.Name]
		if !ok {
			cc = &CheckCount{Name: r.Name}
			c.counts[r.Name] = cc
			c.order = append(c.order, r.Name)
		}
		if r.OK {
			cc.Passes++
		} else {
			cc.Fails++
			all = false
		}
	}
	c.mu.Unlock()

	for _, r := range results {
		rate.Add(r.OK, tags)
	}
	return all
}

// Counts returns the tallies in first-seen order.
func (c *Checker) Counts() []CheckCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CheckCount, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, *c.counts[name])
	}
	return out
}
