package performance

import (
	"fmt"
	"math"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

// stagedPacer is a vegeta.Pacer whose rate moves linearly from a start rate
// through a list of stages and stops after the last one.
type stagedPacer struct {
	start    float64 // hits per second
	segments []segment
	total    time.Duration
}

type segment struct {
	from, to float64 // hits per second at the segment edges
	dur      time.Duration
}

var _ vegeta.Pacer = (*stagedPacer)(nil)

func newStagedPacer(startRate float64, unit time.Duration, stages []Stage) *stagedPacer {
	perSec := func(r float64) float64 { return r / unit.Seconds() }

	p := &stagedPacer{start: perSec(startRate)}
	prev := p.start
	for _, st := range stages {
		to := perSec(st.Target)
		p.segments = append(p.segments, segment{from: prev, to: to, dur: st.Duration})
		p.total += st.Duration
		prev = to
	}
	return p
}

// newPacer builds the pacer for an arrival-rate scenario.
func newPacer(sc ScenarioConfig) (vegeta.Pacer, error) {
	unit := sc.timeUnit()
	switch sc.Executor {
	case ConstantArrivalRate:
		if sc.Rate <= 0 || sc.Duration <= 0 {
			return nil, fmt.Errorf("constant-arrival-rate needs a positive rate and duration")
		}
		if sc.Rate == math.Trunc(sc.Rate) {
			return vegeta.ConstantPacer{Freq: int(sc.Rate), Per: unit}, nil
		}
		return newStagedPacer(sc.Rate, unit, []Stage{{Target: sc.Rate, Duration: sc.Duration}}), nil
	case RampingArrivalRate:
		if len(sc.Stages) == 0 {
			return nil, fmt.Errorf("ramping-arrival-rate needs at least one stage")
		}
		if sc.StartRate < 0 {
			return nil, fmt.Errorf("ramping-arrival-rate start rate must not be negative")
		}
		for i, st := range sc.Stages {
			if st.Target < 0 || st.Duration < 0 {
				return nil, fmt.Errorf("stage %d: target and duration must not be negative", i)
			}
		}
		return newStagedPacer(sc.StartRate, unit, sc.Stages), nil
	default:
		return nil, fmt.Errorf("executor %q has no pacer", sc.Executor)
	}
}

// Pace returns how long to wait before the next hit.
func (p *stagedPacer) Pace(elapsed time.Duration, hits uint64) (time.Duration, bool) {
	if elapsed >= p.total {
		return 0, true
	}
	next := float64(hits) + 1
	if p.hitsAt(p.total) < next {
		return 0, true
	}
	if float64(hits) < p.hitsAt(elapsed) {
		return 0, false
	}

	// hitsAt is monotonic, so bisect for the instant the next hit is due.
	lo, hi := elapsed, p.total
	for i := 0; i < 64 && hi-lo > time.Microsecond; i++ {
		mid := lo + (hi-lo)/2
		if p.hitsAt(mid) >= next {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi - elapsed, false
}

// Rate returns the instantaneous rate in hits per second.
func (p *stagedPacer) Rate(elapsed time.Duration) float64 {
	if elapsed < 0 {
		return p.start
	}
	offset := time.Duration(0)
	for _, s := range p.segments {
		if elapsed < offset+s.dur {
			x := (elapsed - offset).Seconds()
			return s.from + (s.to-s.from)*x/s.dur.Seconds()
		}
		offset += s.dur
	}
	if len(p.segments) == 0 {
		return p.start
	}
	return p.segments[len(p.segments)-1].to
}

// hitsAt is the number of hits expected by t, the integral of Rate.
func (p *stagedPacer) hitsAt(t time.Duration) float64 {
	var hits float64
	offset := time.Duration(0)
	for _, s := range p.segments {
		if s.dur <= 0 {
			continue
		}
		if t >= offset+s.dur {
			hits += (s.from + s.to) / 2 * s.dur.Seconds()
			offset += s.dur
			continue
		}
		x := (t - offset).Seconds()
		if x > 0 {
			slope := (s.to - s.from) / s.dur.Seconds()
			hits += s.from*x + slope*x*x/2
		}
		break
	}
	return hits
}
