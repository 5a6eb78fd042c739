package mapping

import "time"

// Metrics is a point-in-time view of the loop counters since the last
// successful Start. After Stop, Uptime and MeasuredHz describe the last run.
type Metrics struct {
	Active     bool          `json:"active"`
	TargetHz   int           `json:"target_hz"`
	MeasuredHz float64       `json:"measured_hz"`
	Frames     uint64        `json:"frames"`
	OverBudget uint64        `json:"over_budget"`
	Hits       uint64        `json:"hits"`
	Misses     uint64        `json:"misses"`
	PollErrors uint64        `json:"poll_errors"`
	SendErrors uint64        `json:"send_errors"`
	AvgTick    time.Duration `json:"avg_tick_ns"`
	MaxTick    time.Duration `json:"max_tick_ns"`
	Uptime     time.Duration `json:"uptime_ns"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Metrics returns the current counters.
func (e *Engine) Metrics() Metrics {
	m := Metrics{
		Active:     e.running.Load(),
		TargetHz:   e.Config().RateHz,
		Frames:     e.frames.Load(),
		OverBudget: e.overBudget.Load(),
		Hits:       e.hits.Load(),
		Misses:     e.misses.Load(),
		PollErrors: e.pollErrors.Load(),
		SendErrors: e.sendErrors.Load(),
		MaxTick:    time.Duration(e.maxNanos.Load()),
	}
	if m.Frames > 0 {
		m.AvgTick = time.Duration(e.totalNanos.Load() / m.Frames)
	}
	if started := e.startedAt.Load(); started != 0 {
		end := time.Now()
		if stopped := e.stoppedAt.Load(); stopped != 0 {
			end = time.Unix(0, stopped)
		}
		m.Uptime = end.Sub(time.Unix(0, started))
		if secs := m.Uptime.Seconds(); secs > 0 {
			m.MeasuredHz = float64(m.Frames) / secs
		}
	}
	return m
}
