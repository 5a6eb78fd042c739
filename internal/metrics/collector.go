package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func desc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", name), help, nil, nil)
}

// collector reads counters owned by other packages at scrape time. Engine
// counters restart from zero on every engine start, which Prometheus treats
// as a counter reset.
type collector struct {
	src Sources

	engineActive     *prometheus.Desc
	engineTargetHz   *prometheus.Desc
	engineMeasuredHz *prometheus.Desc
	engineFrames     *prometheus.Desc
	engineOverBudget *prometheus.Desc
	engineHits       *prometheus.Desc
	engineMisses     *prometheus.Desc
	enginePollErrors *prometheus.Desc
	engineAvgTick    *prometheus.Desc
	engineMaxTick    *prometheus.Desc

	hotkeyProcessed *prometheus.Desc
	hotkeyDropped   *prometheus.Desc
	hotkeyTriggered *prometheus.Desc
	hotkeyResyncs   *prometheus.Desc
	hotkeyQueue     *prometheus.Desc

	sinkErrors    *prometheus.Desc
	notifyDropped *prometheus.Desc
}

func newCollector(src Sources) *collector {
	return &collector{
		src: src,

		engineActive:     desc("engine_active", "1 while the mapping loop is running."),
		engineTargetHz:   desc("engine_target_hz", "Configured mapping loop rate."),
		engineMeasuredHz: desc("engine_measured_hz", "Frames per second since the loop started."),
		engineFrames:     desc("engine_frames_total", "Mapping frames executed since the loop started."),
		engineOverBudget: desc("engine_over_budget_total", "Frames that exceeded the warning budget."),
		engineHits:       desc("engine_lookup_hits_total", "Analog readings that matched a mapping."),
		engineMisses:     desc("engine_lookup_misses_total", "Analog readings with no mapping."),
		enginePollErrors: desc("engine_poll_errors_total", "Failed analog polls."),
		engineAvgTick:    desc("engine_tick_avg_seconds", "Mean frame duration."),
		engineMaxTick:    desc("engine_tick_max_seconds", "Longest frame duration."),

		hotkeyProcessed: desc("hotkey_events_processed_total", "Key events processed by the hotkey manager."),
		hotkeyDropped:   desc("hotkey_events_dropped_total", "Key events dropped on a full queue."),
		hotkeyTriggered: desc("hotkey_triggers_total", "Hotkeys fired."),
		hotkeyResyncs:   desc("hotkey_resyncs_total", "Key state resynchronisations after an overflow."),
		hotkeyQueue:     desc("hotkey_queue_length", "Events waiting in the hotkey queue."),

		sinkErrors:    desc("sink_send_errors_total", "Reports the virtual controller rejected."),
		notifyDropped: desc("notify_dropped_total", "Events dropped on full subscriber buffers."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	if c.src.Engine != nil {
		m := c.src.Engine()
		active := 0.0
		if m.Active {
			active = 1
		}
		gauge(c.engineActive, active)
		gauge(c.engineTargetHz, float64(m.TargetHz))
		gauge(c.engineMeasuredHz, m.MeasuredHz)
		counter(c.engineFrames, m.Frames)
		counter(c.engineOverBudget, m.OverBudget)
		counter(c.engineHits, m.Hits)
		counter(c.engineMisses, m.Misses)
		counter(c.enginePollErrors, m.PollErrors)
		gauge(c.engineAvgTick, m.AvgTick.Seconds())
		gauge(c.engineMaxTick, m.MaxTick.Seconds())
	}
	if c.src.Hotkeys != nil {
		s := c.src.Hotkeys()
		counter(c.hotkeyProcessed, s.Processed)
		counter(c.hotkeyDropped, s.Dropped)
		counter(c.hotkeyTriggered, s.Triggered)
		counter(c.hotkeyResyncs, s.Resyncs)
		gauge(c.hotkeyQueue, float64(s.QueueLength))
	}
	if c.src.SinkErrors != nil {
		counter(c.sinkErrors, c.src.SinkErrors())
	}
	if c.src.NotifyDropped != nil {
		counter(c.notifyDropped, c.src.NotifyDropped())
	}
}
