package health

import (
	"context"

	"analogpad/internal/hotkey"
	"analogpad/internal/mapping"
)

// AnalogSource is the status surface of an analog keyboard backend.
type AnalogSource interface {
	Ready() bool
}

// connectedReporter is implemented by backends that track device presence.
type connectedReporter interface {
	Connected() bool
}

// AnalogCheck reports the analog source. A missing or uninitialised SDK
// degrades the daemon: hotkeys and profiles keep working without it.
func AnalogCheck(src AnalogSource) Check {
	return func(ctx context.Context) CheckResult {
		if src == nil {
			return CheckResult{Status: StatusDegraded, Message: "analog SDK unavailable"}
		}
		if !src.Ready() {
			return CheckResult{Status: StatusDegraded, Message: "analog SDK not initialised"}
		}
		if c, ok := src.(connectedReporter); ok && !c.Connected() {
			return CheckResult{Status: StatusDegraded, Message: "no analog keyboard connected"}
		}
		return CheckResult{Status: StatusHealthy, Message: "analog keyboard ready"}
	}
}

// Sink is the status surface of a virtual controller.
type Sink interface {
	Ready() bool
	Errors() uint64
	Backend() string
}

// SinkCheck reports the virtual controller.
func SinkCheck(sink Sink) Check {
	return func(ctx context.Context) CheckResult {
		if sink == nil {
			return CheckResult{Status: StatusUnhealthy, Message: "no virtual controller"}
		}
		details := map[string]interface{}{
			"backend":     sink.Backend(),
			"send_errors": sink.Errors(),
		}
		if !sink.Ready() {
			return CheckResult{Status: StatusUnhealthy, Message: "virtual controller not ready", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "virtual controller ready", Details: details}
	}
}

// Engine is the status surface of the mapping loop.
type Engine interface {
	IsActive() bool
	Metrics() mapping.Metrics
}

// EngineCheck reports the mapping loop. A stopped loop is degraded; so is a
// loop that spends more than a tenth of its frames over budget.
func EngineCheck(e Engine) Check {
	return func(ctx context.Context) CheckResult {
		m := e.Metrics()
		details := map[string]interface{}{
			"target_hz":   m.TargetHz,
			"measured_hz": m.MeasuredHz,
			"frames":      m.Frames,
			"over_budget": m.OverBudget,
		}
		switch {
		case !e.IsActive():
			return CheckResult{Status: StatusDegraded, Message: "mapping stopped", Details: details}
		case m.Frames > 0 && m.OverBudget*10 > m.Frames:
			return CheckResult{Status: StatusDegraded, Message: "mapping frames over budget", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "mapping active", Details: details}
	}
}

// Hotkeys is the status surface of the hotkey manager.
type Hotkeys interface {
	Running() bool
	Stats() hotkey.Stats
}

// HotkeyCheck reports the keystroke pipeline.
func HotkeyCheck(h Hotkeys) Check {
	return func(ctx context.Context) CheckResult {
		s := h.Stats()
		details := map[string]interface{}{
			"processed": s.Processed,
			"dropped":   s.Dropped,
			"triggered": s.Triggered,
		}
		if !h.Running() {
			return CheckResult{Status: StatusUnhealthy, Message: "keystroke capture stopped", Details: details}
		}
		if s.Dropped > 0 {
			return CheckResult{Status: StatusDegraded, Message: "keystroke queue overflowed", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "keystroke capture running", Details: details}
	}
}
