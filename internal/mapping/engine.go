// Package mapping runs the fixed-rate loop that turns analog key depth into
// virtual controller sticks and triggers.
//
// Every tick the engine polls the analog source, looks each key up in the
// active compiled sub-profile, evaluates its curve and folds the result into
// per-half-axis accumulators with max-aggregation. The merged controller
// state, including buttons written by the hotkey subsystem, is then sent to
// the sink.
//
// The active profile is held behind an atomic pointer so it can be replaced
// while the loop runs without any lock on the real-time path.
package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"analogpad/internal/analog"
	"analogpad/internal/gamepad"
	"analogpad/internal/profile"
)

var (
	ErrSourceNotReady = errors.New("analog source not ready")
	ErrSinkNotReady   = errors.New("virtual controller not ready")
)

// AnalogSource is polled once per tick. PollInto must not block.
type AnalogSource interface {
	Ready() bool
	PollInto(dst []analog.Reading) ([]analog.Reading, error)
}

// ControllerSink receives one report per tick.
type ControllerSink interface {
	Ready() bool
	Send(gamepad.Report) error
}

// Config controls loop timing.
type Config struct {
	// RateHz is the target tick rate.
	RateHz int
	// WarnBudget is the tick duration above which a tick counts as over
	// budget. Zero means one period.
	WarnBudget time.Duration
	// BufferCapacity sizes the reusable reading buffer.
	BufferCapacity int
}

// DefaultConfig returns a 120 Hz loop.
func DefaultConfig() Config {
	return Config{
		RateHz:         120,
		BufferCapacity: analog.MaxKeys,
	}
}

// Period returns the tick period for the configured rate.
func (c Config) Period() time.Duration {
	if c.RateHz <= 0 {
		return time.Second / 120
	}
	return time.Second / time.Duration(c.RateHz)
}

func (c Config) budget() time.Duration {
	if c.WarnBudget > 0 {
		return c.WarnBudget
	}
	return c.Period()
}

// logEvery is how many consecutive poll or send failures pass between two
// log lines.
const logEvery = 600

// Engine is the mapping loop. It is Stopped until Start succeeds and goes
// back to Stopped on Stop.
type Engine struct {
	source AnalogSource
	sink   ControllerSink
	state  *gamepad.SharedState
	logger *slog.Logger

	profile atomic.Pointer[profile.Compiled]

	// mu serializes Start, Stop and Reconfigure.
	mu      sync.Mutex
	cfg     Config
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	buf []analog.Reading

	startedAt  atomic.Int64
	stoppedAt  atomic.Int64
	frames     atomic.Uint64
	hits       atomic.Uint64
	misses     atomic.Uint64
	overBudget atomic.Uint64
	totalNanos atomic.Uint64
	maxNanos   atomic.Uint64
	pollErrors atomic.Uint64
	sendErrors atomic.Uint64

	pollStreak uint64
	sendStreak uint64
}

// New creates a stopped engine. Buttons are read from state; sticks and
// triggers are written to it.
func New(source AnalogSource, sink ControllerSink, state *gamepad.SharedState, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = analog.MaxKeys
	}
	return &Engine{
		source: source,
		sink:   sink,
		state:  state,
		cfg:    cfg,
		logger: logger,
		buf:    make([]analog.Reading, 0, cfg.BufferCapacity),
	}
}

// SetProfile atomically replaces the active compiled sub-profile. A nil
// profile leaves the loop running with neutral sticks and triggers, still
// transmitting buttons.
func (e *Engine) SetProfile(c *profile.Compiled) {
	e.profile.Store(c)
}

// Profile returns the active compiled sub-profile, or nil.
func (e *Engine) Profile() *profile.Compiled {
	return e.profile.Load()
}

// Config returns the current loop configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// IsActive reports whether the loop is running.
func (e *Engine) IsActive() bool {
	return e.running.Load()
}

// Start validates both collaborators and launches the loop. Starting a
// running engine stops it first. Counters are reset on every successful
// start.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked()
}

func (e *Engine) startLocked() error {
	if e.running.Load() {
		e.logger.Info("restarting mapping loop")
		e.stopLocked()
	}

	if e.source == nil || !e.source.Ready() {
		return ErrSourceNotReady
	}
	if e.sink == nil || !e.sink.Ready() {
		return ErrSinkNotReady
	}

	e.resetCounters()
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.running.Store(true)

	go e.run(e.cfg, e.stop, e.done)

	e.logger.Info("mapping loop started",
		"rate_hz", e.cfg.RateHz, "period", e.cfg.Period(), "budget", e.cfg.budget())
	return nil
}

// Stop signals the loop and waits for it to exit. Once Stop returns the
// sink receives no further reports. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if !e.running.Load() {
		return
	}
	close(e.stop)
	<-e.done
	e.stoppedAt.Store(time.Now().UnixNano())
	e.running.Store(false)
	e.logger.Info("mapping loop stopped", "frames", e.frames.Load())
}

// Reconfigure applies a new loop configuration, restarting the loop when it
// was running.
func (e *Engine) Reconfigure(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = analog.MaxKeys
	}
	wasRunning := e.running.Load()
	e.stopLocked()
	e.cfg = cfg
	if cap(e.buf) < cfg.BufferCapacity {
		e.buf = make([]analog.Reading, 0, cfg.BufferCapacity)
	}
	if !wasRunning {
		return nil
	}
	if err := e.startLocked(); err != nil {
		return fmt.Errorf("restart mapping loop: %w", err)
	}
	return nil
}

func (e *Engine) run(cfg Config, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	period := cfg.Period()
	budget := cfg.budget()
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}

		start := time.Now()
		e.tick()
		elapsed := time.Since(start)
		e.record(elapsed, budget)

		wait := period - elapsed
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
		select {
		case <-stop:
			return
		case <-timer.C:
		}
	}
}

// tick performs one poll, evaluate, send cycle.
func (e *Engine) tick() {
	readings, err := e.source.PollInto(e.buf[:0])
	if err != nil {
		e.pollErrors.Add(1)
		if e.pollStreak%logEvery == 0 {
			e.logger.Warn("analog poll failed", "error", err, "consecutive", e.pollStreak+1)
		}
		e.pollStreak++
		readings = e.buf[:0]
	} else {
		e.pollStreak = 0
	}
	e.buf = readings

	var acc [gamepad.RightTrigger + 1]float64
	if c := e.profile.Load(); c != nil {
		var hits, misses uint64
		for _, r := range readings {
			m, ok := c.Lookup(r.Code)
			if !ok {
				misses++
				continue
			}
			hits++
			if !m.Control.IsAnalog() {
				continue
			}
			if v := m.Curve.Apply(r.Value); v > acc[m.Control] {
				acc[m.Control] = v
			}
		}
		e.hits.Add(hits)
		e.misses.Add(misses)
	}

	e.state.SetSticks(
		acc[gamepad.LeftStickRight]-acc[gamepad.LeftStickLeft],
		acc[gamepad.LeftStickUp]-acc[gamepad.LeftStickDown],
		acc[gamepad.RightStickRight]-acc[gamepad.RightStickLeft],
		acc[gamepad.RightStickUp]-acc[gamepad.RightStickDown],
	)
	e.state.SetTriggers(acc[gamepad.LeftTrigger], acc[gamepad.RightTrigger])

	if err := e.sink.Send(e.state.Snapshot()); err != nil {
		e.sendErrors.Add(1)
		if e.sendStreak%logEvery == 0 {
			e.logger.Warn("controller send failed", "error", err, "consecutive", e.sendStreak+1)
		}
		e.sendStreak++
	} else {
		e.sendStreak = 0
	}
}

func (e *Engine) record(elapsed, budget time.Duration) {
	ns := uint64(elapsed.Nanoseconds())
	e.frames.Add(1)
	e.totalNanos.Add(ns)
	for {
		cur := e.maxNanos.Load()
		if ns <= cur || e.maxNanos.CompareAndSwap(cur, ns) {
			break
		}
	}
	if elapsed > budget {
		e.overBudget.Add(1)
	}
}

func (e *Engine) resetCounters() {
	e.startedAt.Store(time.Now().UnixNano())
	e.stoppedAt.Store(0)
	e.frames.Store(0)
	e.hits.Store(0)
	e.misses.Store(0)
	e.overBudget.Store(0)
	e.totalNanos.Store(0)
	e.maxNanos.Store(0)
	e.pollErrors.Store(0)
	e.sendErrors.Store(0)
	e.pollStreak = 0
	e.sendStreak = 0
}
