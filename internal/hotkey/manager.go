// Package hotkey is the digital side of the input pipeline.
//
// Raw key transitions from a keystroke.Source are pushed onto a bounded
// queue by the capture context and drained by one processing goroutine,
// which:
//
//   - drops auto-repeat by comparing against the last known key state,
//   - tracks the held modifier set,
//   - fires registered hotkeys (exact key and modifier match) as Triggers,
//   - drives controller buttons for keys bound to digital controls in the
//     active sub-profile.
//
// The capture side never blocks. When the queue is full the event is
// dropped and counted, and the processing goroutine resynchronizes held
// keys against the live keyboard state so a lost release cannot leave a
// controller button pressed.
package hotkey

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"analogpad/internal/gamepad"
	"analogpad/internal/keys"
	"analogpad/internal/keystroke"
	"analogpad/internal/profile"
)

var ErrRunning = errors.New("hotkey manager already running")

// Config sizes the event path.
type Config struct {
	// QueueCapacity bounds the capture to processing queue.
	QueueCapacity int
	// ResyncInterval is how often an idle processing goroutine checks for a
	// pending overflow resync.
	ResyncInterval time.Duration
	// TriggerBuffer sizes the Triggers channel.
	TriggerBuffer int
}

// DefaultConfig returns the standard queue sizes.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:  1000,
		ResyncInterval: 100 * time.Millisecond,
		TriggerBuffer:  16,
	}
}

// Trigger is a fired hotkey binding.
type Trigger struct {
	Target
	Hotkey keys.Hotkey
	Time   time.Time
}

// ButtonFunc receives the press state of a key bound to a button.
type ButtonFunc func(pressed bool)

// Stats counts processing activity.
type Stats struct {
	Received     uint64 `json:"received"`
	Processed    uint64 `json:"processed"`
	Dropped      uint64 `json:"dropped"`
	Repeats      uint64 `json:"repeats"`
	Triggered    uint64 `json:"triggered"`
	TriggerDrops uint64 `json:"trigger_drops"`
	Resyncs      uint64 `json:"resyncs"`
	QueueLength  int    `json:"queue_length"`
}

// Manager owns the queue, the processing goroutine, the hotkey registry and
// the button callbacks.
type Manager struct {
	source keystroke.Source
	state  *gamepad.SharedState
	cfg    Config
	logger *slog.Logger

	queue    chan keystroke.Event
	triggers chan Trigger
	reg      *registry
	buttons  atomic.Pointer[map[uint16]ButtonFunc]

	suspended  atomic.Int32
	modifiers  atomic.Uint32
	overflowed atomic.Bool

	// Owned by the processing goroutine.
	pressed map[uint16]bool

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	received     atomic.Uint64
	processed    atomic.Uint64
	dropped      atomic.Uint64
	repeats      atomic.Uint64
	triggered    atomic.Uint64
	triggerDrops atomic.Uint64
	resyncs      atomic.Uint64
}

// New creates a stopped manager. Buttons are written to state.
func New(source keystroke.Source, state *gamepad.SharedState, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = def.ResyncInterval
	}
	if cfg.TriggerBuffer <= 0 {
		cfg.TriggerBuffer = def.TriggerBuffer
	}
	m := &Manager{
		source:   source,
		state:    state,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan keystroke.Event, cfg.QueueCapacity),
		triggers: make(chan Trigger, cfg.TriggerBuffer),
		reg:      newRegistry(),
		pressed:  make(map[uint16]bool),
	}
	empty := map[uint16]ButtonFunc{}
	m.buttons.Store(&empty)
	return m
}

// Triggers delivers fired hotkeys. The channel is never closed.
func (m *Manager) Triggers() <-chan Trigger {
	return m.triggers
}

// Start starts the key source and the processing goroutine.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := m.source.Start(ctx, m.push); err != nil {
		cancel()
		return err
	}

	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.run(ctx, m.done)

	m.logger.Info("hotkey manager started", "queue_capacity", m.cfg.QueueCapacity)
	return nil
}

// Stop stops the key source and waits for the processing goroutine. Keys
// still held release their buttons.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	if err := m.source.Stop(); err != nil {
		m.logger.Warn("stop key source", "error", err)
	}
	m.cancel()
	<-m.done
	m.running = false
	m.logger.Info("hotkey manager stopped", "processed", m.processed.Load(), "dropped", m.dropped.Load())
}

// Running reports whether the manager is started.
func (m *Manager) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

// push runs in the capture context and never blocks.
func (m *Manager) push(ev keystroke.Event) {
	m.received.Add(1)
	select {
	case m.queue <- ev:
	default:
		m.dropped.Add(1)
		m.overflowed.Store(true)
	}
}

func (m *Manager) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.releaseAll()
			return
		case ev := <-m.queue:
			if m.overflowed.Swap(false) {
				m.resync()
			}
			m.process(ev)
		case <-ticker.C:
			if m.overflowed.Swap(false) {
				m.resync()
			}
		}
	}
}

// process handles one event on the processing goroutine.
func (m *Manager) process(ev keystroke.Event) {
	if ev.Code == 0 {
		return
	}
	if m.pressed[ev.Code] == ev.Down {
		m.repeats.Add(1)
		return
	}
	m.processed.Add(1)
	m.apply(ev.Code, ev.Down)

	if ev.Down {
		m.dispatch(ev.Code, ev.Time)
	}
}

// apply records a state change, updates modifiers and drives the button.
// A button bound to a sided key such as Shift stays held while either side
// is down.
func (m *Manager) apply(code uint16, down bool) {
	canon := keys.Canonical(code)
	wasHeld := m.held(canon)
	if down {
		m.pressed[code] = true
	} else {
		delete(m.pressed, code)
	}
	if keys.ModifierFor(code) != 0 {
		m.modifiers.Store(uint32(m.heldModifiers()))
	}
	if held := m.held(canon); held != wasHeld {
		if fn, ok := (*m.buttons.Load())[canon]; ok {
			fn(held)
		}
	}
}

// held reports whether any key with the canonical code canon is pressed.
func (m *Manager) held(canon uint16) bool {
	for code := range m.pressed {
		if keys.Canonical(code) == canon {
			return true
		}
	}
	return false
}

func (m *Manager) heldModifiers() keys.Modifiers {
	var mods keys.Modifiers
	for code := range m.pressed {
		mods |= keys.ModifierFor(code)
	}
	return mods
}

// dispatch fires the bindings of a pressed key with the held modifiers. A
// modifier key does not count as its own modifier.
func (m *Manager) dispatch(code uint16, at time.Time) {
	if m.Suspended() {
		return
	}
	mods := keys.Modifiers(m.modifiers.Load()) &^ keys.ModifierFor(code)
	hk := keys.Hotkey{Key: keys.Canonical(code), Modifiers: mods}
	targets := m.reg.lookup(hk)
	if len(targets) == 0 {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	for _, t := range targets {
		select {
		case m.triggers <- Trigger{Target: t, Hotkey: hk, Time: at}:
			m.triggered.Add(1)
		default:
			m.triggerDrops.Add(1)
			m.logger.Warn("hotkey trigger dropped", "hotkey", hk.String(), "action", t.Action.String())
		}
	}
}

// resync releases keys the consumer still believes pressed after events
// were lost. Sources that can report live key state are asked per key;
// otherwise every key driving a button is released.
func (m *Manager) resync() {
	m.resyncs.Add(1)
	reader, canRead := m.source.(keystroke.KeyStateReader)
	buttons := *m.buttons.Load()

	released := 0
	for code := range m.pressed {
		if canRead {
			down, err := reader.KeyDown(code)
			if err == nil && down {
				continue
			}
		} else if _, ok := buttons[keys.Canonical(code)]; !ok {
			continue
		}
		m.apply(code, false)
		released++
	}
	m.logger.Warn("key queue overflowed, resynchronized held keys",
		"dropped", m.dropped.Load(), "released", released, "live_state", canRead)
}

func (m *Manager) releaseAll() {
	for code := range m.pressed {
		m.apply(code, false)
	}
}

// SetButtons rebuilds the button callbacks from the compiled sub-profile:
// every key bound to a digital control sets that control's bit. A nil
// profile removes all callbacks.
func (m *Manager) SetButtons(c *profile.Compiled) {
	table := make(map[uint16]ButtonFunc)
	for _, b := range c.Buttons() {
		control := b.Control
		table[b.Code] = func(pressed bool) {
			m.state.SetButton(control, pressed)
		}
	}
	m.buttons.Store(&table)
}

// ButtonKeys returns the key codes that currently drive buttons.
func (m *Manager) ButtonKeys() []uint16 {
	table := *m.buttons.Load()
	out := make([]uint16, 0, len(table))
	for code := range table {
		out = append(out, code)
	}
	return out
}

// Modifiers returns the modifier set seen by the processing goroutine.
func (m *Manager) Modifiers() keys.Modifiers {
	return keys.Modifiers(m.modifiers.Load())
}

// Register binds a hotkey to a target. It reports false for an empty
// hotkey or a duplicate binding.
func (m *Manager) Register(hk keys.Hotkey, t Target) bool {
	return m.reg.register(hk, t)
}

// RegisterAll registers every target of every binding and returns the
// number of new registrations.
func (m *Manager) RegisterAll(bindings []Binding) int {
	n := 0
	for _, b := range bindings {
		for _, t := range b.Targets {
			if m.reg.register(b.Hotkey, t) {
				n++
			}
		}
	}
	return n
}

// Unregister removes every target bound to hk and returns how many there
// were.
func (m *Manager) Unregister(hk keys.Hotkey) int {
	return m.reg.unregister(hk)
}

// RemoveForProfile removes every target of a profile.
func (m *Manager) RemoveForProfile(id uuid.UUID) int {
	return m.reg.removeForProfile(id)
}

// Clear removes all bindings.
func (m *Manager) Clear() {
	m.reg.clear()
}

// Bindings lists the registry ordered by key.
func (m *Manager) Bindings() []Binding {
	return m.reg.list()
}

// Suspend disables hotkeys until a matching Resume. Calls nest. Buttons
// keep working while suspended.
func (m *Manager) Suspend() {
	m.suspended.Add(1)
}

// Resume undoes one Suspend. Extra calls are ignored.
func (m *Manager) Resume() {
	for {
		n := m.suspended.Load()
		if n <= 0 || m.suspended.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Suspended reports whether hotkeys are disabled.
func (m *Manager) Suspended() bool {
	return m.suspended.Load() > 0
}

// Stats returns processing counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Received:     m.received.Load(),
		Processed:    m.processed.Load(),
		Dropped:      m.dropped.Load(),
		Repeats:      m.repeats.Load(),
		Triggered:    m.triggered.Load(),
		TriggerDrops: m.triggerDrops.Load(),
		Resyncs:      m.resyncs.Load(),
		QueueLength:  len(m.queue),
	}
}
