// Package keystroke delivers raw key transitions from a system-wide keyboard
// listener.
//
// A Source calls its handler synchronously from the capture context for every
// key press, release and auto-repeat. Handlers must not block: on Windows the
// handler runs inside the low-level hook callback, and a slow hook stalls all
// input on the desktop.
//
// Platform support:
// - Windows: WH_KEYBOARD_LL hook on a dedicated, locked OS thread
// - Linux: /dev/input/event* through evdev (requires the input group or root)
//
// Key codes are virtual-key codes as defined by package keys. Sided modifier
// codes are preserved.
package keystroke

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"analogpad/internal/keys"
)

// Event is one raw key transition.
type Event struct {
	Code      uint16
	Down      bool
	Modifiers keys.Modifiers
	Time      time.Time
	// Injected marks events synthesized by another process.
	Injected bool
}

// Handler receives events from the capture context.
type Handler func(Event)

// Source is a system-wide key event listener.
type Source interface {
	// Start installs the listener. Events are delivered to h until Stop
	// returns or ctx is done.
	Start(ctx context.Context, h Handler) error

	// Stop removes the listener and waits for the capture context to exit.
	Stop() error

	// Available reports whether the listener can run with the current
	// permissions, and why not.
	Available() (bool, string)
}

// KeyStateReader is implemented by sources that can report the live state
// of a key, independent of delivered events.
type KeyStateReader interface {
	KeyDown(code uint16) (bool, error)
}

// Options configures the platform source.
type Options struct {
	// Devices lists evdev nodes to read on Linux. Empty means every
	// keyboard found under /dev/input.
	Devices []string
	// Grab takes exclusive access to the evdev devices.
	Grab bool
}

var (
	ErrNotAvailable     = errors.New("key event capture not available on this platform")
	ErrPermissionDenied = errors.New("insufficient permissions for key event capture")
	ErrAlreadyRunning   = errors.New("key event source already running")
)

// New creates the Source for the current platform.
func New(opts Options, logger *slog.Logger) Source {
	if logger == nil {
		logger = slog.Default()
	}
	return newPlatformSource(opts, logger)
}

// Stats counts delivered events.
type Stats struct {
	Events   uint64 `json:"events"`
	Injected uint64 `json:"injected"`
}

// base holds the state every platform source shares.
type base struct {
	mu      sync.Mutex
	running bool
	handler Handler

	mods     modifierTracker
	events   atomic.Uint64
	injected atomic.Uint64
}

func (b *base) begin(h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrAlreadyRunning
	}
	b.running = true
	b.handler = h
	b.mods.reset()
	return nil
}

func (b *base) end() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// IsRunning reports whether the source is started.
func (b *base) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Stats returns delivery counters.
func (b *base) Stats() Stats {
	return Stats{Events: b.events.Load(), Injected: b.injected.Load()}
}

// deliver stamps modifiers and forwards the event. It runs in the capture
// context.
func (b *base) deliver(code uint16, down, injected bool) {
	if code == 0 {
		return
	}
	b.events.Add(1)
	if injected {
		b.injected.Add(1)
	}
	ev := Event{
		Code:      code,
		Down:      down,
		Modifiers: b.mods.update(code, down),
		Time:      time.Now(),
		Injected:  injected,
	}
	if h := b.handler; h != nil {
		h(ev)
	}
}

// modifierTracker follows held modifier keys per side, so releasing one
// shift key keeps Shift active while the other is held.
type modifierTracker struct {
	held atomic.Uint32
}

var sidedModifiers = [...]uint16{
	keys.VKLShift, keys.VKRShift,
	keys.VKLCtrl, keys.VKRCtrl,
	keys.VKLAlt, keys.VKRAlt,
	keys.VKLWin, keys.VKRWin,
	keys.VKShift, keys.VKCtrl, keys.VKAlt,
}

func (t *modifierTracker) reset() {
	t.held.Store(0)
}

// update records a transition and returns the resulting modifier set.
func (t *modifierTracker) update(code uint16, down bool) keys.Modifiers {
	for i, c := range sidedModifiers {
		if c != code {
			continue
		}
		bit := uint32(1) << i
		for {
			old := t.held.Load()
			next := old &^ bit
			if down {
				next = old | bit
			}
			if next == old || t.held.CompareAndSwap(old, next) {
				break
			}
		}
		break
	}
	return t.current()
}

func (t *modifierTracker) current() keys.Modifiers {
	held := t.held.Load()
	var m keys.Modifiers
	for i, c := range sidedModifiers {
		if held&(1<<i) != 0 {
			m |= keys.ModifierFor(c)
		}
	}
	return m
}

// Simulated is an in-memory source for tests and headless runs. It keeps the
// physical key state separately from delivered events, so a test can model
// a transition the consumer never saw.
type Simulated struct {
	base

	stateMu sync.Mutex
	down    map[uint16]bool
}

// NewSimulated creates a stopped simulated source.
func NewSimulated() *Simulated {
	return &Simulated{down: make(map[uint16]bool)}
}

func (s *Simulated) Start(ctx context.Context, h Handler) error {
	if err := s.begin(h); err != nil {
		return err
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			s.end()
		}()
	}
	return nil
}

func (s *Simulated) Stop() error {
	s.end()
	return nil
}

func (s *Simulated) Available() (bool, string) {
	return true, "simulated key source"
}

// Press delivers a key-down event and marks the key held.
func (s *Simulated) Press(code uint16) {
	s.setDown(code, true)
	s.emit(code, true)
}

// Release delivers a key-up event and marks the key released.
func (s *Simulated) Release(code uint16) {
	s.setDown(code, false)
	s.emit(code, false)
}

// SetKeyState changes the physical state without delivering an event.
func (s *Simulated) SetKeyState(code uint16, down bool) {
	s.setDown(code, down)
}

// KeyDown reports the physical state of a key.
func (s *Simulated) KeyDown(code uint16) (bool, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.down[keys.Canonical(code)], nil
}

func (s *Simulated) setDown(code uint16, down bool) {
	s.stateMu.Lock()
	s.down[keys.Canonical(code)] = down
	s.stateMu.Unlock()
}

func (s *Simulated) emit(code uint16, down bool) {
	if s.IsRunning() {
		s.deliver(code, down, false)
	}
}
