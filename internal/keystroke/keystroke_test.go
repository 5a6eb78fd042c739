package keystroke

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analogpad/internal/keys"
)

// collector records delivered events.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// =============================================================================
// Tests for Simulated
// =============================================================================

func TestSimulatedDeliversEvents(t *testing.T) {
	s := NewSimulated()
	var c collector
	require.NoError(t, s.Start(context.Background(), c.handle))
	defer s.Stop()

	s.Press(keys.VKW)
	s.Release(keys.VKW)

	events := c.all()
	require.Len(t, events, 2)
	assert.Equal(t, keys.VKW, events[0].Code)
	assert.True(t, events[0].Down)
	assert.False(t, events[1].Down)
	assert.False(t, events[0].Time.IsZero())
	assert.Equal(t, Stats{Events: 2}, s.Stats())
}

func TestSimulatedAlreadyRunning(t *testing.T) {
	s := NewSimulated()
	require.NoError(t, s.Start(context.Background(), func(Event) {}))
	assert.ErrorIs(t, s.Start(context.Background(), func(Event) {}), ErrAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Start(context.Background(), func(Event) {}))
	s.Stop()
}

func TestSimulatedStoppedDeliversNothing(t *testing.T) {
	s := NewSimulated()
	var c collector
	require.NoError(t, s.Start(context.Background(), c.handle))
	require.NoError(t, s.Stop())

	s.Press(keys.VKA)
	assert.Empty(t, c.all())

	down, err := s.KeyDown(keys.VKA)
	require.NoError(t, err)
	assert.True(t, down, "physical state is tracked while stopped")
}

func TestSimulatedStopsWithContext(t *testing.T) {
	s := NewSimulated()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, func(Event) {}))

	cancel()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, time.Millisecond)
}

func TestSimulatedKeyState(t *testing.T) {
	s := NewSimulated()
	var c collector
	require.NoError(t, s.Start(context.Background(), c.handle))
	defer s.Stop()

	s.Press(keys.VKLShift)
	s.SetKeyState(keys.VKLShift, false)

	down, err := s.KeyDown(keys.VKShift)
	require.NoError(t, err)
	assert.False(t, down)
	assert.Len(t, c.all(), 1, "SetKeyState delivers no event")

	var reader KeyStateReader = s
	s.SetKeyState(keys.VKEnter, true)
	down, err = reader.KeyDown(keys.VKEnter)
	require.NoError(t, err)
	assert.True(t, down)
}

// =============================================================================
// Modifier tracking
// =============================================================================

func TestEventModifiers(t *testing.T) {
	s := NewSimulated()
	var c collector
	require.NoError(t, s.Start(context.Background(), c.handle))
	defer s.Stop()

	s.Press(keys.VKLCtrl)
	s.Press(keys.VKLShift)
	s.Press(keys.VKRShift)
	s.Press(keys.VKF1)
	s.Release(keys.VKLShift)
	s.Press(keys.VKF2)
	s.Release(keys.VKRShift)
	s.Release(keys.VKLCtrl)
	s.Press(keys.VKW)

	events := c.all()
	require.Len(t, events, 9)
	assert.Equal(t, keys.ModCtrl, events[0].Modifiers)
	assert.Equal(t, keys.ModCtrl|keys.ModShift, events[3].Modifiers)
	assert.Equal(t, keys.ModCtrl|keys.ModShift, events[5].Modifiers, "right shift still held")
	assert.Equal(t, keys.ModCtrl, events[6].Modifiers)
	assert.Zero(t, events[8].Modifiers)
}

func TestModifierTrackerWin(t *testing.T) {
	var m modifierTracker
	assert.Equal(t, keys.ModWin, m.update(keys.VKRWin, true))
	assert.Equal(t, keys.ModWin|keys.ModAlt, m.update(keys.VKLAlt, true))
	assert.Equal(t, keys.ModAlt, m.update(keys.VKRWin, false))
	assert.Equal(t, keys.ModAlt, m.update(keys.VKW, true))

	m.reset()
	assert.Zero(t, m.current())
}

func TestDeliverIgnoresUnknownCode(t *testing.T) {
	var b base
	var c collector
	require.NoError(t, b.begin(c.handle))

	b.deliver(0, true, false)
	b.deliver(keys.VKD, true, true)

	assert.Len(t, c.all(), 1)
	assert.Equal(t, Stats{Events: 1, Injected: 1}, b.Stats())
	assert.True(t, c.all()[0].Injected)
}
