package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelA()
	defer cancelB()
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(KeyboardStatus{Connected: true})
	h.Publish(MappingStatus{Active: true})

	for _, ch := range []<-chan Envelope{a, b} {
		first := <-ch
		second := <-ch
		assert.Equal(t, "keyboard_status", first.Kind)
		assert.Equal(t, KeyboardStatus{Connected: true}, first.Event)
		assert.Equal(t, "mapping_status", second.Kind)
		assert.Less(t, first.Seq, second.Seq)
	}
	assert.Equal(t, uint64(2), h.Published())
}

func TestHubPublishNeverBlocks(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(MappingStatus{Active: i%2 == 0})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, uint64(9), h.Dropped())
	assert.Equal(t, MappingStatus{Active: true}, (<-ch).Event)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(0)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers())
	h.Publish(KeyboardStatus{})
	assert.Zero(t, h.Dropped())
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(2)
	h.Close()
	h.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := h.Subscribe(2)
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed hub yields a closed channel")
	h.Publish(KeyboardStatus{})
	assert.Zero(t, h.Published())
}

func TestSummaries(t *testing.T) {
	assert.Equal(t, "Racing: Drive", SubProfileSwitched{ProfileName: "Racing", SubProfileName: "Drive"}.Summary())
	assert.Equal(t, "Analog keyboard disconnected", KeyboardStatus{}.Summary())
	assert.Equal(t, "Analog mapping active", MappingStatus{Active: true}.Summary())
}

// fakeBus records Notify calls.
type fakeBus struct {
	calls [][]interface{}
	err   error
}

func (f *fakeBus) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, append([]interface{}{method}, args...))
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	return &dbus.Call{Body: []interface{}{uint32(40 + len(f.calls))}}
}

func TestDesktopReplacesPreviousNotification(t *testing.T) {
	bus := &fakeBus{}
	d := &Desktop{appName: "analogpad", obj: bus}

	require.NoError(t, d.Notify(SubProfileSwitched{ProfileName: "Default Game", SubProfileName: "Movement"}))
	require.NoError(t, d.Notify(KeyboardStatus{Connected: false}))

	require.Len(t, bus.calls, 2)
	first, second := bus.calls[0], bus.calls[1]
	assert.Equal(t, "org.freedesktop.Notifications.Notify", first[0])
	assert.Equal(t, "analogpad", first[1])
	assert.Equal(t, uint32(0), first[2])
	assert.Equal(t, "Default Game: Movement", first[5])
	assert.Equal(t, uint32(41), second[2], "replaces the id returned by the first call")
	assert.Equal(t, uint32(42), d.lastID)
}

func TestDesktopNotifyError(t *testing.T) {
	bus := &fakeBus{err: errors.New("no service")}
	d := &Desktop{appName: "analogpad", obj: bus}

	err := d.Notify(MappingStatus{})
	assert.ErrorContains(t, err, "notify mapping_status")
	assert.Zero(t, d.lastID)
	assert.NoError(t, d.Close())
}

func TestDesktopRun(t *testing.T) {
	bus := &fakeBus{}
	d := &Desktop{appName: "analogpad", obj: bus}

	h := NewHub()
	ch, _ := h.Subscribe(4)
	h.Publish(MappingStatus{Active: true})
	h.Publish(MappingStatus{Active: false})
	h.Close()

	d.Run(context.Background(), ch)
	assert.Len(t, bus.calls, 2)
}
