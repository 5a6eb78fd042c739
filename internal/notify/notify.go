// Package notify fans typed status events out to subscribers over buffered
// channels. Publishing never blocks: a subscriber whose buffer is full
// misses the event and the drop is counted.
package notify

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is a status change.
type Event interface {
	Kind() string
	Summary() string
}

// SubProfileSwitched is published after a profile or sub-profile switch.
type SubProfileSwitched struct {
	ProfileID      uuid.UUID `json:"profile_id"`
	ProfileName    string    `json:"profile_name"`
	SubProfileID   uuid.UUID `json:"sub_profile_id"`
	SubProfileName string    `json:"sub_profile_name"`
}

func (SubProfileSwitched) Kind() string { return "sub_profile_switched" }

func (e SubProfileSwitched) Summary() string {
	return fmt.Sprintf("%s: %s", e.ProfileName, e.SubProfileName)
}

// KeyboardStatus is published when the analog keyboard connects or
// disconnects.
type KeyboardStatus struct {
	Connected bool `json:"connected"`
}

func (KeyboardStatus) Kind() string { return "keyboard_status" }

func (e KeyboardStatus) Summary() string {
	if e.Connected {
		return "Analog keyboard connected"
	}
	return "Analog keyboard disconnected"
}

// MappingStatus is published when the mapping loop starts or stops.
type MappingStatus struct {
	Active bool `json:"active"`
}

func (MappingStatus) Kind() string { return "mapping_status" }

func (e MappingStatus) Summary() string {
	if e.Active {
		return "Analog mapping active"
	}
	return "Analog mapping stopped"
}

// Envelope is an event with its publication metadata.
type Envelope struct {
	Seq   uint64    `json:"seq"`
	Time  time.Time `json:"time"`
	Kind  string    `json:"kind"`
	Event Event     `json:"event"`
}

// DefaultBuffer is the subscriber channel size used when none is given.
const DefaultBuffer = 32

type subscriber struct {
	ch chan Envelope
}

// Hub distributes events to subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	seq       atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe returns a channel receiving every event published from now on
// and a function that unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &subscriber{ch: make(chan Envelope, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	h.subs[s] = struct{}{}

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.ch)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	env := Envelope{
		Seq:   h.seq.Add(1),
		Time:  time.Now(),
		Kind:  ev.Kind(),
		Event: ev,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.published.Add(1)
	for s := range h.subs {
		select {
		case s.ch <- env:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Published returns how many events were published.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
}
