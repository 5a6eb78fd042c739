package analog

import (
	"slices"
	"sync"
	"sync/atomic"

	"analogpad/internal/keys"
)

// Simulated is an in-memory analog source. Depths are set by the caller and
// reported on every poll until released.
type Simulated struct {
	mu      sync.Mutex
	pressed map[uint16]float64
	err     error

	ready atomic.Bool
	polls atomic.Uint64
}

// NewSimulated returns a ready source with no keys pressed.
func NewSimulated() *Simulated {
	s := &Simulated{pressed: make(map[uint16]float64)}
	s.ready.Store(true)
	return s
}

// Press sets the depth of a key.
func (s *Simulated) Press(code uint16, value float64) {
	s.mu.Lock()
	s.pressed[keys.Canonical(code)] = value
	s.mu.Unlock()
}

// Release removes a key.
func (s *Simulated) Release(code uint16) {
	s.mu.Lock()
	delete(s.pressed, keys.Canonical(code))
	s.mu.Unlock()
}

// Clear releases every key.
func (s *Simulated) Clear() {
	s.mu.Lock()
	clear(s.pressed)
	s.mu.Unlock()
}

// SetReady controls what Ready reports.
func (s *Simulated) SetReady(ready bool) {
	s.ready.Store(ready)
}

// FailWith makes subsequent polls return err; nil restores normal polling.
func (s *Simulated) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Polls returns how many times PollInto was called.
func (s *Simulated) Polls() uint64 {
	return s.polls.Load()
}

func (s *Simulated) Ready() bool {
	return s.ready.Load()
}

// PollInto reports pressed keys in ascending code order.
func (s *Simulated) PollInto(dst []Reading) ([]Reading, error) {
	s.polls.Add(1)
	dst = dst[:0]

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return dst, s.err
	}
	for code, v := range s.pressed {
		dst = append(dst, Reading{Code: code, Value: v})
	}
	slices.SortFunc(dst, func(a, b Reading) int { return int(a.Code) - int(b.Code) })
	return dst, nil
}

func (s *Simulated) Close() error {
	return nil
}
