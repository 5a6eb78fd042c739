package gamepad

import (
	"sync/atomic"
)

// Report is one complete virtual controller frame.
type Report struct {
	Buttons      uint16 `json:"buttons"`
	LeftX        int16  `json:"left_x"`
	LeftY        int16  `json:"left_y"`
	RightX       int16  `json:"right_x"`
	RightY       int16  `json:"right_y"`
	LeftTrigger  uint8  `json:"left_trigger"`
	RightTrigger uint8  `json:"right_trigger"`
}

// Pressed reports whether the button bit of c is set.
func (r Report) Pressed(c Control) bool {
	bit := c.ButtonBit()
	return bit != 0 && r.Buttons&bit != 0
}

// SharedState is the controller state written by the hotkey goroutine
// (buttons) and the mapping goroutine (sticks and triggers). Every field is
// an independent atomic; there is no cross-field consistency, so a snapshot
// may combine buttons and axes from adjacent frames.
type SharedState struct {
	buttons      atomic.Uint32
	leftX        atomic.Int32
	leftY        atomic.Int32
	rightX       atomic.Int32
	rightY       atomic.Int32
	leftTrigger  atomic.Uint32
	rightTrigger atomic.Uint32
}

// NewSharedState returns a zeroed state.
func NewSharedState() *SharedState {
	return &SharedState{}
}

// SetButton sets or clears the bit of a button control. Non-button controls
// are ignored.
func (s *SharedState) SetButton(c Control, pressed bool) {
	bit := uint32(c.ButtonBit())
	if bit == 0 {
		return
	}
	for {
		old := s.buttons.Load()
		next := old &^ bit
		if pressed {
			next = old | bit
		}
		if next == old || s.buttons.CompareAndSwap(old, next) {
			return
		}
	}
}

// SetButtons overwrites the whole button mask.
func (s *SharedState) SetButtons(mask uint16) {
	s.buttons.Store(uint32(mask))
}

// Buttons returns the current button mask.
func (s *SharedState) Buttons() uint16 {
	return uint16(s.buttons.Load())
}

// SetSticks stores both sticks. Inputs are clamped to [-1,1] and scaled to
// the signed 16-bit range.
func (s *SharedState) SetSticks(lx, ly, rx, ry float64) {
	s.leftX.Store(int32(axisValue(lx)))
	s.leftY.Store(int32(axisValue(ly)))
	s.rightX.Store(int32(axisValue(rx)))
	s.rightY.Store(int32(axisValue(ry)))
}

// SetTriggers stores both triggers. Inputs are clamped to [0,1] and scaled
// to 0-255.
func (s *SharedState) SetTriggers(l, r float64) {
	s.leftTrigger.Store(uint32(triggerValue(l)))
	s.rightTrigger.Store(uint32(triggerValue(r)))
}

// Snapshot reads every field into a report.
func (s *SharedState) Snapshot() Report {
	return Report{
		Buttons:      uint16(s.buttons.Load()),
		LeftX:        int16(s.leftX.Load()),
		LeftY:        int16(s.leftY.Load()),
		RightX:       int16(s.rightX.Load()),
		RightY:       int16(s.rightY.Load()),
		LeftTrigger:  uint8(s.leftTrigger.Load()),
		RightTrigger: uint8(s.rightTrigger.Load()),
	}
}

// Reset clears buttons, sticks and triggers.
func (s *SharedState) Reset() {
	s.SetButtons(0)
	s.SetSticks(0, 0, 0, 0)
	s.SetTriggers(0, 0)
}

func axisValue(v float64) int16 {
	switch {
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	case v != v:
		v = 0
	}
	return int16(v * 32767)
}

func triggerValue(v float64) uint8 {
	switch {
	case v > 1:
		v = 1
	case v < 0:
		v = 0
	case v != v:
		v = 0
	}
	return uint8(v * 255)
}
