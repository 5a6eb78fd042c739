// Package gamepad defines the virtual controller model: the controls a key
// can be bound to, the per-frame report, and the lock-free state shared by
// the hotkey and mapping goroutines.
package gamepad

import (
	"fmt"
	"strings"
)

// Control is a target on the virtual controller.
type Control uint8

// Stick directions are half-axes: each carries a one-sided [0,1] magnitude
// that is later combined with its opposite into a signed axis.
const (
	LeftStickUp Control = iota
	LeftStickDown
	LeftStickLeft
	LeftStickRight
	RightStickUp
	RightStickDown
	RightStickLeft
	RightStickRight
	LeftTrigger
	RightTrigger
	ButtonA
	ButtonB
	ButtonX
	ButtonY
	LeftShoulder
	RightShoulder
	DPadUp
	DPadDown
	DPadLeft
	DPadRight

	numControls
)

// Button bits of the report, matching the XInput gamepad layout.
const (
	BitDPadUp        uint16 = 0x0001
	BitDPadDown      uint16 = 0x0002
	BitDPadLeft      uint16 = 0x0004
	BitDPadRight     uint16 = 0x0008
	BitStart         uint16 = 0x0010
	BitBack          uint16 = 0x0020
	BitLeftThumb     uint16 = 0x0040
	BitRightThumb    uint16 = 0x0080
	BitLeftShoulder  uint16 = 0x0100
	BitRightShoulder uint16 = 0x0200
	BitA             uint16 = 0x1000
	BitB             uint16 = 0x2000
	BitX             uint16 = 0x4000
	BitY             uint16 = 0x8000
)

var controlNames = [numControls]string{
	LeftStickUp:     "Left Stick Up",
	LeftStickDown:   "Left Stick Down",
	LeftStickLeft:   "Left Stick Left",
	LeftStickRight:  "Left Stick Right",
	RightStickUp:    "Right Stick Up",
	RightStickDown:  "Right Stick Down",
	RightStickLeft:  "Right Stick Left",
	RightStickRight: "Right Stick Right",
	LeftTrigger:     "Left Trigger",
	RightTrigger:    "Right Trigger",
	ButtonA:         "Button A",
	ButtonB:         "Button B",
	ButtonX:         "Button X",
	ButtonY:         "Button Y",
	LeftShoulder:    "Left Shoulder",
	RightShoulder:   "Right Shoulder",
	DPadUp:          "D-Pad Up",
	DPadDown:        "D-Pad Down",
	DPadLeft:        "D-Pad Left",
	DPadRight:       "D-Pad Right",
}

var buttonBits = [numControls]uint16{
	ButtonA:       BitA,
	ButtonB:       BitB,
	ButtonX:       BitX,
	ButtonY:       BitY,
	LeftShoulder:  BitLeftShoulder,
	RightShoulder: BitRightShoulder,
	DPadUp:        BitDPadUp,
	DPadDown:      BitDPadDown,
	DPadLeft:      BitDPadLeft,
	DPadRight:     BitDPadRight,
}

// Controls returns every control in declaration order.
func Controls() []Control {
	all := make([]Control, numControls)
	for i := range all {
		all[i] = Control(i)
	}
	return all
}

// Valid reports whether c is a known control.
func (c Control) Valid() bool {
	return c < numControls
}

// String returns the display name, e.g. "Left Stick Up".
func (c Control) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Control(%d)", uint8(c))
	}
	return controlNames[c]
}

// IsButton reports whether c is a digital button.
func (c Control) IsButton() bool {
	return c.Valid() && buttonBits[c] != 0
}

// IsAnalog reports whether c is a stick half-axis or a trigger.
func (c Control) IsAnalog() bool {
	return c.Valid() && buttonBits[c] == 0
}

// ButtonBit returns the report bit of a button control, or 0.
func (c Control) ButtonBit() uint16 {
	if !c.Valid() {
		return 0
	}
	return buttonBits[c]
}

// ParseControl accepts display names ("D-Pad Up") as well as compact
// identifiers ("dpad_up", "DPadUp", "left-stick-up"), case-insensitively.
func ParseControl(s string) (Control, error) {
	key := compact(s)
	for i, name := range controlNames {
		if compact(name) == key {
			return Control(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gamepad control: %q", s)
}

func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '-', '_':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (c Control) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid gamepad control %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Control) UnmarshalText(text []byte) error {
	parsed, err := ParseControl(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
