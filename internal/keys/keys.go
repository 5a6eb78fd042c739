// Package keys holds the physical key table shared by every input path.
//
// Keys are identified by Windows virtual-key codes. The analog SDK reports in
// this code space when put in virtual-key mode, the Windows hook delivers it
// natively and the Linux evdev reader translates into it, so a single table
// serves profile compilation, analog lookups and hotkey matching.
package keys

import (
	"fmt"
	"strings"
)

// Virtual-key codes used by the default profile and by modifier tracking.
const (
	VKLeftMouse   uint16 = 0x01
	VKRightMouse  uint16 = 0x02
	VKMiddleMouse uint16 = 0x04
	VKBackspace   uint16 = 0x08
	VKTab         uint16 = 0x09
	VKEnter       uint16 = 0x0D
	VKShift       uint16 = 0x10
	VKCtrl        uint16 = 0x11
	VKAlt         uint16 = 0x12
	VKCapsLock    uint16 = 0x14
	VKEsc         uint16 = 0x1B
	VKSpace       uint16 = 0x20
	VKPageUp      uint16 = 0x21
	VKPageDown    uint16 = 0x22
	VKEnd         uint16 = 0x23
	VKHome        uint16 = 0x24
	VKLeft        uint16 = 0x25
	VKUp          uint16 = 0x26
	VKRight       uint16 = 0x27
	VKDown        uint16 = 0x28
	VKInsert      uint16 = 0x2D
	VKDelete      uint16 = 0x2E
	VKLWin        uint16 = 0x5B
	VKRWin        uint16 = 0x5C
	VKNumpad0     uint16 = 0x60
	VKF1          uint16 = 0x70
	VKLShift      uint16 = 0xA0
	VKRShift      uint16 = 0xA1
	VKLCtrl       uint16 = 0xA2
	VKRCtrl       uint16 = 0xA3
	VKLAlt        uint16 = 0xA4
	VKRAlt        uint16 = 0xA5

	VKA uint16 = 0x41
	VKD uint16 = 0x44
	VKS uint16 = 0x53
	VKW uint16 = 0x57

	VKF2 = VKF1 + 1
)

// Key is one entry of the physical key table.
type Key struct {
	Code uint16 `json:"code"`
	Name string `json:"name"`
}

var table []Key

var (
	byCode = make(map[uint16]string)
	byName = make(map[string]uint16)
)

func init() {
	for c := 'A'; c <= 'Z'; c++ {
		add(uint16(c), string(c))
	}
	for c := '0'; c <= '9'; c++ {
		add(uint16(c), string(c))
	}
	for i := uint16(0); i < 12; i++ {
		add(VKF1+i, fmt.Sprintf("F%d", i+1))
	}

	add(VKSpace, "Space")
	add(VKEnter, "Enter", "Return")
	add(VKEsc, "Esc", "Escape")
	add(VKTab, "Tab")
	add(VKBackspace, "Backspace")
	add(VKDelete, "Delete", "Del")
	add(VKInsert, "Insert", "Ins")
	add(VKHome, "Home")
	add(VKEnd, "End")
	add(VKPageUp, "Page Up", "PgUp")
	add(VKPageDown, "Page Down", "PgDn")
	add(VKCapsLock, "Caps Lock")

	add(VKUp, "Up", "Arrow Up")
	add(VKDown, "Down", "Arrow Down")
	add(VKLeft, "Left", "Arrow Left")
	add(VKRight, "Right", "Arrow Right")

	// Sided modifier names resolve to the generic code; see Canonical.
	add(VKShift, "Shift", "LShift", "RShift")
	add(VKCtrl, "Ctrl", "Control", "LCtrl", "RCtrl")
	add(VKAlt, "Alt", "LAlt", "RAlt")
	add(VKLWin, "Win", "LWin", "RWin", "Super")

	add(0xBA, "Semicolon", ";")
	add(0xBB, "Equals", "=")
	add(0xBC, "Comma", ",")
	add(0xBD, "Minus", "-")
	add(0xBE, "Period", ".")
	add(0xBF, "Slash", "/")
	add(0xC0, "Grave", "`")
	add(0xDB, "Left Bracket", "[")
	add(0xDC, "Backslash", "\\")
	add(0xDD, "Right Bracket", "]")
	add(0xDE, "Apostrophe", "'")

	for i := uint16(0); i < 10; i++ {
		add(VKNumpad0+i, fmt.Sprintf("Numpad %d", i))
	}
	add(0x6A, "Numpad *", "Numpad Multiply")
	add(0x6B, "Numpad +", "Numpad Add")
	add(0x6D, "Numpad -", "Numpad Subtract")
	add(0x6E, "Numpad .", "Numpad Decimal")
	add(0x6F, "Numpad /", "Numpad Divide")

	add(VKLeftMouse, "Left Mouse")
	add(VKRightMouse, "Right Mouse")
	add(VKMiddleMouse, "Middle Mouse")
}

func add(code uint16, name string, aliases ...string) {
	table = append(table, Key{Code: code, Name: name})
	byCode[code] = name
	byName[fold(name)] = code
	for _, a := range aliases {
		byName[fold(a)] = code
	}
}

func fold(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// All returns the key table in display order.
func All() []Key {
	out := make([]Key, len(table))
	copy(out, table)
	return out
}

// Code resolves a key name, case-insensitively. Unknown names return 0.
func Code(name string) uint16 {
	return byName[fold(name)]
}

// Name returns the display name of a code, or "" when the code has none.
// Sided modifier codes report their generic name.
func Name(code uint16) string {
	return byCode[Canonical(code)]
}

// Known reports whether name resolves to a key.
func Known(name string) bool {
	return Code(name) != 0
}

// Canonical folds left/right modifier variants into the generic code, so a
// mapping on "Shift" matches either physical shift key.
func Canonical(code uint16) uint16 {
	switch code {
	case VKLShift, VKRShift:
		return VKShift
	case VKLCtrl, VKRCtrl:
		return VKCtrl
	case VKLAlt, VKRAlt:
		return VKAlt
	case VKRWin:
		return VKLWin
	}
	return code
}
