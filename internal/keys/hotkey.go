package keys

import (
	"fmt"
	"strings"
)

// Modifiers is a bitmask of held modifier keys.
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModAlt
	ModShift
	ModWin
)

// ModifierFor returns the modifier bit a key contributes, or 0.
func ModifierFor(code uint16) Modifiers {
	switch Canonical(code) {
	case VKCtrl:
		return ModCtrl
	case VKAlt:
		return ModAlt
	case VKShift:
		return ModShift
	case VKLWin:
		return ModWin
	}
	return 0
}

// String formats the set as "Ctrl + Alt + Shift + Win", in that order.
func (m Modifiers) String() string {
	return strings.Join(m.names(), " + ")
}

func (m Modifiers) names() []string {
	var parts []string
	if m&ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if m&ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if m&ModShift != 0 {
		parts = append(parts, "Shift")
	}
	if m&ModWin != 0 {
		parts = append(parts, "Win")
	}
	return parts
}

// Hotkey is a key plus an exact modifier combination. The zero value means
// "no hotkey".
type Hotkey struct {
	Key       uint16
	Modifiers Modifiers
}

// IsZero reports whether no hotkey is set.
func (h Hotkey) IsZero() bool {
	return h.Key == 0
}

// String formats the hotkey as "Ctrl + Shift + F5", or "" for the zero value.
func (h Hotkey) String() string {
	if h.IsZero() {
		return ""
	}
	return strings.Join(append(h.Modifiers.names(), Name(h.Key)), " + ")
}

// ParseHotkey parses strings like "F1", "Ctrl+Shift+K" or "Ctrl + Alt + 5".
// Empty input and "none" yield the zero hotkey.
func ParseHotkey(s string) (Hotkey, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return Hotkey{}, nil
	}

	var h Hotkey
	var keyName string
	for _, token := range strings.Split(trimmed, "+") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		switch strings.ToLower(token) {
		case "ctrl", "control":
			h.Modifiers |= ModCtrl
		case "alt":
			h.Modifiers |= ModAlt
		case "shift":
			h.Modifiers |= ModShift
		case "win", "windows", "super", "meta":
			h.Modifiers |= ModWin
		default:
			if keyName != "" {
				return Hotkey{}, fmt.Errorf("hotkey %q names more than one key", s)
			}
			keyName = token
		}
	}

	if keyName == "" {
		return Hotkey{}, fmt.Errorf("hotkey %q has no key", s)
	}
	h.Key = Canonical(Code(keyName))
	if h.Key == 0 {
		return Hotkey{}, fmt.Errorf("hotkey %q: unknown key %q", s, keyName)
	}
	return h, nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hotkey) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hotkey) UnmarshalText(text []byte) error {
	parsed, err := ParseHotkey(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
