package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeLookup(t *testing.T) {
	tests := []struct {
		name string
		want uint16
	}{
		{"W", 0x57},
		{"w", 0x57},
		{"0", 0x30},
		{"F12", 0x7B},
		{"Space", 0x20},
		{"Page Up", 0x21},
		{"page  down", 0x22},
		{"Esc", 0x1B},
		{"Escape", 0x1B},
		{"Shift", VKShift},
		{"LShift", VKShift},
		{"Win", VKLWin},
		{"Numpad 5", 0x65},
		{"Left Mouse", 0x01},
		{"Middle Mouse", 0x04},
		{"Semicolon", 0xBA},
		{"NoSuchKey", 0},
		{"", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Code(tc.name))
		})
	}
}

func TestNameRoundTrip(t *testing.T) {
	for _, k := range All() {
		assert.Equal(t, k.Code, Code(k.Name), k.Name)
		assert.Equal(t, k.Name, Name(k.Code), k.Name)
	}
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, VKShift, Canonical(VKLShift))
	assert.Equal(t, VKShift, Canonical(VKRShift))
	assert.Equal(t, VKCtrl, Canonical(VKRCtrl))
	assert.Equal(t, VKAlt, Canonical(VKLAlt))
	assert.Equal(t, VKLWin, Canonical(VKRWin))
	assert.Equal(t, VKW, Canonical(VKW))

	assert.Equal(t, "Shift", Name(VKRShift))
	assert.Equal(t, "", Name(0xFF))
}

func TestModifierFor(t *testing.T) {
	assert.Equal(t, ModCtrl, ModifierFor(VKLCtrl))
	assert.Equal(t, ModAlt, ModifierFor(VKRAlt))
	assert.Equal(t, ModShift, ModifierFor(VKShift))
	assert.Equal(t, ModWin, ModifierFor(VKRWin))
	assert.Equal(t, Modifiers(0), ModifierFor(VKW))
}

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		input string
		want  Hotkey
	}{
		{"F1", Hotkey{Key: VKF1}},
		{"Ctrl + Alt + K", Hotkey{Key: 0x4B, Modifiers: ModCtrl | ModAlt}},
		{"ctrl+shift+f5", Hotkey{Key: VKF1 + 4, Modifiers: ModCtrl | ModShift}},
		{"Super+Space", Hotkey{Key: VKSpace, Modifiers: ModWin}},
		{"control + meta + 3", Hotkey{Key: '3', Modifiers: ModCtrl | ModWin}},
		{"None", Hotkey{}},
		{"   ", Hotkey{}},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseHotkey(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseHotkeyErrors(t *testing.T) {
	for _, input := range []string{"Ctrl+Shift", "Ctrl+A+B", "Alt+Banana"} {
		_, err := ParseHotkey(input)
		assert.Error(t, err, input)
	}
}

func TestHotkeyString(t *testing.T) {
	h, err := ParseHotkey("shift+ctrl+f5")
	require.NoError(t, err)
	assert.Equal(t, "Ctrl + Shift + F5", h.String())

	var zero Hotkey
	assert.True(t, zero.IsZero())
	assert.Equal(t, "", zero.String())

	all := Hotkey{Key: VKW, Modifiers: ModWin | ModShift | ModAlt | ModCtrl}
	assert.Equal(t, "Ctrl + Alt + Shift + Win + W", all.String())
}

func TestHotkeyText(t *testing.T) {
	var h Hotkey
	require.NoError(t, h.UnmarshalText([]byte("Ctrl+F2")))
	assert.Equal(t, Hotkey{Key: VKF2, Modifiers: ModCtrl}, h)

	text, err := h.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Ctrl + F2", string(text))

	assert.Error(t, h.UnmarshalText([]byte("Ctrl+Nope")))
}

func TestFromEvdev(t *testing.T) {
	assert.Equal(t, VKW, FromEvdev(17))
	assert.Equal(t, VKA, FromEvdev(30))
	assert.Equal(t, VKLShift, FromEvdev(42))
	assert.Equal(t, VKF1+11, FromEvdev(88))
	assert.Equal(t, VKLeftMouse, FromEvdev(0x110))
	assert.Equal(t, uint16(0), FromEvdev(0x2FF))
}

func TestEvdevCodes(t *testing.T) {
	assert.ElementsMatch(t, []uint16{42, 54}, EvdevCodes(VKShift))
	assert.ElementsMatch(t, []uint16{42, 54}, EvdevCodes(VKRShift))
	assert.ElementsMatch(t, []uint16{17}, EvdevCodes(VKW))
	assert.ElementsMatch(t, []uint16{28, 96}, EvdevCodes(VKEnter))
	assert.Empty(t, EvdevCodes(0xFF))
}
