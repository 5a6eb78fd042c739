package virtualpad

import "analogpad/internal/gamepad"

// Linux input event types and codes (linux/input-event-codes.h).
const (
	evSyn uint16 = 0x00
	evKey uint16 = 0x01
	evAbs uint16 = 0x03

	synReport uint16 = 0

	absX  uint16 = 0x00
	absY  uint16 = 0x01
	absZ  uint16 = 0x02
	absRX uint16 = 0x03
	absRY uint16 = 0x04
	absRZ uint16 = 0x05

	btnSouth     uint16 = 0x130
	btnEast      uint16 = 0x131
	btnX         uint16 = 0x133
	btnY         uint16 = 0x134
	btnTL        uint16 = 0x136
	btnTR        uint16 = 0x137
	btnSelect    uint16 = 0x13A
	btnStart     uint16 = 0x13B
	btnThumbL    uint16 = 0x13D
	btnThumbR    uint16 = 0x13E
	btnDPadUp    uint16 = 0x220
	btnDPadDown  uint16 = 0x221
	btnDPadLeft  uint16 = 0x222
	btnDPadRight uint16 = 0x223
)

// evdevButtons maps report bits to key codes, following the xpad driver.
var evdevButtons = []struct {
	bit  uint16
	code uint16
}{
	{gamepad.BitA, btnSouth},
	{gamepad.BitB, btnEast},
	{gamepad.BitX, btnX},
	{gamepad.BitY, btnY},
	{gamepad.BitLeftShoulder, btnTL},
	{gamepad.BitRightShoulder, btnTR},
	{gamepad.BitBack, btnSelect},
	{gamepad.BitStart, btnStart},
	{gamepad.BitLeftThumb, btnThumbL},
	{gamepad.BitRightThumb, btnThumbR},
	{gamepad.BitDPadUp, btnDPadUp},
	{gamepad.BitDPadDown, btnDPadDown},
	{gamepad.BitDPadLeft, btnDPadLeft},
	{gamepad.BitDPadRight, btnDPadRight},
}

var stickAxes = []uint16{absX, absY, absRX, absRY}
var triggerAxes = []uint16{absZ, absRZ}

type inputEvent struct {
	typ   uint16
	code  uint16
	value int32
}

// axisValues returns the absolute axis values of a report in evdev
// orientation: stick Y grows downward.
func axisValues(r gamepad.Report) [6]int32 {
	return [6]int32{
		absX:  int32(r.LeftX),
		absY:  -int32(r.LeftY),
		absZ:  int32(r.LeftTrigger),
		absRX: int32(r.RightX),
		absRY: -int32(r.RightY),
		absRZ: int32(r.RightTrigger),
	}
}

// diffEvents appends the events that move the device from prev to next,
// terminated by SYN_REPORT. When nothing changed it returns dst unchanged.
// With full set, every value is emitted.
func diffEvents(dst []inputEvent, prev, next gamepad.Report, full bool) []inputEvent {
	start := len(dst)

	changed := prev.Buttons ^ next.Buttons
	for _, b := range evdevButtons {
		if full || changed&b.bit != 0 {
			var v int32
			if next.Buttons&b.bit != 0 {
				v = 1
			}
			dst = append(dst, inputEvent{evKey, b.code, v})
		}
	}

	pa, na := axisValues(prev), axisValues(next)
	for code := range na {
		if full || pa[code] != na[code] {
			dst = append(dst, inputEvent{evAbs, uint16(code), na[code]})
		}
	}

	if len(dst) == start {
		return dst
	}
	return append(dst, inputEvent{evSyn, synReport, 0})
}
