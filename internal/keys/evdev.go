package keys

// evdevToVK translates Linux input event codes (linux/input-event-codes.h)
// into virtual-key codes. Modifiers keep their sided codes.
var evdevToVK = map[uint16]uint16{
	1:  VKEsc,
	2:  '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	12: 0xBD, 13: 0xBB,
	14: VKBackspace,
	15: VKTab,
	16: 'Q', 17: 'W', 18: 'E', 19: 'R', 20: 'T', 21: 'Y', 22: 'U', 23: 'I', 24: 'O', 25: 'P',
	26: 0xDB, 27: 0xDD,
	28: VKEnter,
	29: VKLCtrl,
	30: 'A', 31: 'S', 32: 'D', 33: 'F', 34: 'G', 35: 'H', 36: 'J', 37: 'K', 38: 'L',
	39: 0xBA, 40: 0xDE, 41: 0xC0,
	42: VKLShift,
	43: 0xDC,
	44: 'Z', 45: 'X', 46: 'C', 47: 'V', 48: 'B', 49: 'N', 50: 'M',
	51: 0xBC, 52: 0xBE, 53: 0xBF,
	54: VKRShift,
	55: 0x6A,
	56: VKLAlt,
	57: VKSpace,
	58: VKCapsLock,
	59: VKF1, 60: VKF1 + 1, 61: VKF1 + 2, 62: VKF1 + 3, 63: VKF1 + 4,
	64: VKF1 + 5, 65: VKF1 + 6, 66: VKF1 + 7, 67: VKF1 + 8, 68: VKF1 + 9,
	71: VKNumpad0 + 7, 72: VKNumpad0 + 8, 73: VKNumpad0 + 9, 74: 0x6D,
	75: VKNumpad0 + 4, 76: VKNumpad0 + 5, 77: VKNumpad0 + 6, 78: 0x6B,
	79: VKNumpad0 + 1, 80: VKNumpad0 + 2, 81: VKNumpad0 + 3,
	82: VKNumpad0, 83: 0x6E,
	87: VKF1 + 10, 88: VKF1 + 11,
	96:  VKEnter,
	97:  VKRCtrl,
	98:  0x6F,
	100: VKRAlt,
	102: VKHome,
	103: VKUp,
	104: VKPageUp,
	105: VKLeft,
	106: VKRight,
	107: VKEnd,
	108: VKDown,
	109: VKPageDown,
	110: VKInsert,
	111: VKDelete,
	125: VKLWin,
	126: VKRWin,

	0x110: VKLeftMouse,
	0x111: VKRightMouse,
	0x112: VKMiddleMouse,
}

var vkToEvdev = make(map[uint16][]uint16)

func init() {
	for ev, vk := range evdevToVK {
		c := Canonical(vk)
		vkToEvdev[c] = append(vkToEvdev[c], ev)
	}
}

// FromEvdev translates an evdev key code. Codes without a virtual-key
// equivalent return 0.
func FromEvdev(code uint16) uint16 {
	return evdevToVK[code]
}

// EvdevCodes returns every evdev code that folds into the canonical
// virtual-key code vk; both shift keys for VKShift, for example.
func EvdevCodes(vk uint16) []uint16 {
	return vkToEvdev[Canonical(vk)]
}
