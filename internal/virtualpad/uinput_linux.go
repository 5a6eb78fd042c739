//go:build linux

package virtualpad

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"analogpad/internal/gamepad"
)

const platformBackend = BackendUinput

const uinputPath = "/dev/uinput"

// uinput ioctls (linux/uinput.h).
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetAbsBit  = 0x40045567
)

const busUSB = 0x03

// uinputUserDev is struct uinput_user_dev.
type uinputUserDev struct {
	Name         [80]byte
	BusType      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	FFEffectsMax uint32
	AbsMax       [64]int32
	AbsMin       [64]int32
	AbsFuzz      [64]int32
	AbsFlat      [64]int32
}

func openPlatform(backend string, opts Options, logger *slog.Logger) (Device, error) {
	if backend != BackendUinput {
		return nil, fmt.Errorf("%w: %s backend is not supported on linux", ErrNotAvailable, backend)
	}
	return OpenUinput(opts, logger)
}

// Uinput is a gamepad created through /dev/uinput.
type Uinput struct {
	errorCounter
	logger *slog.Logger

	mu     sync.Mutex
	fd     int
	prev   gamepad.Report
	primed bool
	events []inputEvent
	buf    []byte
}

// OpenUinput creates the virtual device.
func OpenUinput(opts Options, logger *slog.Logger) (*Uinput, error) {
	fd, err := unix.Open(uinputPath, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ENOENT):
			return nil, fmt.Errorf("%w: %s (is the uinput module loaded?)", ErrBusNotFound, uinputPath)
		case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
			return nil, fmt.Errorf("%w: %s: permission denied", ErrNotAvailable, uinputPath)
		}
		return nil, fmt.Errorf("open %s: %w", uinputPath, err)
	}

	if err := setupUinput(fd, opts); err != nil {
		unix.Close(fd)
		return nil, err
	}

	logger.Info("uinput gamepad created", "name", opts.DeviceName,
		"vendor", fmt.Sprintf("%04x", opts.VendorID), "product", fmt.Sprintf("%04x", opts.ProductID))
	return &Uinput{
		logger: logger,
		fd:     fd,
		events: make([]inputEvent, 0, len(evdevButtons)+8),
	}, nil
}

func setupUinput(fd int, opts Options) error {
	ioctl := func(req uint, val int) error {
		if err := unix.IoctlSetInt(fd, req, val); err != nil {
			return fmt.Errorf("uinput ioctl %#x: %w", req, err)
		}
		return nil
	}

	for _, ev := range []uint16{evKey, evAbs, evSyn} {
		if err := ioctl(uiSetEvBit, int(ev)); err != nil {
			return err
		}
	}
	for _, b := range evdevButtons {
		if err := ioctl(uiSetKeyBit, int(b.code)); err != nil {
			return err
		}
	}

	dev := uinputUserDev{
		BusType: busUSB,
		Vendor:  opts.VendorID,
		Product: opts.ProductID,
		Version: 1,
	}
	copy(dev.Name[:len(dev.Name)-1], opts.DeviceName)
	for _, a := range stickAxes {
		if err := ioctl(uiSetAbsBit, int(a)); err != nil {
			return err
		}
		dev.AbsMin[a], dev.AbsMax[a] = -32767, 32767
		dev.AbsFuzz[a], dev.AbsFlat[a] = 16, 128
	}
	for _, a := range triggerAxes {
		if err := ioctl(uiSetAbsBit, int(a)); err != nil {
			return err
		}
		dev.AbsMin[a], dev.AbsMax[a] = 0, 255
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, &dev); err != nil {
		return err
	}
	if _, err := unix.Write(fd, buf.Bytes()); err != nil {
		return fmt.Errorf("write uinput device: %w", err)
	}
	return ioctl(uiDevCreate, 0)
}

func (u *Uinput) Ready() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fd >= 0
}

// Send writes the changed buttons and axes followed by SYN_REPORT. The first
// report after creation writes every value.
func (u *Uinput) Send(r gamepad.Report) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fd < 0 {
		return u.count(ErrClosed)
	}

	u.events = diffEvents(u.events[:0], u.prev, r, !u.primed)
	if len(u.events) == 0 {
		return nil
	}

	u.buf = u.buf[:0]
	for _, ev := range u.events {
		u.buf = appendEvent(u.buf, ev)
	}
	if _, err := unix.Write(u.fd, u.buf); err != nil {
		return u.count(fmt.Errorf("write uinput events: %w", err))
	}
	u.prev = r
	u.primed = true
	return nil
}

const timevalSize = int(unsafe.Sizeof(unix.Timeval{}))

// appendEvent encodes struct input_event with a zero timestamp; the kernel
// stamps events written to uinput.
func appendEvent(buf []byte, ev inputEvent) []byte {
	for i := 0; i < timevalSize; i++ {
		buf = append(buf, 0)
	}
	buf = binary.NativeEndian.AppendUint16(buf, ev.typ)
	buf = binary.NativeEndian.AppendUint16(buf, ev.code)
	return binary.NativeEndian.AppendUint32(buf, uint32(ev.value))
}

func (u *Uinput) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fd < 0 {
		return nil
	}
	_ = unix.IoctlSetInt(u.fd, uiDevDestroy, 0)
	err := unix.Close(u.fd)
	u.fd = -1
	return err
}

func (u *Uinput) Backend() string { return BackendUinput }
