//go:build windows

package analog

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const defaultLibrary = "wooting_analog_wrapper.dll"

type dllSDK struct {
	dll *windows.LazyDLL

	initialise       *windows.LazyProc
	isInitialised    *windows.LazyProc
	uninitialise     *windows.LazyProc
	setKeycodeMode   *windows.LazyProc
	readFullBuffer   *windows.LazyProc
	connectedDevices *windows.LazyProc
}

func loadSDK(path string) (sdk, error) {
	if path == "" {
		path = defaultLibrary
	}
	dll := windows.NewLazyDLL(path)
	if err := dll.Load(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLibraryNotFound, path, err)
	}

	s := &dllSDK{
		dll:              dll,
		initialise:       dll.NewProc("wooting_analog_initialise"),
		isInitialised:    dll.NewProc("wooting_analog_is_initialised"),
		uninitialise:     dll.NewProc("wooting_analog_uninitialise"),
		setKeycodeMode:   dll.NewProc("wooting_analog_set_keycode_mode"),
		readFullBuffer:   dll.NewProc("wooting_analog_read_full_buffer"),
		connectedDevices: dll.NewProc("wooting_analog_get_connected_devices_info"),
	}
	for _, p := range []*windows.LazyProc{s.initialise, s.isInitialised, s.uninitialise, s.setKeycodeMode, s.readFullBuffer, s.connectedDevices} {
		if err := p.Find(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLibraryNotFound, path, err)
		}
	}
	return s, nil
}

func call(p *windows.LazyProc, args ...uintptr) int32 {
	r, _, _ := p.Call(args...)
	return int32(r)
}

func (s *dllSDK) Initialise() int32 { return call(s.initialise) }

func (s *dllSDK) IsInitialised() bool {
	r, _, _ := s.isInitialised.Call()
	return byte(r) != 0
}

func (s *dllSDK) Uninitialise() int32 { return call(s.uninitialise) }

func (s *dllSDK) SetKeycodeMode(mode int32) int32 {
	return call(s.setKeycodeMode, uintptr(mode))
}

func (s *dllSDK) ReadFullBuffer(codes []uint16, values []float32) int32 {
	n := min(len(codes), len(values))
	if n == 0 {
		return 0
	}
	return call(s.readFullBuffer,
		uintptr(unsafe.Pointer(&codes[0])),
		uintptr(unsafe.Pointer(&values[0])),
		uintptr(n))
}

func (s *dllSDK) ConnectedDevices() int32 {
	var infos [8]uintptr
	return call(s.connectedDevices, uintptr(unsafe.Pointer(&infos[0])), uintptr(len(infos)))
}

// Close is a no-op: the wrapper stays mapped for the life of the process.
func (s *dllSDK) Close() error {
	return nil
}
