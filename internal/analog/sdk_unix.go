//go:build linux || darwin

package analog

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

func defaultLibrary() string {
	if runtime.GOOS == "darwin" {
		return "libwooting_analog_wrapper.dylib"
	}
	return "libwooting_analog_wrapper.so"
}

// dlSDK binds the wrapper library with purego, without cgo.
type dlSDK struct {
	handle uintptr

	initialise       func() int32
	isInitialised    func() bool
	uninitialise     func() int32
	setKeycodeMode   func(int32) int32
	readFullBuffer   func(*uint16, *float32, uint32) int32
	connectedDevices func(*uintptr, uint32) int32
}

func loadSDK(path string) (sdk, error) {
	if path == "" {
		path = defaultLibrary()
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLibraryNotFound, path, err)
	}

	s := &dlSDK{handle: handle}
	bindings := []struct {
		fptr any
		name string
	}{
		{&s.initialise, "wooting_analog_initialise"},
		{&s.isInitialised, "wooting_analog_is_initialised"},
		{&s.uninitialise, "wooting_analog_uninitialise"},
		{&s.setKeycodeMode, "wooting_analog_set_keycode_mode"},
		{&s.readFullBuffer, "wooting_analog_read_full_buffer"},
		{&s.connectedDevices, "wooting_analog_get_connected_devices_info"},
	}
	for _, b := range bindings {
		sym, err := purego.Dlsym(handle, b.name)
		if err != nil {
			purego.Dlclose(handle)
			return nil, fmt.Errorf("%w: %s: missing %s", ErrLibraryNotFound, path, b.name)
		}
		purego.RegisterFunc(b.fptr, sym)
	}
	return s, nil
}

func (s *dlSDK) Initialise() int32              { return s.initialise() }
func (s *dlSDK) IsInitialised() bool            { return s.isInitialised() }
func (s *dlSDK) Uninitialise() int32            { return s.uninitialise() }
func (s *dlSDK) SetKeycodeMode(mode int32) int32 { return s.setKeycodeMode(mode) }

func (s *dlSDK) ReadFullBuffer(codes []uint16, values []float32) int32 {
	n := min(len(codes), len(values))
	if n == 0 {
		return 0
	}
	return s.readFullBuffer(&codes[0], &values[0], uint32(n))
}

func (s *dlSDK) ConnectedDevices() int32 {
	var infos [8]uintptr
	return s.connectedDevices(&infos[0], uint32(len(infos)))
}

func (s *dlSDK) Close() error {
	if s.handle == 0 {
		return nil
	}
	err := purego.Dlclose(s.handle)
	s.handle = 0
	return err
}
