package analog

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"analogpad/internal/keys"
)

// sdk is the subset of the wrapper library the source uses.
type sdk interface {
	Initialise() int32
	IsInitialised() bool
	Uninitialise() int32
	SetKeycodeMode(mode int32) int32
	ReadFullBuffer(codes []uint16, values []float32) int32
	ConnectedDevices() int32
	Close() error
}

// Options configures a Wooting source.
type Options struct {
	// LibraryPath overrides the platform default wrapper library.
	LibraryPath string
	// DisconnectCheckFrames is the number of consecutive empty polls after
	// which device presence is re-checked.
	DisconnectCheckFrames int
}

// DefaultDisconnectCheckFrames is one second at the default frame rate.
const DefaultDisconnectCheckFrames = 120

// Wooting polls the Wooting analog SDK. PollInto must only be called from one
// goroutine at a time; the mapping loop is its only caller.
type Wooting struct {
	sdk    sdk
	logger *slog.Logger

	checkEvery  int
	emptyFrames int
	connected   atomic.Bool
	status      chan bool

	codes  []uint16
	values []float32

	closeOnce sync.Once
}

// OpenWooting loads the wrapper library, initialises it and switches it to
// virtual-key codes.
func OpenWooting(opts Options, logger *slog.Logger) (*Wooting, error) {
	lib, err := loadSDK(opts.LibraryPath)
	if err != nil {
		return nil, err
	}
	w, err := newWooting(lib, opts, logger)
	if err != nil {
		lib.Close()
		return nil, err
	}
	return w, nil
}

func newWooting(lib sdk, opts Options, logger *slog.Logger) (*Wooting, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DisconnectCheckFrames <= 0 {
		opts.DisconnectCheckFrames = DefaultDisconnectCheckFrames
	}

	devices := lib.Initialise()
	if devices < 0 {
		return nil, fmt.Errorf("initialise: %w", resultErr("initialise", devices))
	}
	if rc := lib.SetKeycodeMode(keycodeVirtualKey); rc != resultOk {
		lib.Uninitialise()
		return nil, fmt.Errorf("set keycode mode: %w", resultErr("set_keycode_mode", rc))
	}

	w := &Wooting{
		sdk:        lib,
		logger:     logger,
		checkEvery: opts.DisconnectCheckFrames,
		status:     make(chan bool, 8),
		codes:      make([]uint16, MaxKeys),
		values:     make([]float32, MaxKeys),
	}
	w.connected.Store(devices > 0)
	logger.Info("analog sdk initialised", "devices", devices)
	return w, nil
}

// Ready reports whether the SDK is initialised.
func (w *Wooting) Ready() bool {
	return w.sdk.IsInitialised()
}

// Connected reports the last observed device presence.
func (w *Wooting) Connected() bool {
	return w.connected.Load()
}

// Status delivers device presence transitions. Sends never block the
// polling goroutine; a full channel drops the transition.
func (w *Wooting) Status() <-chan bool {
	return w.status
}

// PollInto appends the currently pressed keys to dst[:0]. Codes are folded
// with keys.Canonical. On error the returned slice is empty.
func (w *Wooting) PollInto(dst []Reading) ([]Reading, error) {
	dst = dst[:0]

	n := w.sdk.ReadFullBuffer(w.codes, w.values)
	if n < 0 {
		err := resultErr("read_full_buffer", n)
		switch err {
		case ErrNoDevices, ErrDeviceDisconnected:
			w.setConnected(false)
		}
		return dst, err
	}

	if n == 0 {
		w.emptyFrames++
		if w.emptyFrames >= w.checkEvery {
			w.emptyFrames = 0
			w.setConnected(w.sdk.ConnectedDevices() > 0)
		}
		return dst, nil
	}

	w.emptyFrames = 0
	w.setConnected(true)
	if int(n) > len(w.codes) {
		n = int32(len(w.codes))
	}
	for i := 0; i < int(n); i++ {
		dst = append(dst, Reading{Code: keys.Canonical(w.codes[i]), Value: float64(w.values[i])})
	}
	return dst, nil
}

func (w *Wooting) setConnected(connected bool) {
	if w.connected.Swap(connected) == connected {
		return
	}
	if connected {
		w.logger.Info("analog keyboard connected")
	} else {
		w.logger.Warn("analog keyboard disconnected")
	}
	select {
	case w.status <- connected:
	default:
	}
}

// Close uninitialises the SDK and releases the library.
func (w *Wooting) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.sdk.Uninitialise()
		err = w.sdk.Close()
	})
	return err
}
