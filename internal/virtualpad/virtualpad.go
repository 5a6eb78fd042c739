// Package virtualpad publishes controller reports to an emulated gamepad:
// uinput on Linux, ViGEmBus on Windows.
package virtualpad

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"analogpad/internal/gamepad"
)

var (
	ErrNotAvailable = errors.New("virtual controller not available")
	ErrClosed       = errors.New("virtual controller closed")
	ErrBusNotFound  = errors.New("virtual controller bus not found")
)

// Backend names accepted by Open.
const (
	BackendAuto   = "auto"
	BackendUinput = "uinput"
	BackendViGEm  = "vigem"
	BackendNone   = "none"
)

// Options describes the emulated device.
type Options struct {
	DeviceName string
	VendorID   uint16
	ProductID  uint16
}

// DefaultOptions identifies as an Xbox 360 controller, which games
// recognise without extra mapping.
func DefaultOptions() Options {
	return Options{
		DeviceName: "analogpad virtual gamepad",
		VendorID:   0x045E,
		ProductID:  0x028E,
	}
}

// Device is an open virtual controller.
type Device interface {
	Ready() bool
	Send(gamepad.Report) error
	Errors() uint64
	Close() error
	Backend() string
}

// Open creates a device for backend. "auto" picks the platform default.
func Open(backend string, opts Options, logger *slog.Logger) (Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.DeviceName == "" {
		opts.DeviceName = def.DeviceName
	}
	if opts.VendorID == 0 {
		opts.VendorID = def.VendorID
	}
	if opts.ProductID == 0 {
		opts.ProductID = def.ProductID
	}

	switch b := strings.ToLower(strings.TrimSpace(backend)); b {
	case "", BackendAuto:
		return openPlatform(platformBackend, opts, logger)
	case BackendUinput, BackendViGEm:
		return openPlatform(b, opts, logger)
	case BackendNone:
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown virtual controller backend %q", backend)
	}
}

// errorCounter counts failed sends.
type errorCounter struct {
	errors atomic.Uint64
}

func (c *errorCounter) Errors() uint64 {
	return c.errors.Load()
}

func (c *errorCounter) count(err error) error {
	if err != nil {
		c.errors.Add(1)
	}
	return err
}

// Null accepts every report and keeps the most recent one. It backs the
// "none" backend and headless runs.
type Null struct {
	errorCounter
	last   atomic.Pointer[gamepad.Report]
	sent   atomic.Uint64
	closed atomic.Bool
}

func NewNull() *Null {
	return &Null{}
}

func (n *Null) Ready() bool { return !n.closed.Load() }

func (n *Null) Send(r gamepad.Report) error {
	if n.closed.Load() {
		return n.count(ErrClosed)
	}
	n.last.Store(&r)
	n.sent.Add(1)
	return nil
}

// Last returns the most recent report and whether one was sent.
func (n *Null) Last() (gamepad.Report, bool) {
	r := n.last.Load()
	if r == nil {
		return gamepad.Report{}, false
	}
	return *r, true
}

// Sent returns the number of accepted reports.
func (n *Null) Sent() uint64 { return n.sent.Load() }

func (n *Null) Close() error {
	n.closed.Store(true)
	return nil
}

func (n *Null) Backend() string { return BackendNone }
