//go:build windows

package virtualpad

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"analogpad/internal/gamepad"
)

const platformBackend = BackendViGEm

const (
	vigemErrorNone        = 0x20000000
	vigemErrorBusNotFound = 0xE0000001
)

var (
	vigemDLL = windows.NewLazyDLL("ViGEmClient.dll")

	procAlloc          = vigemDLL.NewProc("vigem_alloc")
	procFree           = vigemDLL.NewProc("vigem_free")
	procConnect        = vigemDLL.NewProc("vigem_connect")
	procDisconnect     = vigemDLL.NewProc("vigem_disconnect")
	procTargetX360     = vigemDLL.NewProc("vigem_target_x360_alloc")
	procTargetFree     = vigemDLL.NewProc("vigem_target_free")
	procTargetAdd      = vigemDLL.NewProc("vigem_target_add")
	procTargetRemove   = vigemDLL.NewProc("vigem_target_remove")
	procTargetSetVID   = vigemDLL.NewProc("vigem_target_set_vid")
	procTargetSetPID   = vigemDLL.NewProc("vigem_target_set_pid")
	procTargetX360Send = vigemDLL.NewProc("vigem_target_x360_update")
)

// xusbReport is XUSB_REPORT.
type xusbReport struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

func openPlatform(backend string, opts Options, logger *slog.Logger) (Device, error) {
	if backend != BackendViGEm {
		return nil, fmt.Errorf("%w: %s backend is not supported on windows", ErrNotAvailable, backend)
	}
	return OpenViGEm(opts, logger)
}

// ViGEm is an emulated Xbox 360 controller on the ViGEmBus driver.
type ViGEm struct {
	errorCounter
	logger *slog.Logger

	mu     sync.Mutex
	client uintptr
	target uintptr
}

// OpenViGEm connects to the bus and plugs in a controller.
func OpenViGEm(opts Options, logger *slog.Logger) (*ViGEm, error) {
	if err := vigemDLL.Load(); err != nil {
		return nil, fmt.Errorf("%w: ViGEmClient.dll: %v", ErrNotAvailable, err)
	}

	client, _, _ := procAlloc.Call()
	if client == 0 {
		return nil, fmt.Errorf("%w: vigem_alloc failed", ErrNotAvailable)
	}
	if rc, _, _ := procConnect.Call(client); rc != vigemErrorNone {
		procFree.Call(client)
		if rc == vigemErrorBusNotFound {
			return nil, fmt.Errorf("%w: ViGEmBus driver is not installed", ErrBusNotFound)
		}
		return nil, fmt.Errorf("%w: vigem_connect: %#x", ErrNotAvailable, rc)
	}

	target, _, _ := procTargetX360.Call()
	if target == 0 {
		procDisconnect.Call(client)
		procFree.Call(client)
		return nil, fmt.Errorf("%w: vigem_target_x360_alloc failed", ErrNotAvailable)
	}
	procTargetSetVID.Call(target, uintptr(opts.VendorID))
	procTargetSetPID.Call(target, uintptr(opts.ProductID))

	if rc, _, _ := procTargetAdd.Call(client, target); rc != vigemErrorNone {
		procTargetFree.Call(target)
		procDisconnect.Call(client)
		procFree.Call(client)
		return nil, fmt.Errorf("%w: vigem_target_add: %#x", ErrNotAvailable, rc)
	}

	logger.Info("ViGEm controller plugged in",
		"vendor", fmt.Sprintf("%04x", opts.VendorID), "product", fmt.Sprintf("%04x", opts.ProductID))
	return &ViGEm{logger: logger, client: client, target: target}, nil
}

func (v *ViGEm) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.client != 0
}

// Send submits the whole report. The 12-byte XUSB_REPORT is passed by
// reference, as the x64 calling convention does for structs of that size.
func (v *ViGEm) Send(r gamepad.Report) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client == 0 {
		return v.count(ErrClosed)
	}

	report := xusbReport{
		Buttons:      r.Buttons,
		LeftTrigger:  r.LeftTrigger,
		RightTrigger: r.RightTrigger,
		ThumbLX:      r.LeftX,
		ThumbLY:      r.LeftY,
		ThumbRX:      r.RightX,
		ThumbRY:      r.RightY,
	}
	rc, _, _ := procTargetX360Send.Call(v.client, v.target, uintptr(unsafe.Pointer(&report)))
	if rc != vigemErrorNone {
		return v.count(fmt.Errorf("vigem_target_x360_update: %#x", rc))
	}
	return nil
}

// Close unplugs the controller and releases the client, in reverse order of
// creation.
func (v *ViGEm) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client == 0 {
		return nil
	}
	procTargetRemove.Call(v.client, v.target)
	procTargetFree.Call(v.target)
	procDisconnect.Call(v.client)
	procFree.Call(v.client)
	v.client, v.target = 0, 0
	return nil
}

func (v *ViGEm) Backend() string { return BackendViGEm }
