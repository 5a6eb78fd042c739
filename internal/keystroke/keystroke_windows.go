//go:build windows

package keystroke

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
)

const (
	whKeyboardLL = 13
	hcAction     = 0

	wmQuit       = 0x0012
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	// LLKHF_INJECTED is set for events from SendInput and keybd_event.
	llkhfInjected = 0x10
)

// kbdllHookStruct is KBDLLHOOKSTRUCT.
type kbdllHookStruct struct {
	VkCode    uint32
	ScanCode  uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type winMsg struct {
	Hwnd     uintptr
	Message  uint32
	WParam   uintptr
	LParam   uintptr
	Time     uint32
	Pt       struct{ X, Y int32 }
	LPrivate uint32
}

// The hook callback carries no context, so one source per process owns it.
var (
	hookOwner atomic.Pointer[WindowsSource]
	hookProc  = windows.NewCallback(lowLevelKeyboardProc)
)

func lowLevelKeyboardProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) == hcAction {
		if w := hookOwner.Load(); w != nil {
			kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			injected := kb.Flags&llkhfInjected != 0
			switch wParam {
			case wmKeyDown, wmSysKeyDown:
				w.deliver(uint16(kb.VkCode), true, injected)
			case wmKeyUp, wmSysKeyUp:
				w.deliver(uint16(kb.VkCode), false, injected)
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

// WindowsSource installs a WH_KEYBOARD_LL hook on a dedicated OS thread
// running its own message loop.
type WindowsSource struct {
	base

	threadID uint32
	done     chan struct{}
	stopOnce *sync.Once
}

func newPlatformSource(Options, *slog.Logger) Source {
	return &WindowsSource{}
}

// Available checks that user32 exports the hook API.
func (w *WindowsSource) Available() (bool, string) {
	if err := procSetWindowsHookExW.Find(); err != nil {
		return false, fmt.Sprintf("low-level keyboard hook unavailable: %v", err)
	}
	return true, "low-level keyboard hook available"
}

// Start installs the hook and waits until it is active.
func (w *WindowsSource) Start(ctx context.Context, h Handler) error {
	if err := w.begin(h); err != nil {
		return err
	}
	if !hookOwner.CompareAndSwap(nil, w) {
		w.end()
		return ErrAlreadyRunning
	}

	ready := make(chan error, 1)
	w.done = make(chan struct{})
	w.stopOnce = new(sync.Once)
	go w.messageLoop(ready)

	if err := <-ready; err != nil {
		<-w.done
		hookOwner.CompareAndSwap(w, nil)
		w.end()
		return err
	}

	if done := ctx.Done(); done != nil {
		stopped := w.done
		go func() {
			select {
			case <-done:
				w.Stop()
			case <-stopped:
			}
		}()
	}
	return nil
}

func (w *WindowsSource) messageLoop(ready chan<- error) {
	defer close(w.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.threadID = windows.GetCurrentThreadId()
	hook, _, callErr := procSetWindowsHookExW.Call(whKeyboardLL, hookProc, 0, 0)
	if hook == 0 {
		ready <- fmt.Errorf("%w: SetWindowsHookExW: %v", ErrNotAvailable, callErr)
		return
	}
	defer procUnhookWindowsHookEx.Call(hook)
	ready <- nil

	var m winMsg
	for {
		rc, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(rc) <= 0 {
			return
		}
	}
}

// Stop posts WM_QUIT to the hook thread and waits for it to unhook.
func (w *WindowsSource) Stop() error {
	if !w.IsRunning() {
		return nil
	}
	w.stopOnce.Do(func() {
		procPostThreadMessageW.Call(uintptr(w.threadID), wmQuit, 0, 0)
		<-w.done
		hookOwner.CompareAndSwap(w, nil)
		w.end()
	})
	return nil
}

// KeyDown reports the asynchronous key state.
func (w *WindowsSource) KeyDown(code uint16) (bool, error) {
	state, _, _ := procGetAsyncKeyState.Call(uintptr(code))
	return uint16(state)&0x8000 != 0, nil
}
