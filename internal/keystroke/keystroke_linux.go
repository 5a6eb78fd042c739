//go:build linux

package keystroke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"

	"analogpad/internal/keys"
)

const devInputPath = "/dev/input"

// keyBitsLen covers evdev key codes up to KEY_MAX.
const keyBitsLen = 96

// eviocgkey is EVIOCGKEY(keyBitsLen).
const eviocgkey = 0x80000000 | keyBitsLen<<16 | 'E'<<8 | 0x18

type keyBits [keyBitsLen]byte

// LinuxSource reads key events from evdev keyboards and re-attaches them
// when they are unplugged and plugged back in.
type LinuxSource struct {
	base
	opts   Options
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	devMu   sync.Mutex
	devices map[string]*evdev.InputDevice
}

func newPlatformSource(opts Options, logger *slog.Logger) Source {
	return NewLinux(opts, logger)
}

// NewLinux creates an evdev source.
func NewLinux(opts Options, logger *slog.Logger) *LinuxSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinuxSource{
		opts:    opts,
		logger:  logger,
		devices: make(map[string]*evdev.InputDevice),
	}
}

// Available checks that at least one keyboard can be opened.
func (l *LinuxSource) Available() (bool, string) {
	paths, err := l.candidates()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(paths) == 0 {
		return false, "no keyboard devices found"
	}
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", p)
		}
	}
	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

func (l *LinuxSource) candidates() ([]string, error) {
	if len(l.opts.Devices) > 0 {
		return l.opts.Devices, nil
	}
	return findKeyboardDevices()
}

// findKeyboardDevices lists event nodes that report letter keys.
func findKeyboardDevices() ([]string, error) {
	devs, err := evdev.ListInputDevices(devInputPath + "/event*")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, dev := range devs {
		if isKeyboard(dev) {
			paths = append(paths, dev.Fn)
		}
		dev.File.Close()
	}
	slices.Sort(paths)
	return paths, nil
}

func isKeyboard(dev *evdev.InputDevice) bool {
	codes := dev.CapabilitiesFlat[evdev.EV_KEY]
	return slices.Contains(codes, evdev.KEY_A) && slices.Contains(codes, evdev.KEY_SPACE)
}

// Start opens every candidate keyboard and watches /dev/input for
// re-plugged devices.
func (l *LinuxSource) Start(ctx context.Context, h Handler) error {
	if err := l.begin(h); err != nil {
		return err
	}

	paths, err := l.candidates()
	if err != nil || len(paths) == 0 {
		l.end()
		if err == nil {
			err = errors.New("no keyboard devices found")
		}
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var firstErr error
	attached := 0
	for _, p := range paths {
		if err := l.attach(ctx, p); err != nil {
			l.logger.Warn("cannot open keyboard", "path", p, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		attached++
	}
	if attached == 0 {
		cancel()
		l.end()
		if errors.Is(firstErr, os.ErrPermission) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, firstErr)
		}
		return fmt.Errorf("%w: %v", ErrNotAvailable, firstErr)
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(devInputPath)
	}
	if err != nil {
		l.logger.Warn("device hotplug watch unavailable", "error", err)
	} else {
		l.wg.Add(1)
		go l.watch(ctx, watcher)
	}

	l.cancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		<-ctx.Done()
		l.closeAll()
	}()
	return nil
}

// Stop closes every device and waits for the readers to exit.
func (l *LinuxSource) Stop() error {
	if !l.IsRunning() {
		return nil
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	l.end()
	return nil
}

func (l *LinuxSource) attach(ctx context.Context, path string) error {
	key := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		key = resolved
	}

	l.devMu.Lock()
	defer l.devMu.Unlock()
	if _, ok := l.devices[key]; ok {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	dev, err := evdev.Open(path)
	if err != nil {
		return err
	}
	if l.opts.Grab {
		if err := dev.Grab(); err != nil {
			l.logger.Warn("cannot grab keyboard", "path", path, "error", err)
		}
	}
	l.devices[key] = dev
	l.logger.Info("attached keyboard", "path", path, "name", dev.Name)

	l.wg.Add(1)
	go l.read(ctx, key, dev)
	return nil
}

func (l *LinuxSource) read(ctx context.Context, key string, dev *evdev.InputDevice) {
	defer l.wg.Done()
	defer l.detach(key, dev)

	for {
		ev, err := dev.ReadOne()
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("lost keyboard", "path", dev.Fn, "error", err)
			}
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		code := keys.FromEvdev(ev.Code)
		switch evdev.KeyEventState(ev.Value) {
		case evdev.KeyUp:
			l.deliver(code, false, false)
		case evdev.KeyDown, evdev.KeyHold:
			l.deliver(code, true, false)
		}
	}
}

func (l *LinuxSource) detach(key string, dev *evdev.InputDevice) {
	l.devMu.Lock()
	if l.devices[key] == dev {
		delete(l.devices, key)
	}
	l.devMu.Unlock()
	if l.opts.Grab {
		_ = dev.Release()
	}
	dev.File.Close()
}

func (l *LinuxSource) closeAll() {
	l.devMu.Lock()
	defer l.devMu.Unlock()
	for _, dev := range l.devices {
		dev.File.Close()
	}
}

// watch attaches keyboards that appear under /dev/input.
func (l *LinuxSource) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer l.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("device watch error", "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) || !strings.HasPrefix(filepath.Base(ev.Name), "event") {
				continue
			}
			l.hotplug(ctx, ev.Name)
		}
	}
}

// hotplug attaches a newly created node when it is wanted. udev applies
// permissions shortly after the node appears, so opening is retried.
func (l *LinuxSource) hotplug(ctx context.Context, node string) {
	for attempt := 0; attempt < 10; attempt++ {
		if ctx.Err() != nil {
			return
		}
		path, wanted, err := l.wanted(node)
		if err == nil {
			if wanted {
				if err := l.attach(ctx, path); err != nil {
					l.logger.Warn("cannot attach keyboard", "path", path, "error", err)
				}
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// wanted reports the path to attach for a new node, if any. Configured
// devices are matched through their symlinks.
func (l *LinuxSource) wanted(node string) (string, bool, error) {
	if len(l.opts.Devices) > 0 {
		for _, p := range l.opts.Devices {
			if resolved, err := filepath.EvalSymlinks(p); err == nil && resolved == node {
				return p, true, nil
			}
		}
		return "", false, nil
	}

	dev, err := evdev.Open(node)
	if err != nil {
		return "", false, err
	}
	defer dev.File.Close()
	return node, isKeyboard(dev), nil
}

// KeyDown asks every attached keyboard for the live state of a key.
func (l *LinuxSource) KeyDown(code uint16) (bool, error) {
	codes := keys.EvdevCodes(code)
	if len(codes) == 0 {
		return false, nil
	}

	l.devMu.Lock()
	defer l.devMu.Unlock()
	if len(l.devices) == 0 {
		return false, ErrNotAvailable
	}

	var lastErr error
	for _, dev := range l.devices {
		state, err := readKeyBits(dev.File)
		if err != nil {
			lastErr = err
			continue
		}
		for _, c := range codes {
			if int(c)/8 < len(state) && state[c/8]&(1<<(c%8)) != 0 {
				return true, nil
			}
		}
		lastErr = nil
	}
	return false, lastErr
}

// readKeyBits issues EVIOCGKEY without switching the file to blocking mode.
func readKeyBits(f *os.File) (keyBits, error) {
	var bits keyBits
	rc, err := f.SyscallConn()
	if err != nil {
		return bits, err
	}
	var errno unix.Errno
	err = rc.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, eviocgkey, uintptr(unsafe.Pointer(&bits[0])))
	})
	if err != nil {
		return bits, err
	}
	if errno != 0 {
		return bits, fmt.Errorf("EVIOCGKEY: %w", errno)
	}
	return bits, nil
}
