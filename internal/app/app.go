// Package app is the application context: it builds every service from the
// configuration, starts and stops them in order, and applies profile
// switches and configuration reloads across all of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"analogpad/internal/analog"
	"analogpad/internal/config"
	"analogpad/internal/gamepad"
	"analogpad/internal/health"
	"analogpad/internal/hotkey"
	"analogpad/internal/keystroke"
	"analogpad/internal/logging"
	"analogpad/internal/mapping"
	"analogpad/internal/metrics"
	"analogpad/internal/monitor"
	"analogpad/internal/notify"
	"analogpad/internal/profile"
	"analogpad/internal/virtualpad"
)

var ErrRunning = errors.New("application already running")

const (
	// shutdownTimeout bounds the monitor server shutdown.
	shutdownTimeout = 2 * time.Second

	crashReportMaxAge = 30 * 24 * time.Hour
)

// AnalogSource is an analog backend as the application holds it.
type AnalogSource interface {
	mapping.AnalogSource
}

// Notifier delivers hub events outside the process.
type Notifier interface {
	Run(ctx context.Context, events <-chan notify.Envelope)
	Close() error
}

// Options supplies the configuration and, for tests or headless runs,
// ready-made collaborators. Nil collaborators are built from Config.
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Version string

	Analog    AnalogSource
	Sink      virtualpad.Device
	KeySource keystroke.Source
	Notifier  Notifier

	// CrashDir receives crash reports of recovered goroutine panics.
	// Empty disables the files.
	CrashDir string
}

// App owns the service graph.
type App struct {
	logger *slog.Logger
	crash  *logging.CrashHandler

	state    *gamepad.SharedState
	analog   AnalogSource
	sink     virtualpad.Device
	profiles *profile.Manager
	engine   *mapping.Engine
	keys     keystroke.Source
	hotkeys  *hotkey.Manager
	hub      *notify.Hub
	notifier Notifier
	health   *health.Checker
	metrics  *metrics.Metrics
	monitor  *monitor.Server

	// mu serializes switches, mapping edits, reloads, Start and Stop.
	mu     sync.Mutex
	cfg    *config.Config
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds every service without starting any. A missing analog SDK or
// virtual controller driver is not an error: the application runs degraded
// and the health checks say why.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app: nil configuration")
	}
	cfg := opts.Config.Clone()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	a := &App{
		logger: logger.Component("app"),
		cfg:    cfg,
		state:  gamepad.NewSharedState(),
		hub:    notify.NewHub(),
		health: health.NewChecker(),
	}
	a.crash = logging.NewCrashHandler(logging.CrashHandlerConfig{
		CrashDir: opts.CrashDir,
		Version:  opts.Version,
		Logger:   a.logger,
	})
	if err := a.crash.CleanupOldCrashReports(crashReportMaxAge); err != nil {
		a.logger.Warn("crash report cleanup", "error", err)
	}

	profiles, err := profile.NewManager(cfg.Profiles, logger.Component("profile"))
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	a.profiles = profiles

	a.analog = opts.Analog
	if a.analog == nil {
		a.analog = openAnalog(cfg.Analog, logger.Component("analog"))
	}
	a.sink = opts.Sink
	if a.sink == nil {
		a.sink = openSink(cfg.Sink, logger.Component("virtualpad"))
	}
	a.keys = opts.KeySource
	if a.keys == nil {
		a.keys = keystroke.New(keystroke.Options{
			Devices: cfg.Input.Devices,
			Grab:    cfg.Input.Grab,
		}, logger.Component("keystroke"))
	}

	a.engine = mapping.New(a.analog, a.sink, a.state, EngineConfig(cfg.Engine), logger.Component("mapping"))

	hkCfg := hotkey.DefaultConfig()
	hkCfg.QueueCapacity = cfg.Input.QueueCapacity
	a.hotkeys = hotkey.New(a.keys, a.state, hkCfg, logger.Component("hotkey"))

	a.notifier = opts.Notifier
	if a.notifier == nil && cfg.Notify.Desktop {
		d, err := notify.NewDesktop(cfg.Notify.AppName, logger.Component("notify"))
		if err != nil {
			a.logger.Warn("desktop notifications unavailable", "error", err)
		} else {
			a.notifier = d
		}
	}

	a.metrics = metrics.New(metrics.Sources{
		Engine:        a.engine.Metrics,
		Hotkeys:       a.hotkeys.Stats,
		SinkErrors:    a.sink.Errors,
		NotifyDropped: a.hub.Dropped,
	})

	a.health.RegisterFunc("analog", false, health.AnalogCheck(a.analog))
	a.health.RegisterFunc("sink", true, health.SinkCheck(a.sink))
	a.health.RegisterFunc("engine", false, health.EngineCheck(a.engine))
	a.health.RegisterFunc("hotkeys", false, health.HotkeyCheck(a.hotkeys))

	if cfg.Monitor.Enabled {
		streamer := monitor.NewStreamer(monitor.Sources{
			Report:  a.state.Snapshot,
			Metrics: a.engine.Metrics,
			Profile: a.engine.Profile,
		})
		a.monitor = monitor.New(monitor.Config{
			ListenAddr:     cfg.Monitor.ListenAddr,
			StreamInterval: time.Duration(cfg.Monitor.StreamIntervalMs) * time.Millisecond,
		}, streamer, a.metrics.Handler(), a.health.HealthHandler(), a.health.ReadinessHandler(),
			logger.Component("monitor"))
	}

	return a, nil
}

// EngineConfig converts the engine section into loop timing.
func EngineConfig(c config.EngineConfig) mapping.Config {
	return mapping.Config{
		RateHz:         c.RateHz,
		WarnBudget:     time.Duration(c.WarnBudgetUs) * time.Microsecond,
		BufferCapacity: c.BufferCapacity,
	}
}

// CrashDir is where the daemon writes crash reports.
func CrashDir() string {
	return filepath.Join(config.PlatformLogDir(), "crashes")
}

func openAnalog(c config.AnalogConfig, logger *slog.Logger) AnalogSource {
	if c.Backend == "simulated" {
		logger.Info("using simulated analog source")
		return analog.NewSimulated()
	}
	w, err := analog.OpenWooting(analog.Options{
		LibraryPath:           c.LibraryPath,
		DisconnectCheckFrames: c.DisconnectCheckFrames,
	}, logger)
	if err != nil {
		logger.Warn("analog SDK unavailable, mapping disabled", "error", err)
		return unavailableAnalog{err: err}
	}
	return w
}

func openSink(c config.SinkConfig, logger *slog.Logger) virtualpad.Device {
	dev, err := virtualpad.Open(c.Backend, virtualpad.Options{
		DeviceName: c.DeviceName,
		VendorID:   c.VendorID,
		ProductID:  c.ProductID,
	}, logger)
	if err != nil {
		logger.Error("virtual controller unavailable, mapping disabled", "backend", c.Backend, "error", err)
		return unavailableSink{backend: c.Backend, err: err}
	}
	return dev
}

// unavailableAnalog stands in for an SDK that failed to initialise.
type unavailableAnalog struct{ err error }

func (unavailableAnalog) Ready() bool { return false }

func (u unavailableAnalog) PollInto(dst []analog.Reading) ([]analog.Reading, error) {
	return dst[:0], fmt.Errorf("%w: %v", analog.ErrNotInitialized, u.err)
}

// unavailableSink stands in for a controller driver that could not be opened.
type unavailableSink struct {
	backend string
	err     error
}

func (unavailableSink) Ready() bool { return false }

func (u unavailableSink) Send(gamepad.Report) error {
	return fmt.Errorf("%w: %v", virtualpad.ErrNotAvailable, u.err)
}

func (unavailableSink) Errors() uint64 { return 0 }

func (unavailableSink) Close() error { return nil }

func (u unavailableSink) Backend() string { return u.backend }

// Start activates the configured profile and starts key capture, the
// mapping loop and the diagnostics server. Key capture and the mapping loop
// may fail to start; the application then runs degraded.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.activateLocked(a.cfg.Active.Profile, a.cfg.Active.SubProfile, true); err != nil {
		a.stopLocked()
		return fmt.Errorf("activate profile: %w", err)
	}

	if a.monitor != nil {
		if err := a.monitor.Start(ctx); err != nil {
			a.stopLocked()
			return err
		}
	}

	if ok, reason := a.keys.Available(); !ok {
		a.logger.Warn("key capture not available", "reason", reason)
	}
	if err := a.hotkeys.Start(ctx); err != nil {
		a.logger.Warn("hotkeys disabled", "error", err)
	}

	if err := a.engine.Start(); err != nil {
		a.logger.Warn("mapping loop not started", "error", err)
	}
	a.hub.Publish(notify.MappingStatus{Active: a.engine.IsActive()})

	a.spawn("triggers", func() { a.triggerLoop(ctx) })
	if s, ok := a.analog.(interface{ Status() <-chan bool }); ok {
		if c, ok := a.analog.(interface{ Connected() bool }); ok {
			a.metrics.SetKeyboardConnected(c.Connected())
		}
		status := s.Status()
		a.spawn("analog-status", func() { a.statusLoop(ctx, status) })
	}
	if a.notifier != nil {
		events, unsubscribe := a.hub.Subscribe(notify.DefaultBuffer)
		a.spawn("notifier", func() {
			defer unsubscribe()
			a.notifier.Run(ctx, events)
		})
	}

	a.health.SetReady(true)
	a.logger.Info("started",
		"mapping", a.engine.IsActive(),
		"hotkeys", a.hotkeys.Running(),
		"sink", a.sink.Backend(),
		"health_checks", a.health.Components(),
	)
	return nil
}

func (a *App) spawn(name string, fn func()) {
	a.wg.Add(1)
	a.crash.Go(name, func() {
		defer a.wg.Done()
		fn()
	})
}

// Stop stops the diagnostics server, key capture and the mapping loop, in
// that order, and waits for the application goroutines.
func (a *App) Stop() {
	a.mu.Lock()
	if a.cancel == nil {
		a.mu.Unlock()
		return
	}
	a.stopLocked()
	a.mu.Unlock()
	a.wg.Wait()
	a.logger.Info("stopped")
}

func (a *App) stopLocked() {
	a.health.SetReady(false)
	if a.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.monitor.Shutdown(ctx); err != nil {
			a.logger.Warn("monitor shutdown", "error", err)
		}
		cancel()
	}
	a.hotkeys.Stop()
	if a.engine.IsActive() {
		a.engine.Stop()
		a.hub.Publish(notify.MappingStatus{Active: false})
	}
	a.state.Reset()
	a.cancel()
	a.cancel = nil
}

// Close stops the application and releases the devices. The App cannot be
// restarted afterwards.
func (a *App) Close() error {
	a.Stop()
	a.hub.Close()

	var errs []error
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	errs = append(errs, a.sink.Close())
	if c, ok := a.analog.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// StartMapping starts the mapping loop, restarting it when it runs.
func (a *App) StartMapping() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.engine.Start(); err != nil {
		return err
	}
	a.hub.Publish(notify.MappingStatus{Active: true})
	return nil
}

// StopMapping stops the mapping loop. Hotkeys keep working.
func (a *App) StopMapping() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.engine.IsActive() {
		return
	}
	a.engine.Stop()
	a.hub.Publish(notify.MappingStatus{Active: false})
}

func (a *App) triggerLoop(ctx context.Context) {
	triggers := a.hotkeys.Triggers()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-triggers:
			if err := a.HandleTrigger(t); err != nil {
				a.logger.Warn("hotkey switch failed", "hotkey", t.Hotkey.String(), "action", t.Action.String(), "error", err)
			}
		}
	}
}

func (a *App) statusLoop(ctx context.Context, status <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case connected, ok := <-status:
			if !ok {
				return
			}
			a.metrics.SetKeyboardConnected(connected)
			a.hub.Publish(notify.KeyboardStatus{Connected: connected})
		}
	}
}

// HandleTrigger applies a fired hotkey.
func (a *App) HandleTrigger(t hotkey.Trigger) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		c   *profile.Compiled
		err error
	)
	switch t.Action {
	case hotkey.ActionSwitch:
		c, err = a.profiles.SwitchProfile(t.ProfileID, t.SubProfileID)
	case hotkey.ActionCycle:
		c, err = a.profiles.CycleSubProfile(t.ProfileID)
	default:
		err = fmt.Errorf("unknown hotkey action %s", t.Action)
	}
	if err != nil {
		return err
	}
	a.refreshLocked(c, true, false)
	a.metrics.RecordSwitch(t.Action.String())
	return nil
}

// SwitchTo activates a sub-profile by profile and sub-profile name or id.
// Empty references pick the first profile or sub-profile.
func (a *App) SwitchTo(profileRef, subRef string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.activateLocked(profileRef, subRef, false); err != nil {
		return err
	}
	a.metrics.RecordSwitch(hotkey.ActionSwitch.String())
	return nil
}

func (a *App) activateLocked(profileRef, subRef string, registerHotkeys bool) error {
	pid, sid, err := a.profiles.Resolve(profileRef, subRef)
	if err != nil {
		return err
	}
	c, err := a.profiles.SwitchProfile(pid, sid)
	if err != nil {
		return err
	}
	a.refreshLocked(c, true, registerHotkeys)
	return nil
}

// SetMapping adds or replaces a mapping of the active sub-profile.
func (a *App) SetMapping(m profile.KeyMapping) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.profiles.SetCurrentMapping(m); err != nil {
		return err
	}
	a.refreshLocked(a.profiles.Current(), false, false)
	return nil
}

// RemoveMapping removes the mapping of keyName from the active sub-profile.
func (a *App) RemoveMapping(keyName string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed, err := a.profiles.RemoveCurrentMapping(keyName)
	if err != nil || !removed {
		return removed, err
	}
	a.refreshLocked(a.profiles.Current(), false, false)
	return true, nil
}

// refreshLocked brings every subsystem in line with a new active table.
// Buttons are cleared on a switch so none stays held across profiles.
func (a *App) refreshLocked(c *profile.Compiled, switched, profilesChanged bool) {
	if switched {
		a.state.SetButtons(0)
	}
	a.hotkeys.SetButtons(c)
	a.engine.SetProfile(c)
	if profilesChanged {
		a.hotkeys.Clear()
		n := a.hotkeys.RegisterAll(hotkey.ProfileBindings(a.profiles.Profiles()))
		a.logger.Debug("hotkeys registered", "count", n)
	}
	a.hub.Publish(notify.SubProfileSwitched{
		ProfileID:      c.ProfileID,
		ProfileName:    c.ProfileName,
		SubProfileID:   c.SubProfileID,
		SubProfileName: c.SubProfileName,
	})
	a.logger.Info("active sub-profile", "profile", c.ProfileName, "sub_profile", c.SubProfileName, "mappings", c.Len())
}

// Current returns the active compiled sub-profile, or nil.
func (a *App) Current() *profile.Compiled {
	return a.engine.Profile()
}

// Config returns the configuration in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Hub returns the notification hub.
func (a *App) Hub() *notify.Hub { return a.hub }

// Health returns the component checker.
func (a *App) Health() *health.Checker { return a.health }

// Metrics returns the Prometheus collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Engine returns the mapping loop.
func (a *App) Engine() *mapping.Engine { return a.engine }

// Hotkeys returns the hotkey manager.
func (a *App) Hotkeys() *hotkey.Manager { return a.hotkeys }

// Monitor returns the diagnostics server, or nil when disabled.
func (a *App) Monitor() *monitor.Server { return a.monitor }

// State returns the shared controller state.
func (a *App) State() *gamepad.SharedState { return a.state }
