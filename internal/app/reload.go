package app

import (
	"context"
	"fmt"
	"slices"

	"analogpad/internal/config"
	"analogpad/internal/notify"
)

// Watch applies every configuration the loader reloads and records reload
// failures the loader reports until ctx is done. It returns once the
// watcher is started.
func (a *App) Watch(ctx context.Context, loader *config.Loader) error {
	loader.OnChange(func(cfg *config.Config) {
		if err := a.ApplyConfig(cfg); err != nil {
			a.logger.Error("apply reloaded configuration", "error", err)
		}
	})
	if err := loader.Watch(); err != nil {
		return err
	}
	a.crash.Go("config-errors", func() {
		errs := loader.Errors()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				a.metrics.RecordReload(err)
			}
		}
	})
	return nil
}

// ApplyConfig hot-applies a reloaded configuration. Profiles are replaced
// and the active sub-profile is swapped without stopping the mapping loop;
// a changed engine section restarts the loop. Sections that need a restart
// of the daemon are logged and otherwise ignored.
func (a *App) ApplyConfig(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.applyConfigLocked(cfg.Clone())
	a.metrics.RecordReload(err)
	return err
}

func (a *App) applyConfigLocked(cfg *config.Config) error {
	c, err := a.profiles.Replace(cfg.Profiles)
	if err != nil {
		return fmt.Errorf("replace profiles: %w", err)
	}
	a.refreshLocked(c, true, true)

	if cfg.Engine != a.cfg.Engine {
		wasActive := a.engine.IsActive()
		if err := a.engine.Reconfigure(EngineConfig(cfg.Engine)); err != nil {
			a.hub.Publish(notify.MappingStatus{Active: false})
			a.cfg = cfg
			return fmt.Errorf("reconfigure engine: %w", err)
		}
		a.logger.Info("mapping loop reconfigured", "rate_hz", cfg.Engine.RateHz, "restarted", wasActive)
	}

	if fields := restartRequired(a.cfg, cfg); len(fields) > 0 {
		a.logger.Warn("configuration changes take effect after restart", "sections", fields)
	}
	a.cfg = cfg
	return nil
}

// restartRequired lists changed sections that are only read at startup.
func restartRequired(old, cur *config.Config) []string {
	var out []string
	if old.Logging != cur.Logging {
		out = append(out, "logging")
	}
	if old.Input.QueueCapacity != cur.Input.QueueCapacity ||
		old.Input.Grab != cur.Input.Grab ||
		!slices.Equal(old.Input.Devices, cur.Input.Devices) {
		out = append(out, "input")
	}
	if old.Analog != cur.Analog {
		out = append(out, "analog")
	}
	if old.Sink != cur.Sink {
		out = append(out, "sink")
	}
	if old.Monitor != cur.Monitor {
		out = append(out, "monitor")
	}
	if old.Notify != cur.Notify {
		out = append(out, "notify")
	}
	return out
}
