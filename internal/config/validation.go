package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"analogpad/internal/profile"
	"analogpad/internal/virtualpad"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any error concerns field.
func (e ValidationErrors) Has(field string) bool {
	for _, v := range e {
		if v.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig performs field validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version < 1 || c.Version > Version {
		add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", "invalid level %q (valid: debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "invalid format %q (valid: text, json)", c.Logging.Format)
	}
	switch c.Logging.Output {
	case "stderr", "stdout":
	case "file":
		if c.Logging.FilePath == "" {
			add("logging.file_path", "required when output is file")
		}
	default:
		add("logging.output", "invalid output %q (valid: stderr, stdout, file)", c.Logging.Output)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxAgeDays < 0 || c.Logging.MaxBackups < 0 {
		add("logging", "rotation limits cannot be negative")
	}

	if c.Engine.RateHz < 1 || c.Engine.RateHz > 1000 {
		add("engine.rate_hz", "must be between 1 and 1000, got %d", c.Engine.RateHz)
	}
	if c.Engine.WarnBudgetUs < 0 {
		add("engine.warn_budget_us", "cannot be negative")
	}
	if c.Engine.BufferCapacity < 1 {
		add("engine.buffer_capacity", "must be positive")
	}

	if c.Input.QueueCapacity < 1 {
		add("input.queue_capacity", "must be positive")
	}
	for i, dev := range c.Input.Devices {
		if strings.TrimSpace(dev) == "" {
			add(fmt.Sprintf("input.devices[%d]", i), "path cannot be empty")
		}
	}

	switch c.Analog.Backend {
	case "wooting", "simulated":
	default:
		add("analog.backend", "invalid backend %q (valid: wooting, simulated)", c.Analog.Backend)
	}
	if c.Analog.DisconnectCheckFrames < 1 {
		add("analog.disconnect_check_frames", "must be positive")
	}

	switch c.Sink.Backend {
	case virtualpad.BackendAuto, virtualpad.BackendUinput, virtualpad.BackendViGEm, virtualpad.BackendNone:
	default:
		add("sink.backend", "invalid backend %q (valid: auto, uinput, vigem, none)", c.Sink.Backend)
	}

	if c.Monitor.Enabled {
		if _, _, err := net.SplitHostPort(c.Monitor.ListenAddr); err != nil {
			add("monitor.listen_addr", "invalid address %q: %v", c.Monitor.ListenAddr, err)
		}
	}
	if c.Monitor.StreamIntervalMs < 1 {
		add("monitor.stream_interval_ms", "must be positive")
	}

	if c.Notify.Desktop && strings.TrimSpace(c.Notify.AppName) == "" {
		add("notify.app_name", "required when desktop notifications are enabled")
	}

	errs = append(errs, validateProfiles(c)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateProfiles checks every definition and that the active selection
// names something that exists.
func validateProfiles(c *Config) ValidationErrors {
	var errs ValidationErrors

	seen := make(map[string]bool, len(c.Profiles))
	for i := range c.Profiles {
		p := c.Profiles[i].Clone()
		field := fmt.Sprintf("profiles[%d]", i)
		if err := p.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
			continue
		}
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if seen[name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate profile %q", p.Name)})
		}
		seen[name] = true
	}
	if len(errs) > 0 || c.Active.Profile == "" && c.Active.SubProfile == "" {
		return errs
	}

	mgr, err := profile.NewManager(c.Profiles, slog.New(slog.DiscardHandler))
	if err != nil {
		return append(errs, ValidationError{Field: "profiles", Message: err.Error()})
	}
	if _, _, err := mgr.Resolve(c.Active.Profile, c.Active.SubProfile); err != nil {
		errs = append(errs, ValidationError{Field: "active", Message: err.Error()})
	}
	return errs
}
