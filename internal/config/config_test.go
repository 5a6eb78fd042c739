package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analogpad/internal/curve"
	"analogpad/internal/gamepad"
	"analogpad/internal/keys"
)

const racingTOML = `
version = 1

[engine]
rate_hz = 250

[sink]
backend = "none"

[[profiles]]
name = "Racing"
hotkey = "Ctrl+F5"

[[profiles.sub_profiles]]
name = "Drive"
hotkey = "F6"

[[profiles.sub_profiles.mappings]]
key = "W"
control = "Right Trigger"
dead_zone_inner = 0.1

[profiles.sub_profiles.mappings.curve]
kind = "custom"
points = [{x = 0.0, y = 0.0}, {x = 0.5, y = 0.8}, {x = 1.0, y = 1.0}]

[[profiles.sub_profiles.mappings]]
key = "S"
control = "left_trigger"
dead_zone_outer = 0.9

[active]
profile = "racing"
sub_profile = "Drive"
`

const racingYAML = `
version: 1
engine:
  rate_hz: 250
sink:
  backend: none
profiles:
  - name: Racing
    hotkey: Ctrl+F5
    sub_profiles:
      - name: Drive
        hotkey: F6
        mappings:
          - key: W
            control: Right Trigger
            dead_zone_inner: 0.1
            curve:
              kind: custom
              points:
                - {x: 0, y: 0}
                - {x: 0.5, y: 0.8}
                - {x: 1, y: 1}
          - key: S
            control: left_trigger
            dead_zone_outer: 0.9
active:
  profile: racing
  sub_profile: Drive
`

const racingJSON = `{
  "version": 1,
  "engine": {"rate_hz": 250},
  "sink": {"backend": "none"},
  "profiles": [{
    "name": "Racing",
    "hotkey": "Ctrl+F5",
    "sub_profiles": [{
      "name": "Drive",
      "hotkey": "F6",
      "mappings": [
        {"key": "W", "control": "Right Trigger", "dead_zone_inner": 0.1,
         "curve": {"kind": "custom", "points": [{"x": 0, "y": 0}, {"x": 0.5, "y": 0.8}, {"x": 1, "y": 1}]}},
        {"key": "S", "control": "left_trigger", "dead_zone_outer": 0.9}
      ]
    }]
  }],
  "active": {"profile": "racing", "sub_profile": "Drive"}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, 120, cfg.Engine.RateHz)
	assert.Equal(t, 256, cfg.Engine.BufferCapacity)
	assert.Equal(t, 1000, cfg.Input.QueueCapacity)
	assert.Equal(t, "wooting", cfg.Analog.Backend)
	assert.Equal(t, 120, cfg.Analog.DisconnectCheckFrames)
	assert.Equal(t, "auto", cfg.Sink.Backend)
	assert.Equal(t, "127.0.0.1:9477", cfg.Monitor.ListenAddr)
	assert.Equal(t, 50, cfg.Monitor.StreamIntervalMs)
	assert.Empty(t, cfg.Profiles)
	assert.True(t, strings.HasSuffix(cfg.Logging.FilePath, "analogpad.log"))
}

func TestConfigPath(t *testing.T) {
	t.Setenv("ANALOGPAD_CONFIG", "")
	path := ConfigPath()
	assert.True(t, strings.HasSuffix(path, "config.toml"), path)
	assert.Contains(t, path, "analogpad")

	t.Setenv("ANALOGPAD_CONFIG", "/etc/analogpad.yaml")
	assert.Equal(t, "/etc/analogpad.yaml", ConfigPath())
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Engine, cfg.Engine)
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"config.toml": racingTOML,
		"config.yaml": racingYAML,
		"config.yml":  racingYAML,
		"config.json": racingJSON,
		"config.conf": racingJSON,
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, dir, name, content))
			require.NoError(t, err)

			assert.Equal(t, 250, cfg.Engine.RateHz)
			assert.Equal(t, "none", cfg.Sink.Backend)
			assert.Equal(t, 1000, cfg.Input.QueueCapacity, "unset fields keep defaults")
			assert.Equal(t, "racing", cfg.Active.Profile)

			require.Len(t, cfg.Profiles, 1)
			p := cfg.Profiles[0]
			assert.Equal(t, keys.Hotkey{Key: keys.VKF1 + 4, Modifiers: keys.ModCtrl}, p.Hotkey)
			require.Len(t, p.SubProfiles, 1)
			sp := p.SubProfiles[0]
			assert.Equal(t, keys.Hotkey{Key: keys.VKF1 + 5}, sp.Hotkey)
			require.Len(t, sp.Mappings, 2)

			w := sp.Mappings[0]
			assert.Equal(t, "W", w.KeyName)
			assert.Equal(t, gamepad.RightTrigger, w.Control)
			assert.Equal(t, curve.Custom, w.Curve.Kind)
			assert.Len(t, w.Curve.Points, 3)
			assert.InDelta(t, 0.1, w.DeadZoneInner, 1e-9)
			assert.InDelta(t, 1.0, w.DeadZoneOuter, 1e-9, "omitted outer dead zone means full travel")

			s := sp.Mappings[1]
			assert.Equal(t, gamepad.LeftTrigger, s.Control)
			assert.Equal(t, curve.Linear, s.Curve.Kind)
			assert.InDelta(t, 0.9, s.DeadZoneOuter, 1e-9)
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "[engine\nrate_hz = ")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode TOML")
}

func TestSchemaRejectsUnknownAndMistyped(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"unknown section", "[engin]\nrate_hz = 10\n", "document"},
		{"unknown key", "[engine]\nrate = 10\n", "engine"},
		{"wrong type", "[engine]\nrate_hz = \"fast\"\n", "engine.rate_hz"},
		{"bad enum", "[sink]\nbackend = \"xinput\"\n", "sink.backend"},
		{"mapping without control", "[[profiles]]\nname = \"P\"\n[[profiles.sub_profiles]]\nname = \"S\"\n[[profiles.sub_profiles.mappings]]\nkey = \"W\"\n", "profiles[0].sub_profiles[0].mappings[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "toml")
			require.Error(t, err)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %T: %v", err, err)
			assert.True(t, verrs.Has(tt.field), "fields: %v", verrs)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"rate zero", func(c *Config) { c.Engine.RateHz = 0 }, "engine.rate_hz"},
		{"rate too high", func(c *Config) { c.Engine.RateHz = 5000 }, "engine.rate_hz"},
		{"queue", func(c *Config) { c.Input.QueueCapacity = 0 }, "input.queue_capacity"},
		{"analog backend", func(c *Config) { c.Analog.Backend = "razer" }, "analog.backend"},
		{"sink backend", func(c *Config) { c.Sink.Backend = "xinput" }, "sink.backend"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log file", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"monitor addr", func(c *Config) { c.Monitor.Enabled = true; c.Monitor.ListenAddr = "9477" }, "monitor.listen_addr"},
		{"version", func(c *Config) { c.Version = 9 }, "version"},
		{"active profile", func(c *Config) { c.Active.Profile = "Nope" }, "active"},
		{"active sub-profile", func(c *Config) { c.Active.SubProfile = "Nope" }, "active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.True(t, verrs.Has(tt.field), "fields: %v", verrs)
		})
	}

	cfg := DefaultConfig()
	cfg.Active.SubProfile = "movement"
	assert.NoError(t, cfg.Validate(), "the built-in profile is selectable by name")
}

func TestValidateDuplicateProfiles(t *testing.T) {
	cfg, err := Parse([]byte(racingJSON), "json")
	require.NoError(t, err)
	cfg.Profiles = append(cfg.Profiles, cfg.Profiles[0].Clone())

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate profile")
}

func TestValidationErrorsJoin(t *testing.T) {
	errs := ValidationErrors{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}
	assert.Equal(t, "config: a: x; config: b: y", errs.Error())
	assert.Empty(t, ValidationErrors{}.Error())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ANALOGPAD_LOG_LEVEL", "DEBUG")
	t.Setenv("ANALOGPAD_LOG_FORMAT", "json")
	t.Setenv("ANALOGPAD_RATE_HZ", "240")
	t.Setenv("ANALOGPAD_MONITOR_ADDR", "127.0.0.1:9999")
	t.Setenv("ANALOGPAD_SINK", "none")
	t.Setenv("ANALOGPAD_ANALOG_LIBRARY", "/opt/wooting/libwooting_analog_sdk.so")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnvOverrides())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 240, cfg.Engine.RateHz)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Monitor.ListenAddr)
	assert.Equal(t, "none", cfg.Sink.Backend)
	assert.Equal(t, "/opt/wooting/libwooting_analog_sdk.so", cfg.Analog.LibraryPath)

	t.Setenv("ANALOGPAD_RATE_HZ", "fast")
	assert.Error(t, DefaultConfig().ApplyEnvOverrides())
}

func TestLoadAppliesEnvAndValidates(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", racingTOML)
	t.Setenv("ANALOGPAD_RATE_HZ", "0")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.rate_hz")
}

func TestClone(t *testing.T) {
	cfg, err := Parse([]byte(racingJSON), "json")
	require.NoError(t, err)
	cfg.Input.Devices = []string{"/dev/input/event3"}

	clone := cfg.Clone()
	clone.Input.Devices[0] = "/dev/input/event9"
	clone.Profiles[0].SubProfiles[0].Mappings[0].KeyName = "Q"
	clone.Engine.RateHz = 60

	assert.Equal(t, "/dev/input/event3", cfg.Input.Devices[0])
	assert.Equal(t, "W", cfg.Profiles[0].SubProfiles[0].Mappings[0].KeyName)
	assert.Equal(t, 250, cfg.Engine.RateHz)
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "document", fieldPath(""))
	assert.Equal(t, "engine.rate_hz", fieldPath("/engine/rate_hz"))
	assert.Equal(t, "profiles[0].sub_profiles[2].name", fieldPath("/profiles/0/sub_profiles/2/name"))
}

func TestSchemaCompiles(t *testing.T) {
	s, err := Schema()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Contains(t, string(SchemaJSON()), `"rate_hz"`)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", "[engine]\nrate_hz = 100\n")

	l := NewLoader(path, nil)
	defer l.Close()
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Engine.RateHz)

	changes := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changes <- c })
	require.NoError(t, l.Watch())

	writeFile(t, dir, "config.toml", "[engine]\nrate_hz = 200\n")
	select {
	case c := <-changes:
		assert.Equal(t, 200, c.Engine.RateHz)
		assert.Equal(t, 200, l.Config().Engine.RateHz)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}

	writeFile(t, dir, "config.toml", "[engine]\nrate_hz = 0\n")
	select {
	case err := <-l.Errors():
		assert.Contains(t, err.Error(), "engine.rate_hz")
	case <-time.After(3 * time.Second):
		t.Fatal("invalid reload not reported")
	}
	assert.Equal(t, 200, l.Config().Engine.RateHz, "an invalid file keeps the running config")

	writeFile(t, dir, "other.toml", "[engine]\nrate_hz = 300\n")
	select {
	case c := <-changes:
		t.Fatalf("unrelated file triggered reload: %d", c.Engine.RateHz)
	case <-time.After(300 * time.Millisecond):
	}
}
