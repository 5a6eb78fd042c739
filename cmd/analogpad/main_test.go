package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analogpad/internal/curve"
	"analogpad/internal/logging"
)

func TestParsePoints(t *testing.T) {
	pts, err := parsePoints("0,0; 0.5,0.8 ;1,1;")
	require.NoError(t, err)
	assert.Equal(t, []curve.Point{{X: 0, Y: 0}, {X: 0.5, Y: 0.8}, {X: 1, Y: 1}}, pts)

	for _, bad := range []string{"", ";", "0.5", "a,1", "1,b"} {
		_, err := parsePoints(bad)
		assert.Error(t, err, bad)
	}
}

func TestCurveLinear(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, cmdCurve([]string{"-steps", "4"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], "INPUT")
	assert.Contains(t, lines[3], "0.500")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[5]), "1.000"))
}

func TestCurveCustomWithDeadZones(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, cmdCurve([]string{"-points", "0,0;1,1", "-inner", "0.5", "-steps", "2"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	// 0.5 sits on the inner dead zone.
	assert.Contains(t, lines[2], "0.000")
}

func TestCurveRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, cmdCurve([]string{"-points", "0,0;2,1"}, &out))
	assert.Error(t, cmdCurve([]string{"-inner", "0.9", "-outer", "0.5"}, &out))
	assert.Error(t, cmdCurve([]string{"-steps", "0"}, &out))
}

func TestKeysAndControls(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, cmdKeys(&out))
	assert.Contains(t, out.String(), "Space")
	assert.Contains(t, out.String(), "0x57")

	out.Reset()
	require.NoError(t, cmdControls(&out))
	assert.Contains(t, out.String(), "Left Stick Up")
	assert.Contains(t, out.String(), "button")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	doc := `version = 1

[[profiles]]
name = "Racing"
hotkey = "F5"

[[profiles.sub_profiles]]
name = "Road"
hotkey = "Ctrl+F6"

[[profiles.sub_profiles.mappings]]
key = "W"
control = "Right Trigger"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	var out bytes.Buffer
	require.NoError(t, cmdValidate([]string{"-config", path}, &out))
	assert.Contains(t, out.String(), "valid")
	assert.Contains(t, out.String(), "Racing")
	assert.Contains(t, out.String(), "Road")
	assert.Contains(t, out.String(), "Ctrl + F6")
}

func TestValidateReportsProblems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n[engine]\nrate_hz = 5000\n"), 0o644))

	var out bytes.Buffer
	err := cmdValidate([]string{"-config", path}, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "engine.rate_hz")
}

func TestValidateMissingFileUsesDefaults(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "absent.toml")
	require.NoError(t, cmdValidate([]string{"-config", path}, &out))
	assert.Contains(t, out.String(), "built-in default")
}

func TestCrashesCommand(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, cmdCrashes([]string{"-dir", dir}, &out))
	assert.Contains(t, out.String(), "No crash reports")

	h := logging.NewCrashHandler(logging.CrashHandlerConfig{CrashDir: dir, Version: "1.2.3"})
	h.HandlePanic("mapping", "index out of range", nil)

	out.Reset()
	require.NoError(t, cmdCrashes([]string{"-dir", dir}, &out))
	assert.Contains(t, out.String(), "COMPONENT")
	assert.Contains(t, out.String(), "mapping")
	assert.Contains(t, out.String(), "1.2.3")
	assert.Contains(t, out.String(), "index out of range")
}
