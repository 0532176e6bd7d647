package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
stations:
  - name: roof
    serialdevice: /dev/ttyUSB0
    baud: 19200
  - name: barn
    hostname: 10.0.0.20
    port: "22222"
    read-timeout-seconds: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Stations, 2)

	roof, err := cfg.Station("roof")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", roof.SerialDevice)
	assert.Equal(t, 19200, roof.Baud)

	barn, err := cfg.Station("barn")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.20", barn.Hostname)
	assert.Equal(t, 5, barn.ReadTimeoutSeconds)
}

func TestLoadRejectsUnreachableStation(t *testing.T) {
	path := writeConfig(t, `
stations:
  - name: nowhere
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestStationDefaultsToOnlyEntry(t *testing.T) {
	path := writeConfig(t, `
stations:
  - name: roof
    serialdevice: /dev/ttyUSB0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	s, err := cfg.Station("")
	require.NoError(t, err)
	assert.Equal(t, "roof", s.Name)

	_, err = cfg.Station("missing")
	assert.Error(t, err)
}
