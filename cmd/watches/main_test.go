// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigPath(t *testing.T, path string) {
	old := *configPath
	*configPath = path
	t.Cleanup(func() { *configPath = old })
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "watches.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAllWithoutFile(t *testing.T) {
	withConfigPath(t, defaultConfig)

	cfg, err := loadConfig(allCmd.FullCommand())
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Bus.Transport)
	assert.Equal(t, "sim", cfg.Sensor.Source)
	assert.Equal(t, "soft", cfg.Fan.Driver)
	assert.Equal(t, 175.0, cfg.Plant.SetPoint)
}

func TestLoadConfigAllOverridesHardware(t *testing.T) {
	withConfigPath(t, writeConfig(t, `
plant:
  set_point: 150
sensor:
  source: w1
  unit: C
  w1_device: 28-abc
fan:
  driver: gpio
  gpio_pin: 17
bus:
  transport: nats
  telemetry_url: nats://localhost:4222
`))

	cfg, err := loadConfig(allCmd.FullCommand())
	require.NoError(t, err)
	assert.Equal(t, 150.0, cfg.Plant.SetPoint)
	assert.Equal(t, "memory", cfg.Bus.Transport)
	assert.Equal(t, "sim", cfg.Sensor.Source)
	assert.Equal(t, "F", cfg.Sensor.Unit)
	assert.Equal(t, "soft", cfg.Fan.Driver)
}

func TestLoadConfigRolesNeedFile(t *testing.T) {
	withConfigPath(t, filepath.Join(t.TempDir(), "missing.yaml"))

	for _, cmd := range []string{plantCmd.FullCommand(), sensorCmd.FullCommand(), fanCmd.FullCommand()} {
		_, err := loadConfig(cmd)
		assert.Error(t, err, cmd)
	}
	// an explicit path is honoured even for "all"
	_, err := loadConfig(allCmd.FullCommand())
	assert.Error(t, err)
}

func TestLoadConfigRoleKeepsTransport(t *testing.T) {
	withConfigPath(t, writeConfig(t, `
bus:
  transport: mqtt
  telemetry_url: tcp://broker:1883
`))

	cfg, err := loadConfig(plantCmd.FullCommand())
	require.NoError(t, err)
	assert.Equal(t, "mqtt", cfg.Bus.Transport)
	assert.Equal(t, "tcp://broker:1883", cfg.Bus.CommandURL)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
