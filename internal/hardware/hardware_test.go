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

package hardware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watches/internal/config"
)

func TestSimSensorDeterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewSimSensor(config.SimConfig{Mean: 160, Amplitude: 40, PeriodSeconds: 400}, clock)

	v, err := s.ReadTemperature()
	require.NoError(t, err)
	assert.InDelta(t, 160, v, 1e-9)

	now = now.Add(100 * time.Second) // quarter period
	v, err = s.ReadTemperature()
	require.NoError(t, err)
	assert.InDelta(t, 200, v, 1e-9)
}

func TestSimSensorNoiseBounded(t *testing.T) {
	s := NewSimSensor(config.SimConfig{Mean: 70, Noise: 2, PeriodSeconds: 60}, nil)
	for i := 0; i < 100; i++ {
		v, err := s.ReadTemperature()
		require.NoError(t, err)
		assert.InDelta(t, 70, v, 2)
	}
}

func TestSimSensorFaultInjection(t *testing.T) {
	s := NewSimSensor(config.SimConfig{Mean: 70, FaultEvery: 5, PeriodSeconds: 60}, nil)
	for i := 1; i <= 10; i++ {
		_, err := s.ReadTemperature()
		if i%5 == 0 {
			var fault *SensorFault
			require.ErrorAs(t, err, &fault, "read %d", i)
			assert.Equal(t, "sim", fault.Source)
		} else {
			require.NoError(t, err, "read %d", i)
		}
	}
}

func writeW1(t *testing.T, dir, device, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, device), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, device, "w1_slave"), []byte(body), 0o644))
}

func TestW1Sensor(t *testing.T) {
	dir := t.TempDir()
	const dev = "28-000005e2fdc3"
	s, err := NewW1Sensor(dir, dev)
	require.NoError(t, err)

	writeW1(t, dir, dev, "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n")
	v, err := s.ReadTemperature()
	require.NoError(t, err)
	assert.InDelta(t, 23.125, v, 1e-9)

	writeW1(t, dir, dev, "72 01 4b 46 7f ff 0e 10 57 : crc=57 NO\n72 01 4b 46 7f ff 0e 10 57 t=23125\n")
	_, err = s.ReadTemperature()
	var fault *SensorFault
	require.ErrorAs(t, err, &fault)
	assert.Contains(t, err.Error(), "crc")

	writeW1(t, dir, dev, "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n")
	_, err = s.ReadTemperature()
	assert.ErrorAs(t, err, &fault)
}

func TestW1SensorMissingDevice(t *testing.T) {
	s, err := NewW1Sensor(t.TempDir(), "28-gone")
	require.NoError(t, err)
	_, err = s.ReadTemperature()
	var fault *SensorFault
	require.ErrorAs(t, err, &fault)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSoftRelay(t *testing.T) {
	r := NewSoftRelay()
	on, err := r.ReadOutput()
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, r.SetOutput(true))
	on, _ = r.ReadOutput()
	assert.True(t, on)
}

type fakeRegisters struct {
	values map[string]float64
	coils  map[string]bool
	err    error
}

func (f *fakeRegisters) ReadFloat(_ context.Context, name string) (float64, error) {
	return f.values[name], f.err
}

func (f *fakeRegisters) ReadBool(_ context.Context, name string) (bool, error) {
	return f.coils[name], f.err
}

func (f *fakeRegisters) WriteBool(_ context.Context, name string, on bool) error {
	if f.err != nil {
		return f.err
	}
	f.coils[name] = on
	return nil
}

func TestModbusDevices(t *testing.T) {
	regs := &fakeRegisters{values: map[string]float64{"attic_temp": 81.5}, coils: map[string]bool{}}

	s := NewModbusSensor(regs, "attic_temp")
	v, err := s.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, 81.5, v)

	r := NewModbusRelay(regs, "fan")
	require.NoError(t, r.SetOutput(true))
	on, err := r.ReadOutput()
	require.NoError(t, err)
	assert.True(t, on)

	regs.err = errors.New("gateway target failed to respond")
	_, err = s.ReadTemperature()
	var sf *SensorFault
	assert.ErrorAs(t, err, &sf)

	err = r.SetOutput(false)
	var af *ActuatorFault
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "modbus:fan", af.Driver)
}

func TestFactories(t *testing.T) {
	cfg := config.Default()

	s, err := NewSensor(cfg.Sensor, nil)
	require.NoError(t, err)
	assert.IsType(t, &SimSensor{}, s)

	r, err := NewRelay(cfg.Fan, nil)
	require.NoError(t, err)
	assert.IsType(t, &SoftRelay{}, r)
	assert.NoError(t, Close(r))

	cfg.Fan.Driver = "modbus"
	_, err = NewRelay(cfg.Fan, nil)
	assert.Error(t, err)

	cfg.Sensor.Source = "bogus"
	_, err = NewSensor(cfg.Sensor, nil)
	assert.Error(t, err)
}
