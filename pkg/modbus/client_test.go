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

package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice keeps coils and holding registers in memory.
type fakeDevice struct {
	coils    map[uint16]bool
	holding  map[uint16]uint16
	failNext error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{coils: map[uint16]bool{}, holding: map[uint16]uint16{}}
}

func (f *fakeDevice) takeErr() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeDevice) ReadHoldingRegisters(_ context.Context, address, quantity uint16) ([]byte, error) {
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	var out []byte
	for i := uint16(0); i < quantity; i++ {
		out = binary.BigEndian.AppendUint16(out, f.holding[address+i])
	}
	return out, nil
}

func (f *fakeDevice) WriteMultipleRegisters(_ context.Context, address, quantity uint16, value []byte) ([]byte, error) {
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	for i := uint16(0); i < quantity; i++ {
		f.holding[address+i] = binary.BigEndian.Uint16(value[2*i:])
	}
	return nil, nil
}

func (f *fakeDevice) ReadCoils(_ context.Context, address, _ uint16) ([]byte, error) {
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	if f.coils[address] {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func (f *fakeDevice) WriteSingleCoil(_ context.Context, address, value uint16) ([]byte, error) {
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	f.coils[address] = value == coilOn
	return nil, nil
}

func testConfig() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: 502,
		Registers: map[string]RegisterDef{
			"fan_relay":   {Address: 3, Type: "coil", Writable: true},
			"return_temp": {Address: 10, Type: "holding", DataType: "int16", Scale: 0.1},
			"flow_float":  {Address: 20, Type: "holding", DataType: "float32", Writable: true},
			"read_only":   {Address: 30, Type: "holding", DataType: "uint16"},
		},
	}
}

func TestCoilRoundTrip(t *testing.T) {
	dev := newFakeDevice()
	c := newClientWithIO(testConfig(), dev)
	ctx := context.Background()

	require.NoError(t, c.WriteBool(ctx, "fan_relay", true))
	on, err := c.ReadBool(ctx, "fan_relay")
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, c.WriteBool(ctx, "fan_relay", false))
	on, err = c.ReadBool(ctx, "fan_relay")
	require.NoError(t, err)
	assert.False(t, on)
}

func TestScaledHoldingRegister(t *testing.T) {
	dev := newFakeDevice()
	v := int16(-125)
	dev.holding[10] = uint16(v)
	c := newClientWithIO(testConfig(), dev)

	got, err := c.ReadFloat(context.Background(), "return_temp")
	require.NoError(t, err)
	assert.InDelta(t, -12.5, got, 1e-9)
}

func TestFloat32Register(t *testing.T) {
	dev := newFakeDevice()
	c := newClientWithIO(testConfig(), dev)
	ctx := context.Background()

	require.NoError(t, c.WriteFloat(ctx, "flow_float", 3.25))
	bits := uint32(dev.holding[20])<<16 | uint32(dev.holding[21])
	assert.Equal(t, float32(3.25), math.Float32frombits(bits))

	got, err := c.ReadFloat(ctx, "flow_float")
	require.NoError(t, err)
	assert.InDelta(t, 3.25, got, 1e-6)
}

func TestWriteRejectsReadOnlyAndUnknown(t *testing.T) {
	c := newClientWithIO(testConfig(), newFakeDevice())
	ctx := context.Background()

	assert.Error(t, c.WriteFloat(ctx, "read_only", 1))
	assert.Error(t, c.WriteBool(ctx, "missing", true))
	_, err := c.ReadFloat(ctx, "fan_relay")
	assert.Error(t, err)
}

func TestDeviceErrorSurfaces(t *testing.T) {
	dev := newFakeDevice()
	dev.failNext = errors.New("illegal data address")
	c := newClientWithIO(testConfig(), dev)

	_, err := c.ReadBool(context.Background(), "fan_relay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal data address")
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.Registers["bad"] = RegisterDef{Type: "holding", DataType: "int64"}
	assert.Error(t, cfg.Validate())

	assert.Error(t, (&Config{Port: 502}).Validate())
}

func TestIsConnError(t *testing.T) {
	assert.True(t, isConnError(errors.New("read tcp: connection reset by peer")))
	assert.False(t, isConnError(errors.New("illegal data address")))
	assert.False(t, isConnError(nil))
}
