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
	"fmt"
	"math"
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// ReadFloat reads a holding register and applies its scale and offset.
func (c *Client) ReadFloat(ctx context.Context, name string) (float64, error) {
	reg, err := c.config.Register(name)
	if err != nil {
		return 0, err
	}
	if reg.Type == "coil" {
		return 0, fmt.Errorf("register %q is a coil", name)
	}

	n, err := registerCount(reg.DataType)
	if err != nil {
		return 0, fmt.Errorf("register %q: %w", name, err)
	}

	var raw []byte
	err = c.retry(ctx, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		var rerr error
		raw, rerr = c.client.ReadHoldingRegisters(ctx, reg.Address, n)
		return rerr
	})
	if err != nil {
		return 0, fmt.Errorf("register read failed for %s: %w", name, err)
	}
	if len(raw) < int(n*2) {
		return 0, fmt.Errorf("register %q returned insufficient data", name)
	}

	var v float64
	switch reg.DataType {
	case "float32":
		v = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
	case "int16":
		v = float64(int16(binary.BigEndian.Uint16(raw)))
	case "uint16", "bool":
		v = float64(binary.BigEndian.Uint16(raw))
	}
	if reg.Scale != 0 {
		v = v*reg.Scale + reg.Offset
	}
	return v, nil
}

// ReadBool reads a coil, or a holding register as non-zero.
func (c *Client) ReadBool(ctx context.Context, name string) (bool, error) {
	reg, err := c.config.Register(name)
	if err != nil {
		return false, err
	}
	if reg.Type != "coil" {
		v, err := c.ReadFloat(ctx, name)
		return v != 0, err
	}

	var raw []byte
	err = c.retry(ctx, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		var rerr error
		raw, rerr = c.client.ReadCoils(ctx, reg.Address, 1)
		return rerr
	})
	if err != nil {
		return false, fmt.Errorf("coil read failed for %s: %w", name, err)
	}
	if len(raw) < 1 {
		return false, fmt.Errorf("coil %q returned no data", name)
	}
	return raw[0]&0x01 != 0, nil
}

// WriteBool drives a coil, or writes 0/1 to a holding register.
func (c *Client) WriteBool(ctx context.Context, name string, on bool) error {
	reg, err := c.config.Register(name)
	if err != nil {
		return err
	}
	if !reg.Writable {
		return fmt.Errorf("register %q is not writable", name)
	}
	c.log.Info("Write '%s' <- %v", name, on)

	if reg.Type != "coil" {
		v := 0.0
		if on {
			v = 1
		}
		return c.WriteFloat(ctx, name, v)
	}

	value := coilOff
	if on {
		value = coilOn
	}
	return c.retry(ctx, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, werr := c.client.WriteSingleCoil(ctx, reg.Address, value)
		if werr != nil {
			return fmt.Errorf("failed to write coil %q: %w", name, werr)
		}
		return nil
	})
}

// WriteFloat writes a holding register, undoing scale and offset first.
func (c *Client) WriteFloat(ctx context.Context, name string, value float64) error {
	reg, err := c.config.Register(name)
	if err != nil {
		return err
	}
	if !reg.Writable {
		return fmt.Errorf("register %q is not writable", name)
	}
	if reg.Scale != 0 {
		value = (value - reg.Offset) / reg.Scale
	}

	var raw []byte
	var n uint16
	switch reg.DataType {
	case "float32":
		if value > math.MaxFloat32 || value < -math.MaxFloat32 {
			return fmt.Errorf("value %v out of float32 range for register %q", value, name)
		}
		raw = binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(value)))
		n = 2
	case "int16":
		iv := int64(math.Round(value))
		if iv < math.MinInt16 || iv > math.MaxInt16 {
			return fmt.Errorf("value %v out of int16 range for register %q", value, name)
		}
		raw = binary.BigEndian.AppendUint16(nil, uint16(iv))
		n = 1
	case "uint16", "bool":
		iv := math.Round(value)
		if iv < 0 || iv > math.MaxUint16 {
			return fmt.Errorf("value %v out of uint16 range for register %q", value, name)
		}
		raw = binary.BigEndian.AppendUint16(nil, uint16(iv))
		n = 1
	default:
		return fmt.Errorf("unsupported data type %q for register %q", reg.DataType, name)
	}

	return c.retry(ctx, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, werr := c.client.WriteMultipleRegisters(ctx, reg.Address, n, raw)
		if werr != nil {
			return fmt.Errorf("failed to write register %q: %w", name, werr)
		}
		return nil
	})
}

func registerCount(dataType string) (uint16, error) {
	switch dataType {
	case "uint16", "int16", "bool":
		return 1, nil
	case "float32":
		return 2, nil
	}
	return 0, fmt.Errorf("unsupported data type %q", dataType)
}
