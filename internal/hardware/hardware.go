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

// Package hardware hides where temperatures come from and what drives the fan.
// Agents depend only on TemperatureSensor and Relay; the concrete kind is
// chosen once from configuration.
package hardware

import (
	"context"
	"fmt"

	"watches/internal/config"
	"watches/pkg/logger"
	"watches/pkg/modbus"
)

type TemperatureSensor interface {
	// ReadTemperature returns a raw reading in the sensor's native unit.
	// Failures are *SensorFault.
	ReadTemperature() (float64, error)
}

type Relay interface {
	// SetOutput fails with *ActuatorFault.
	SetOutput(on bool) error
	ReadOutput() (bool, error)
}

type SensorFault struct {
	Source string
	Err    error
}

func (f *SensorFault) Error() string {
	return fmt.Sprintf("sensor %s: %v", f.Source, f.Err)
}

func (f *SensorFault) Unwrap() error { return f.Err }

type ActuatorFault struct {
	Driver string
	Err    error
}

func (f *ActuatorFault) Error() string {
	return fmt.Sprintf("relay %s: %v", f.Driver, f.Err)
}

func (f *ActuatorFault) Unwrap() error { return f.Err }

// NewSensor builds the configured sensor. mb is only used by the modbus source.
func NewSensor(cfg config.SensorConfig, mb RegisterClient) (TemperatureSensor, error) {
	switch cfg.Source {
	case "sim":
		return NewSimSensor(cfg.Sim, nil), nil
	case "w1":
		return NewW1Sensor(cfg.W1BaseDir, cfg.W1Device)
	case "modbus":
		if mb == nil {
			return nil, fmt.Errorf("modbus sensor needs a modbus connection")
		}
		return NewModbusSensor(mb, cfg.ModbusRegister), nil
	}
	return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
}

// NewRelay builds the configured relay. A GPIO relay that cannot be opened
// degrades to a software relay so the fan agent keeps answering.
func NewRelay(cfg config.FanConfig, mb RegisterClient) (Relay, error) {
	log := logger.New("Hardware")
	switch cfg.Driver {
	case "soft":
		return NewSoftRelay(), nil
	case "gpio":
		r, err := OpenGPIORelay(cfg.GPIOPin, cfg.ActiveHigh)
		if err != nil {
			log.Warn("GPIO unavailable, tracking fan state in software: %v", err)
			return NewSoftRelay(), nil
		}
		return r, nil
	case "modbus":
		if mb == nil {
			return nil, fmt.Errorf("modbus relay needs a modbus connection")
		}
		return NewModbusRelay(mb, cfg.ModbusRegister), nil
	}
	return nil, fmt.Errorf("unknown fan driver %q", cfg.Driver)
}

// Close releases hardware held by r or s, if any.
func Close(v any) error {
	if c, ok := v.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// RegisterClient is the part of *modbus.Client the modbus devices use.
type RegisterClient interface {
	ReadFloat(ctx context.Context, name string) (float64, error)
	ReadBool(ctx context.Context, name string) (bool, error)
	WriteBool(ctx context.Context, name string, on bool) error
}

var _ RegisterClient = (*modbus.Client)(nil)
