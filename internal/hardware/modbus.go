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
	"time"
)

const modbusTimeout = 3 * time.Second

// ModbusSensor reads a named holding register, scaled by the register map.
type ModbusSensor struct {
	client   RegisterClient
	register string
}

func NewModbusSensor(client RegisterClient, register string) *ModbusSensor {
	return &ModbusSensor{client: client, register: register}
}

func (s *ModbusSensor) ReadTemperature() (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), modbusTimeout)
	defer cancel()
	v, err := s.client.ReadFloat(ctx, s.register)
	if err != nil {
		return 0, &SensorFault{Source: "modbus:" + s.register, Err: err}
	}
	return v, nil
}

// ModbusRelay drives a named coil on a remote I/O module.
type ModbusRelay struct {
	client   RegisterClient
	register string
}

func NewModbusRelay(client RegisterClient, register string) *ModbusRelay {
	return &ModbusRelay{client: client, register: register}
}

func (r *ModbusRelay) SetOutput(on bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), modbusTimeout)
	defer cancel()
	if err := r.client.WriteBool(ctx, r.register, on); err != nil {
		return &ActuatorFault{Driver: "modbus:" + r.register, Err: err}
	}
	return nil
}

func (r *ModbusRelay) ReadOutput() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), modbusTimeout)
	defer cancel()
	on, err := r.client.ReadBool(ctx, r.register)
	if err != nil {
		return false, &ActuatorFault{Driver: "modbus:" + r.register, Err: err}
	}
	return on, nil
}
