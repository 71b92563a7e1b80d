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
	"fmt"
)

type Config struct {
	Host           string                 `yaml:"host"`
	Port           int                    `yaml:"port"`
	SlaveID        byte                   `yaml:"slave_id"`
	TimeoutSeconds int                    `yaml:"timeout_seconds"`
	Registers      map[string]RegisterDef `yaml:"registers"`
}

type RegisterDef struct {
	Address     uint16  `yaml:"address"`
	Type        string  `yaml:"type"`      // "holding" or "coil"
	DataType    string  `yaml:"data_type"` // holding only: "uint16", "int16", "bool", "float32"
	Scale       float64 `yaml:"scale"`     // if set, value = raw*scale + offset
	Offset      float64 `yaml:"offset"`
	Description string  `yaml:"description"`
	Writable    bool    `yaml:"writable"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the register map without touching the network.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("modbus host is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("modbus port %d is invalid", c.Port)
	}
	for name, reg := range c.Registers {
		switch reg.Type {
		case "coil":
		case "holding", "":
			if _, err := registerCount(reg.DataType); err != nil {
				return fmt.Errorf("register %q: %w", name, err)
			}
		default:
			return fmt.Errorf("register %q: unsupported type %q", name, reg.Type)
		}
	}
	return nil
}

// Register looks up a named register.
func (c *Config) Register(name string) (RegisterDef, error) {
	reg, ok := c.Registers[name]
	if !ok {
		return RegisterDef{}, fmt.Errorf("register %q not configured", name)
	}
	return reg, nil
}
