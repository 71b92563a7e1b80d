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

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"watches/pkg/modbus"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type PlantConfig struct {
	SetPoint   float64 `yaml:"set_point"`
	Hysteresis float64 `yaml:"hysteresis"`

	LoopIntervalSeconds      float64 `yaml:"loop_interval_seconds"`
	FanPollIntervalSeconds   float64 `yaml:"fan_poll_interval_seconds"`
	StateReplyTimeoutSeconds float64 `yaml:"state_reply_timeout_seconds"`

	// 0 disables the cap on corrective re-commands
	MaxConsecutiveMismatches int `yaml:"max_consecutive_mismatches"`

	HistoryWindowSeconds int    `yaml:"history_window_seconds"`
	HTTPAddr             string `yaml:"http_addr"`
}

type SimConfig struct {
	Mean          float64 `yaml:"mean"`
	Amplitude     float64 `yaml:"amplitude"`
	PeriodSeconds float64 `yaml:"period_seconds"`
	Noise         float64 `yaml:"noise"`
	// every Nth read fails; 0 never fails
	FaultEvery int `yaml:"fault_every"`
}

type SensorConfig struct {
	Source          string    `yaml:"source"` // sim, w1, modbus
	Unit            string    `yaml:"unit"`   // F or C
	IntervalSeconds float64   `yaml:"interval_seconds"`
	W1Device        string    `yaml:"w1_device"`
	W1BaseDir       string    `yaml:"w1_base_dir"`
	ModbusRegister  string    `yaml:"modbus_register"`
	Sim             SimConfig `yaml:"sim"`
}

type FanConfig struct {
	Driver              string  `yaml:"driver"` // soft, gpio, modbus
	LoopIntervalSeconds float64 `yaml:"loop_interval_seconds"`
	GPIOPin             int     `yaml:"gpio_pin"`
	ActiveHigh          bool    `yaml:"active_high"`
	ModbusRegister      string  `yaml:"modbus_register"`
}

type BusConfig struct {
	Transport     string `yaml:"transport"` // memory, nats, mqtt, kafka
	TelemetryURL  string `yaml:"telemetry_url"`
	CommandURL    string `yaml:"command_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	InboxSize     int    `yaml:"inbox_size"`
	ClientID      string `yaml:"client_id"`
}

type Config struct {
	Plant   PlantConfig    `yaml:"plant"`
	Sensor  SensorConfig   `yaml:"sensor"`
	Fan     FanConfig      `yaml:"fan"`
	Bus     BusConfig      `yaml:"bus"`
	Modbus  *modbus.Config `yaml:"modbus"`
	LogPath string         `yaml:"log_path"`
}

// LoadFile reads, defaults and validates a YAML config.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	c := defaults()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.fillDerived()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns a config suitable for running everything in one process.
func Default() *Config {
	c := defaults()
	c.fillDerived()
	return c
}

// defaults holds the values fields absent from a YAML document keep.
func defaults() *Config {
	return &Config{
		Plant: PlantConfig{
			SetPoint:                 175,
			Hysteresis:               35,
			LoopIntervalSeconds:      1,
			FanPollIntervalSeconds:   30,
			MaxConsecutiveMismatches: 5,
			HistoryWindowSeconds:     3600,
			HTTPAddr:                 ":8080",
		},
		Sensor: SensorConfig{
			Source:          "sim",
			Unit:            "F",
			IntervalSeconds: 1,
			W1BaseDir:       "/sys/bus/w1/devices",
			Sim: SimConfig{
				Mean:          160,
				Amplitude:     40,
				PeriodSeconds: 600,
			},
		},
		Fan: FanConfig{
			Driver:              "soft",
			LoopIntervalSeconds: 0.1,
			ActiveHigh:          true,
		},
		Bus: BusConfig{
			Transport:     "memory",
			SubjectPrefix: "watches",
			InboxSize:     64,
			ClientID:      "watches",
		},
	}
}

func (c *Config) fillDerived() {
	if c.Plant.StateReplyTimeoutSeconds == 0 {
		c.Plant.StateReplyTimeoutSeconds = c.Plant.FanPollIntervalSeconds
	}
	if c.Bus.CommandURL == "" {
		c.Bus.CommandURL = c.Bus.TelemetryURL
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	p := c.Plant
	if p.Hysteresis < 0 {
		return fmt.Errorf("%w: hysteresis %v must be >= 0", ErrInvalid, p.Hysteresis)
	}
	if p.LoopIntervalSeconds <= 0 {
		return fmt.Errorf("%w: plant loop_interval_seconds must be > 0", ErrInvalid)
	}
	if p.FanPollIntervalSeconds <= 0 {
		return fmt.Errorf("%w: fan_poll_interval_seconds must be > 0", ErrInvalid)
	}
	if p.StateReplyTimeoutSeconds < 0 {
		return fmt.Errorf("%w: state_reply_timeout_seconds must be >= 0", ErrInvalid)
	}
	if p.MaxConsecutiveMismatches < 0 {
		return fmt.Errorf("%w: max_consecutive_mismatches must be >= 0", ErrInvalid)
	}
	if p.HistoryWindowSeconds < 0 || p.HistoryWindowSeconds > 86400 {
		return fmt.Errorf("%w: history_window_seconds must be within one day", ErrInvalid)
	}

	switch c.Sensor.Source {
	case "sim":
	case "w1":
		if c.Sensor.W1Device == "" {
			return fmt.Errorf("%w: sensor source w1 needs w1_device", ErrInvalid)
		}
		if c.Sensor.Unit != "C" {
			return fmt.Errorf("%w: w1 sensors report Celsius; set unit: C", ErrInvalid)
		}
	case "modbus":
		if c.Sensor.ModbusRegister == "" || c.Modbus == nil {
			return fmt.Errorf("%w: sensor source modbus needs modbus_register and a modbus section", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown sensor source %q", ErrInvalid, c.Sensor.Source)
	}
	if c.Sensor.Unit != "F" && c.Sensor.Unit != "C" {
		return fmt.Errorf("%w: sensor unit must be F or C, got %q", ErrInvalid, c.Sensor.Unit)
	}
	if c.Sensor.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: sensor interval_seconds must be > 0", ErrInvalid)
	}

	switch c.Fan.Driver {
	case "soft":
	case "gpio":
		if c.Fan.GPIOPin <= 0 {
			return fmt.Errorf("%w: fan driver gpio needs gpio_pin", ErrInvalid)
		}
	case "modbus":
		if c.Fan.ModbusRegister == "" || c.Modbus == nil {
			return fmt.Errorf("%w: fan driver modbus needs modbus_register and a modbus section", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown fan driver %q", ErrInvalid, c.Fan.Driver)
	}
	if c.Fan.LoopIntervalSeconds <= 0 {
		return fmt.Errorf("%w: fan loop_interval_seconds must be > 0", ErrInvalid)
	}

	switch c.Bus.Transport {
	case "memory":
	case "nats", "mqtt", "kafka":
		if c.Bus.TelemetryURL == "" {
			return fmt.Errorf("%w: transport %s needs telemetry_url", ErrInvalid, c.Bus.Transport)
		}
	default:
		return fmt.Errorf("%w: unknown bus transport %q", ErrInvalid, c.Bus.Transport)
	}
	if c.Bus.InboxSize < 1 {
		return fmt.Errorf("%w: inbox_size must be >= 1", ErrInvalid)
	}

	if c.Modbus != nil {
		if err := c.Modbus.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (p PlantConfig) LoopInterval() time.Duration      { return seconds(p.LoopIntervalSeconds) }
func (p PlantConfig) FanPollInterval() time.Duration   { return seconds(p.FanPollIntervalSeconds) }
func (p PlantConfig) StateReplyTimeout() time.Duration { return seconds(p.StateReplyTimeoutSeconds) }

func (s SensorConfig) Interval() time.Duration  { return seconds(s.IntervalSeconds) }
func (f FanConfig) LoopInterval() time.Duration { return seconds(f.LoopIntervalSeconds) }
