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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// W1Sensor reads a DS18B20 through the kernel w1_therm driver. Readings are
// degrees Celsius.
type W1Sensor struct {
	path string
}

func NewW1Sensor(baseDir, device string) (*W1Sensor, error) {
	if device == "" {
		return nil, errors.New("w1 device id is required")
	}
	return &W1Sensor{path: filepath.Join(baseDir, device, "w1_slave")}, nil
}

// ReadTemperature parses the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func (s *W1Sensor) ReadTemperature() (float64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, &SensorFault{Source: "w1", Err: err}
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return 0, &SensorFault{Source: "w1", Err: fmt.Errorf("short read from %s", s.path)}
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, &SensorFault{Source: "w1", Err: errors.New("crc check failed")}
	}
	_, raw, ok := strings.Cut(lines[1], "t=")
	if !ok {
		return 0, &SensorFault{Source: "w1", Err: errors.New("no t= field")}
	}
	milli, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &SensorFault{Source: "w1", Err: err}
	}
	return float64(milli) / 1000, nil
}
