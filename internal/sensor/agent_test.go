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

package sensor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watches/internal/config"
	"watches/internal/events"
	"watches/internal/hardware"
)

// scriptedSensor returns its readings in order; a NaN entry is a read fault.
type scriptedSensor struct {
	readings []float64
	i        int
}

func (s *scriptedSensor) ReadTemperature() (float64, error) {
	v := s.readings[s.i]
	s.i++
	if math.IsNaN(v) {
		return 0, &hardware.SensorFault{Source: "script", Err: errors.New("bus timeout")}
	}
	return v, nil
}

type recorder struct {
	lines []string
	err   error
}

func (r *recorder) Publish(topic events.Topic, line string) error {
	if r.err != nil {
		return r.err
	}
	r.lines = append(r.lines, line)
	return nil
}

func (r *recorder) values(t *testing.T) []float64 {
	t.Helper()
	var out []float64
	for _, l := range r.lines {
		env, err := events.Decode(l)
		require.NoError(t, err)
		v, err := env.Temperature()
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func newAgent(unit string, s hardware.TemperatureSensor, pub Publisher) *Agent {
	cfg := config.Default().Sensor
	cfg.Unit = unit
	a := New(cfg, s, pub)
	a.now = func() time.Time { return time.Date(2026, 3, 1, 13, 5, 9, 0, time.Local) }
	return a
}

func TestFaultReusesLastGoodReading(t *testing.T) {
	s := &scriptedSensor{readings: []float64{150, 152, 155, 158, math.NaN(), 161}}
	rec := &recorder{}
	a := newAgent("F", s, rec)

	for range s.readings {
		_, ok := a.sample()
		require.True(t, ok)
	}
	assert.Equal(t, []float64{150, 152, 155, 158, 158, 161}, rec.values(t))
	assert.Equal(t, 1, a.faults)
}

func TestFirstReadFaultSkipsTick(t *testing.T) {
	s := &scriptedSensor{readings: []float64{math.NaN(), 70}}
	rec := &recorder{}
	a := newAgent("F", s, rec)

	_, ok := a.sample()
	assert.False(t, ok)
	_, ok = a.sample()
	assert.True(t, ok)
	assert.Equal(t, []float64{70}, rec.values(t))
}

func TestCelsiusConvertedAtBoundary(t *testing.T) {
	rec := &recorder{}
	a := newAgent("C", &scriptedSensor{readings: []float64{25}}, rec)

	v, ok := a.sample()
	require.True(t, ok)
	assert.Equal(t, 77.0, v)
	assert.Equal(t, "temp::77::13:05:09", rec.lines[0])
}

func TestNonFiniteReadingTreatedAsFault(t *testing.T) {
	rec := &recorder{}
	a := newAgent("F", &scriptedSensor{readings: []float64{72, math.Inf(1)}}, rec)
	_, _ = a.sample()
	_, _ = a.sample()
	assert.Equal(t, []float64{72, 72}, rec.values(t))
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	rec := &recorder{err: errors.New("socket closed")}
	a := newAgent("F", &scriptedSensor{readings: []float64{80, 81}}, rec)

	_, ok := a.sample()
	assert.False(t, ok)
	rec.err = nil
	_, ok = a.sample()
	assert.True(t, ok)
}
