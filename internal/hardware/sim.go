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
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"watches/internal/config"
)

// SimSensor produces a slow sinusoid around Mean. With Noise 0 the output is
// a pure function of elapsed time.
type SimSensor struct {
	cfg   config.SimConfig
	now   func() time.Time
	start time.Time
	rng   *rand.Rand
	reads int
}

// NewSimSensor uses the wall clock when now is nil.
func NewSimSensor(cfg config.SimConfig, now func() time.Time) *SimSensor {
	if now == nil {
		now = time.Now
	}
	if cfg.PeriodSeconds <= 0 {
		cfg.PeriodSeconds = 600
	}
	return &SimSensor{
		cfg:   cfg,
		now:   now,
		start: now(),
		rng:   rand.New(rand.NewPCG(1, 2)),
	}
}

var errInjected = errors.New("injected read fault")

func (s *SimSensor) ReadTemperature() (float64, error) {
	s.reads++
	if s.cfg.FaultEvery > 0 && s.reads%s.cfg.FaultEvery == 0 {
		return 0, &SensorFault{Source: "sim", Err: errInjected}
	}
	elapsed := s.now().Sub(s.start).Seconds()
	v := s.cfg.Mean + s.cfg.Amplitude*math.Sin(2*math.Pi*elapsed/s.cfg.PeriodSeconds)
	if s.cfg.Noise > 0 {
		v += s.cfg.Noise * (2*s.rng.Float64() - 1)
	}
	return v, nil
}

// SoftRelay only remembers what it was told.
type SoftRelay struct {
	mu sync.Mutex
	on bool
}

func NewSoftRelay() *SoftRelay { return &SoftRelay{} }

func (r *SoftRelay) SetOutput(on bool) error {
	r.mu.Lock()
	r.on = on
	r.mu.Unlock()
	return nil
}

func (r *SoftRelay) ReadOutput() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on, nil
}
