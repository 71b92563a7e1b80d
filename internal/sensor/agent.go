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
	"context"
	"errors"
	"math"
	"time"

	"watches/internal/config"
	"watches/internal/events"
	"watches/internal/hardware"
	"watches/pkg/logger"
)

var errNotFinite = errors.New("reading is not a finite number")

type Publisher interface {
	Publish(topic events.Topic, line string) error
}

// Agent publishes one temperature reading per interval. A failed read is
// covered by repeating the last good value so the controller never sees a
// gap; until a first read succeeds there is nothing to repeat and the tick
// is skipped.
type Agent struct {
	log      *logger.Logger
	sensor   hardware.TemperatureSensor
	pub      Publisher
	interval time.Duration
	celsius  bool
	now      func() time.Time

	lastGood float64
	haveGood bool
	faults   int
}

func New(cfg config.SensorConfig, s hardware.TemperatureSensor, pub Publisher) *Agent {
	return &Agent{
		log:      logger.New("Sensor"),
		sensor:   s,
		pub:      pub,
		interval: cfg.Interval(),
		celsius:  cfg.Unit == "C",
		now:      time.Now,
	}
}

func (a *Agent) Run(ctx context.Context) {
	a.log.Info("Running (every %v)", a.interval)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.sample()
	for {
		select {
		case <-ctx.Done():
			a.log.Info("Stopped")
			return
		case <-ticker.C:
			a.sample()
		}
	}
}

// sample reads the sensor and publishes the value in °F. It reports the
// value published and whether anything was published.
func (a *Agent) sample() (float64, bool) {
	v, err := a.read()
	if err != nil {
		a.faults++
		if !a.haveGood {
			a.log.Warn("read failed and no prior reading to reuse: %v", err)
			return 0, false
		}
		a.log.Warn("read failed, reusing %s: %v", events.FormatTemperature(a.lastGood), err)
		v = a.lastGood
	} else {
		a.lastGood, a.haveGood = v, true
	}

	line := events.TemperatureLine(v, events.TimeOfDayOf(a.now()))
	if err := a.pub.Publish(events.TopicTemperature, line); err != nil {
		a.log.Error("publish failed: %v", err)
		return v, false
	}
	a.log.Debug("sent %s", line)
	return v, true
}

func (a *Agent) read() (float64, error) {
	v, err := a.sensor.ReadTemperature()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &hardware.SensorFault{Source: "reading", Err: errNotFinite}
	}
	if a.celsius {
		v = events.CelsiusToFahrenheit(v)
	}
	return v, nil
}
