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

package fan

import (
	"context"
	"errors"
	"time"

	"watches/internal/bus"
	"watches/internal/config"
	"watches/internal/events"
	"watches/internal/hardware"
	"watches/pkg/logger"
)

// Bus is what the agent needs from its adapter.
type Bus interface {
	Publish(topic events.Topic, line string) error
	TryReceive() (events.Envelope, error)
}

// Agent obeys fan commands and always answers with the relay's read-back
// state, so a relay that ignores a command shows up as a mismatch upstream.
type Agent struct {
	log      *logger.Logger
	relay    hardware.Relay
	bus      Bus
	interval time.Duration
	now      func() time.Time
}

func New(cfg config.FanConfig, relay hardware.Relay, b Bus) *Agent {
	return &Agent{
		log:      logger.New("Fan"),
		relay:    relay,
		bus:      b,
		interval: cfg.LoopInterval(),
		now:      time.Now,
	}
}

func (a *Agent) Run(ctx context.Context) {
	a.log.Info("Running (poll every %v)", a.interval)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Stopped")
			return
		case <-ticker.C:
			if !a.drain() {
				return
			}
		}
	}
}

// drain handles every queued command. It returns false once the bus is closed.
func (a *Agent) drain() bool {
	for {
		env, err := a.bus.TryReceive()
		switch {
		case err == nil:
			a.handle(env)
		case errors.Is(err, bus.ErrNoMessage):
			return true
		case errors.Is(err, bus.ErrClosed):
			a.log.Warn("bus closed")
			return false
		default:
			a.log.Warn("discarded: %v", err)
		}
	}
}

func (a *Agent) handle(env events.Envelope) {
	cmd, err := env.Command()
	if err != nil {
		a.log.Warn("discarded: %v", err)
		return
	}

	switch cmd {
	case events.CommandGetState:
	case events.CommandTurnOn, events.CommandTurnOff:
		on := cmd == events.CommandTurnOn
		if err := a.relay.SetOutput(on); err != nil {
			a.log.Error("%s failed: %v", cmd, err)
		} else {
			a.log.Info("%s", cmd)
		}
	}
	a.report()
}

// report publishes what the relay reads back, not what was asked for.
func (a *Agent) report() events.FanState {
	state := events.StateOff
	on, err := a.relay.ReadOutput()
	switch {
	case err != nil:
		a.log.Error("read-back failed: %v", err)
		state = events.StateError
	case on:
		state = events.StateOn
	}

	line := events.StateLine(state, events.TimeOfDayOf(a.now()))
	if err := a.bus.Publish(events.TopicFanState, line); err != nil {
		a.log.Error("publish failed: %v", err)
	}
	return state
}
