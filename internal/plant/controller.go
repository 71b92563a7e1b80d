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

// Package plant is the coordinating controller: it turns temperature
// readings into fan commands, keeps the fan honest by polling its state,
// and records every reading in a one-day history.
package plant

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"watches/internal/bus"
	"watches/internal/config"
	"watches/internal/events"
	"watches/pkg/eventbus"
	"watches/pkg/logger"
)

// TopicStatus carries a Status on the in-process eventbus after every change.
const TopicStatus eventbus.Topic = "plant.status"

// maxDrainPerTick bounds the work done between two ticks.
const maxDrainPerTick = 16

// Bus is the controller's side of the message bus adapter.
type Bus interface {
	Publish(topic events.Topic, line string) error
	TryReceive() (events.Envelope, error)
}

// Status is a snapshot of the controller's state.
type Status struct {
	Commanded   events.FanState `json:"commanded"`
	Reported    events.FanState `json:"reported"`
	Aggregate   events.FanState `json:"aggregate"`
	Awaiting    bool            `json:"awaiting_state_reply"`
	PollCounter int             `json:"poll_counter"`

	HasReading  bool    `json:"has_reading"`
	Temperature float64 `json:"temperature"`
	ReadingAt   string  `json:"reading_at,omitempty"`

	SetPoint       float64 `json:"set_point"`
	LowerThreshold float64 `json:"lower_threshold"`

	Mismatches  int `json:"consecutive_mismatches"`
	LostReplies int `json:"lost_replies"`
}

type request struct {
	fn   func()
	done chan struct{}
}

// Controller drives the fan from temperature readings and reconciles the
// commanded state against what the fan reports.
type Controller struct {
	log        *logger.Logger
	bus        Bus
	status     *eventbus.Bus
	metrics    *metrics
	thermostat Thermostat

	loopInterval  time.Duration
	pollEvery     int
	replyTimeout  time.Duration
	mismatchLimit int
	historyWindow int
	now           func() time.Time

	requests chan request

	// everything below is owned by the Run goroutine
	st         Status
	lastSent   Status
	announced  bool
	history    *History
	replyTimer *time.Timer
}

// New builds a controller. status may be nil when nobody watches for
// changes; reg may be nil to skip metric export.
func New(cfg config.PlantConfig, b Bus, status *eventbus.Bus, reg prometheus.Registerer) *Controller {
	th := Thermostat{SetPoint: cfg.SetPoint, Hysteresis: cfg.Hysteresis}
	c := &Controller{
		log:           logger.New("Plant"),
		bus:           b,
		status:        status,
		metrics:       newMetrics(reg),
		thermostat:    th,
		loopInterval:  cfg.LoopInterval(),
		pollEvery:     pollRatio(cfg.FanPollInterval(), cfg.LoopInterval()),
		replyTimeout:  cfg.StateReplyTimeout(),
		mismatchLimit: cfg.MaxConsecutiveMismatches,
		historyWindow: cfg.HistoryWindowSeconds,
		now:           time.Now,
		requests:      make(chan request),
		history:       NewHistory(),
		st: Status{
			Commanded:      events.StateOff,
			Reported:       events.StateOff,
			Aggregate:      events.StateOff,
			SetPoint:       th.SetPoint,
			LowerThreshold: th.LowerThreshold(),
		},
	}
	c.metrics.setPoint.Set(th.SetPoint)
	c.metrics.observe(c.st)
	return c
}

// pollRatio is the number of ticks between state polls, at least 1.
func pollRatio(poll, loop time.Duration) int {
	if loop <= 0 {
		return 1
	}
	return max(int(math.Round(float64(poll)/float64(loop))), 1)
}

func (c *Controller) Run(ctx context.Context) {
	c.log.Info("Running: set point %v, off at %v, poll every %d ticks of %v",
		c.thermostat.SetPoint, c.thermostat.LowerThreshold(), c.pollEvery, c.loopInterval)

	ticker := time.NewTicker(c.loopInterval)
	defer ticker.Stop()
	defer c.disarmReplyTimer()

	c.changed()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Stopped")
			return
		case <-ticker.C:
			if err := c.tick(); err != nil {
				c.log.Error("stopping: %v", err)
				return
			}
		case <-c.replyTimeoutC():
			c.replyTimedOut()
		case req := <-c.requests:
			req.fn()
			close(req.done)
		}
		c.changed()
	}
}

// tick drains the inbox and sends the periodic state poll when due. It only
// fails once the bus is closed.
func (c *Controller) tick() error {
	for range maxDrainPerTick {
		env, err := c.bus.TryReceive()
		if errors.Is(err, bus.ErrNoMessage) {
			break
		}
		if errors.Is(err, bus.ErrClosed) {
			return err
		}
		if err != nil {
			c.discard("malformed", err)
			continue
		}
		_ = c.HandleEnvelope(env)
	}

	c.st.PollCounter++
	if c.st.PollCounter >= c.pollEvery {
		c.st.PollCounter = 0
		_ = c.poll()
	}
	return nil
}

func (c *Controller) discard(reason string, err error) {
	c.metrics.discarded.WithLabelValues(reason).Inc()
	c.log.Warn("discarded: %v", err)
}

// HandleEnvelope applies one inbound envelope. Protocol faults are logged
// and dropped; the returned error only reports a command that could not be
// published.
func (c *Controller) HandleEnvelope(env events.Envelope) error {
	switch env.Topic {
	case events.TopicTemperature:
		v, err := env.Temperature()
		if err != nil {
			c.discard("payload", err)
			return nil
		}
		return c.onTemperature(v, env.Timestamp)
	case events.TopicFanState:
		s, err := env.State()
		if err != nil {
			c.discard("payload", err)
			return nil
		}
		return c.onFanState(s)
	case events.TopicFanCommand:
		c.discard("topic", errors.New("fan commands are not addressed to the controller: "+env.String()))
	}
	return nil
}

func (c *Controller) onTemperature(v float64, at events.TimeOfDay) error {
	cmd, ok, err := c.thermostat.Next(c.st.Reported, v)
	if err != nil {
		c.discard("not_finite", err)
		return nil
	}
	if at == events.NoTimestamp {
		at = events.TimeOfDayOf(c.now())
	}
	c.history.Set(at, v)
	c.st.HasReading, c.st.Temperature, c.st.ReadingAt = true, v, at.String()
	c.metrics.temperature.Set(v)

	if !ok {
		return nil
	}
	target, _ := events.StateFor(cmd)
	if target == c.st.Commanded {
		// already sent; waiting for the fan to confirm
		c.log.Debug("%s already commanded, fan reports %s", target, c.st.Reported)
		return nil
	}
	c.log.Info("%s at %s (set point %v, off at %v)", cmd, events.FormatTemperature(v),
		c.thermostat.SetPoint, c.thermostat.LowerThreshold())
	if err := c.send(cmd); err != nil {
		return err
	}
	c.st.Commanded = target
	c.st.Mismatches = 0
	return nil
}

func (c *Controller) onFanState(s events.FanState) error {
	c.disarmReplyTimer()
	c.st.Awaiting = false
	c.st.Reported = s

	if s == c.st.Commanded {
		if c.st.Aggregate != s {
			c.log.Info("fan confirmed %s", s)
		}
		c.st.Aggregate = s
		c.st.Mismatches = 0
		return nil
	}

	c.st.Mismatches++
	c.metrics.mismatches.Inc()
	if c.mismatchLimit > 0 && c.st.Mismatches > c.mismatchLimit {
		c.st.Aggregate = events.StateError
		c.log.Debug("fan still reports %s, commanded %s; not retrying", s, c.st.Commanded)
		return nil
	}

	c.st.Aggregate = events.StateWarning
	if c.mismatchLimit > 0 && c.st.Mismatches == c.mismatchLimit {
		c.st.Aggregate = events.StateError
		c.log.Error("fan reports %s, commanded %s, %d times in a row; last retry", s, c.st.Commanded, c.st.Mismatches)
	} else {
		c.log.Warn("fan reports %s, commanded %s; re-sending", s, c.st.Commanded)
	}
	cmd, _ := events.CommandFor(c.st.Commanded)
	return c.send(cmd)
}

// poll asks the fan for its state and starts the reply timer. A poll still
// unanswered when the next one is due counts as lost.
func (c *Controller) poll() error {
	if c.st.Awaiting {
		c.replyLost()
	}
	if err := c.send(events.CommandGetState); err != nil {
		return err
	}
	c.st.Awaiting = true
	c.armReplyTimer()
	return nil
}

func (c *Controller) send(cmd events.FanCommand) error {
	if err := c.bus.Publish(events.TopicFanCommand, events.CommandLine(cmd)); err != nil {
		c.log.Error("%s not sent: %v", cmd, err)
		return err
	}
	c.metrics.command(cmd)
	return nil
}

func (c *Controller) replyTimedOut() {
	c.replyTimer = nil
	if !c.st.Awaiting {
		return
	}
	c.replyLost()
}

func (c *Controller) replyLost() {
	c.disarmReplyTimer()
	c.st.Awaiting = false
	c.st.LostReplies++
	c.metrics.lostReplies.Inc()
	if c.st.Aggregate != events.StateError {
		c.st.Aggregate = events.StateWarning
	}
	c.log.Warn("no reply to fan state poll (%d lost)", c.st.LostReplies)
}

func (c *Controller) armReplyTimer() {
	c.disarmReplyTimer()
	if c.replyTimeout > 0 {
		c.replyTimer = time.NewTimer(c.replyTimeout)
	}
}

func (c *Controller) disarmReplyTimer() {
	if c.replyTimer != nil {
		c.replyTimer.Stop()
		c.replyTimer = nil
	}
}

// replyTimeoutC is nil, and so never ready, while no poll is outstanding.
func (c *Controller) replyTimeoutC() <-chan time.Time {
	if c.replyTimer == nil {
		return nil
	}
	return c.replyTimer.C
}

// changed publishes the status when it differs from the last one sent.
func (c *Controller) changed() {
	if c.announced && c.st == c.lastSent {
		return
	}
	c.announced, c.lastSent = true, c.st
	c.metrics.observe(c.st)
	if c.status != nil {
		c.status.Publish(TopicStatus, c.st)
	}
}

// do runs fn on the control loop and waits for it, so callers on other
// goroutines never touch controller state directly.
func (c *Controller) do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.do(ctx, func() { s = c.st })
	return s, err
}

// History returns the readings of the trailing window ending now. A
// window of 0 uses the configured default.
func (c *Controller) History(ctx context.Context, window int) ([]Sample, error) {
	if window <= 0 {
		window = c.historyWindow
	}
	var out []Sample
	err := c.do(ctx, func() {
		out = c.history.Window(events.TimeOfDayOf(c.now()), window)
	})
	return out, err
}

// PollNow sends a state poll outside the regular schedule.
func (c *Controller) PollNow(ctx context.Context) error {
	var perr error
	if err := c.do(ctx, func() { perr = c.poll() }); err != nil {
		return err
	}
	return perr
}
