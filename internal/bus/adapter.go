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

// Package bus connects agents to the publish/subscribe transport. Publishing
// is fire-and-forget and receiving never blocks: inbound lines from every
// subscribed topic are merged into one bounded inbox that the owning loop
// drains at its own pace.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"watches/internal/events"
	"watches/pkg/logger"
)

var (
	ErrNoMessage = errors.New("no message")
	ErrClosed    = errors.New("bus adapter closed")
)

// Transport moves opaque lines between processes.
type Transport interface {
	Publish(subject string, data []byte) error
	// Subscribe calls deliver for every line on the subjects. deliver must
	// not block.
	Subscribe(subjects []string, deliver func([]byte)) error
	Close() error
}

type Options struct {
	SubjectPrefix string
	InboxSize     int
	ClientID      string

	// optional; counters are exported here when set
	Registerer prometheus.Registerer
}

type Stats struct {
	Received        int64
	Dropped         int64
	PublishFailures int64
}

type Adapter struct {
	log       *logger.Logger
	telemetry Transport
	command   Transport
	prefix    string
	inbox     chan string

	received        atomic.Int64
	dropped         atomic.Int64
	publishFailures atomic.Int64

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	reg        prometheus.Registerer
	collectors []prometheus.Collector
}

// NewAdapter routes temperature and fan state traffic over telemetry and fan
// commands over command. Both may be the same transport.
func NewAdapter(telemetry, command Transport, opts Options) *Adapter {
	if opts.InboxSize < 1 {
		opts.InboxSize = 1
	}
	a := &Adapter{
		log:       logger.New("Bus:" + opts.ClientID),
		telemetry: telemetry,
		command:   command,
		prefix:    opts.SubjectPrefix,
		inbox:     make(chan string, opts.InboxSize),
		reg:       opts.Registerer,
	}
	a.registerMetrics(opts.ClientID)
	return a
}

func (a *Adapter) registerMetrics(client string) {
	if a.reg == nil {
		return
	}
	labels := prometheus.Labels{"client": client}
	counter := func(name, help string, v *atomic.Int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "watches",
			Subsystem:   "bus",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(v.Load()) })
	}
	for _, c := range []prometheus.Collector{
		counter("received_total", "Lines accepted into the inbox.", &a.received),
		counter("inbox_dropped_total", "Lines dropped because the inbox was full.", &a.dropped),
		counter("publish_failures_total", "Publish calls the transport rejected.", &a.publishFailures),
	} {
		if err := a.reg.Register(c); err != nil {
			a.log.Warn("metrics not registered: %v", err)
			continue
		}
		a.collectors = append(a.collectors, c)
	}
}

// Subject is the transport subject a topic travels on.
func (a *Adapter) Subject(topic events.Topic) string {
	if a.prefix == "" {
		return topic.String()
	}
	return a.prefix + "." + topic.String()
}

func (a *Adapter) endpoint(topic events.Topic) Transport {
	if topic == events.TopicFanCommand {
		return a.command
	}
	return a.telemetry
}

// Subscribe merges the topics into the inbox.
func (a *Adapter) Subscribe(topics ...events.Topic) error {
	if a.closed.Load() {
		return ErrClosed
	}
	byTransport := map[Transport][]string{}
	var order []Transport
	for _, topic := range topics {
		t := a.endpoint(topic)
		if _, ok := byTransport[t]; !ok {
			order = append(order, t)
		}
		byTransport[t] = append(byTransport[t], a.Subject(topic))
	}
	for _, t := range order {
		if err := t.Subscribe(byTransport[t], a.deliver); err != nil {
			return fmt.Errorf("subscribe %v: %w", byTransport[t], err)
		}
		a.log.Info("Subscribed: %v", byTransport[t])
	}
	return nil
}

func (a *Adapter) deliver(data []byte) {
	if a.closed.Load() {
		return
	}
	select {
	case a.inbox <- string(data):
		a.received.Add(1)
	default:
		a.dropped.Add(1)
		a.log.Debug("inbox full; dropped %q", data)
	}
}

// Publish sends an encoded line on the topic's subject. It does not wait for
// delivery; an error means the transport refused the line outright.
func (a *Adapter) Publish(topic events.Topic, line string) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if err := a.endpoint(topic).Publish(a.Subject(topic), []byte(line)); err != nil {
		a.publishFailures.Add(1)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	a.log.Debug("sent %s", line)
	return nil
}

// TryReceive returns the next inbound envelope without blocking. It returns
// ErrNoMessage when the inbox is empty, ErrClosed after Close, and a
// *events.MalformedMessageError for lines that do not decode.
func (a *Adapter) TryReceive() (events.Envelope, error) {
	if a.closed.Load() {
		return events.Envelope{}, ErrClosed
	}
	select {
	case line := <-a.inbox:
		return events.Decode(line)
	default:
		return events.Envelope{}, ErrNoMessage
	}
}

func (a *Adapter) Stats() Stats {
	return Stats{
		Received:        a.received.Load(),
		Dropped:         a.dropped.Load(),
		PublishFailures: a.publishFailures.Load(),
	}
}

// Close releases the transports. It is safe to call more than once.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		errs := []error{a.telemetry.Close()}
		if a.command != a.telemetry {
			errs = append(errs, a.command.Close())
		}
		for _, c := range a.collectors {
			a.reg.Unregister(c)
		}
		a.closeErr = errors.Join(errs...)
		a.log.Info("Closed")
	})
	return a.closeErr
}
