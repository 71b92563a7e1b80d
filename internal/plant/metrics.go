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

package plant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"watches/internal/events"
)

type metrics struct {
	temperature prometheus.Gauge
	setPoint    prometheus.Gauge
	fanState    *prometheus.GaugeVec
	commands    *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	mismatches  prometheus.Counter
	lostReplies prometheus.Counter
}

// newMetrics registers with reg; a nil reg yields working but unexported
// collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		temperature: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "watches", Subsystem: "plant",
			Name: "temperature_fahrenheit",
			Help: "Last accepted temperature reading.",
		}),
		setPoint: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "watches", Subsystem: "plant",
			Name: "set_point_fahrenheit",
			Help: "Configured set point.",
		}),
		fanState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "watches", Subsystem: "plant",
			Name: "fan_state",
			Help: "Fan state by view: 0 off, 1 on, 2 error, 3 warning.",
		}, []string{"view"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watches", Subsystem: "plant",
			Name: "commands_total",
			Help: "Fan commands published.",
		}, []string{"command"}),
		discarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watches", Subsystem: "plant",
			Name: "discarded_total",
			Help: "Inbound envelopes dropped without effect.",
		}, []string{"reason"}),
		mismatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "watches", Subsystem: "plant",
			Name: "state_mismatches_total",
			Help: "Fan state replies that disagreed with the commanded state.",
		}),
		lostReplies: f.NewCounter(prometheus.CounterOpts{
			Namespace: "watches", Subsystem: "plant",
			Name: "lost_state_replies_total",
			Help: "State polls that went unanswered within the reply timeout.",
		}),
	}
}

func (m *metrics) observe(s Status) {
	m.fanState.WithLabelValues("commanded").Set(float64(s.Commanded))
	m.fanState.WithLabelValues("reported").Set(float64(s.Reported))
	m.fanState.WithLabelValues("aggregate").Set(float64(s.Aggregate))
}

func (m *metrics) command(c events.FanCommand) {
	m.commands.WithLabelValues(c.String()).Inc()
}
