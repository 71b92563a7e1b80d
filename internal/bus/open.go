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

package bus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"watches/internal/config"
	"watches/pkg/eventbus"
)

// Open builds an adapter for one process. mem backs the memory transport
// and is ignored otherwise.
func Open(cfg config.BusConfig, role string, mem *eventbus.Bus, reg prometheus.Registerer) (*Adapter, error) {
	clientID := cfg.ClientID + "-" + role
	opts := Options{
		SubjectPrefix: cfg.SubjectPrefix,
		InboxSize:     cfg.InboxSize,
		ClientID:      clientID,
		Registerer:    reg,
	}

	if cfg.Transport == "memory" {
		if mem == nil {
			return nil, fmt.Errorf("memory transport needs an in-process event bus")
		}
		t := NewMemory(mem)
		return NewAdapter(t, t, opts), nil
	}

	telemetry, err := dial(cfg.Transport, cfg.TelemetryURL, clientID+"-telemetry")
	if err != nil {
		return nil, err
	}
	command := telemetry
	if cfg.CommandURL != "" && cfg.CommandURL != cfg.TelemetryURL {
		if command, err = dial(cfg.Transport, cfg.CommandURL, clientID+"-command"); err != nil {
			_ = telemetry.Close()
			return nil, err
		}
	}
	return NewAdapter(telemetry, command, opts), nil
}

func dial(transport, url, clientID string) (Transport, error) {
	switch transport {
	case "nats":
		return DialNATS(url, clientID)
	case "mqtt":
		return DialMQTT(url, clientID)
	case "kafka":
		return DialKafka(url, clientID), nil
	}
	return nil, fmt.Errorf("unknown bus transport %q", transport)
}
