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
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"watches/pkg/logger"
)

const mqttTimeout = 10 * time.Second

// MQTT publishes at QoS 0. Subjects map to topics by turning dots into
// slashes.
type MQTT struct {
	client mqtt.Client
	log    *logger.Logger

	mu      sync.Mutex
	filters map[string]byte
	deliver func([]byte)
}

func DialMQTT(url, clientID string) (*MQTT, error) {
	m := &MQTT{log: logger.New("MQTT:" + clientID), filters: map[string]byte{}}

	opts := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectTimeout(mqttTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn("connection lost: %v", err)
	})
	// clean sessions forget subscriptions across reconnects
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.filters) > 0 {
			m.log.Info("Resubscribing %d topics", len(m.filters))
			c.SubscribeMultiple(m.filters, m.onMessage)
		}
	})

	m.client = mqtt.NewClient(opts)
	tok := m.client.Connect()
	if !tok.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", url)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", url, err)
	}
	m.log.Info("Connected to %s", url)
	return m, nil
}

func mqttTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.mu.Lock()
	deliver := m.deliver
	m.mu.Unlock()
	if deliver != nil {
		deliver(msg.Payload())
	}
}

func (m *MQTT) Publish(subject string, data []byte) error {
	tok := m.client.Publish(mqttTopic(subject), 0, false, data)
	select {
	case <-tok.Done():
		return tok.Error()
	default:
		return nil
	}
}

func (m *MQTT) Subscribe(subjects []string, deliver func([]byte)) error {
	m.mu.Lock()
	m.deliver = deliver
	filters := make(map[string]byte, len(subjects))
	for _, s := range subjects {
		m.filters[mqttTopic(s)] = 0
		filters[mqttTopic(s)] = 0
	}
	m.mu.Unlock()

	tok := m.client.SubscribeMultiple(filters, m.onMessage)
	if !tok.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt subscribe %v: timed out", subjects)
	}
	return tok.Error()
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
