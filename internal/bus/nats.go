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
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"watches/pkg/logger"
)

// NATS uses core NATS subjects: at-most-once, no acknowledgement.
type NATS struct {
	nc  *nats.Conn
	log *logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func DialNATS(url, name string) (*NATS, error) {
	log := logger.New("NATS:" + name)
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	log.Info("Connected to %s", nc.ConnectedUrl())
	return &NATS{nc: nc, log: log}, nil
}

func (n *NATS) Publish(subject string, data []byte) error {
	return n.nc.Publish(subject, data)
}

func (n *NATS) Subscribe(subjects []string, deliver func([]byte)) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, subject := range subjects {
		sub, err := n.nc.Subscribe(subject, func(m *nats.Msg) {
			deliver(m.Data)
		})
		if err != nil {
			return fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
		n.subs = append(n.subs, sub)
	}
	return n.nc.Flush()
}

func (n *NATS) Close() error {
	n.mu.Lock()
	for _, sub := range n.subs {
		_ = sub.Unsubscribe()
	}
	n.subs = nil
	n.mu.Unlock()
	n.nc.Close()
	return nil
}
