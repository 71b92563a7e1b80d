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
	"context"
	"errors"
	"sync"

	"watches/pkg/eventbus"
)

var errMemoryClosed = errors.New("memory bus closed")

// Memory carries lines over an in-process eventbus. Several adapters may
// share one eventbus; closing a Memory only drops its own subscriptions.
type Memory struct {
	bus    *eventbus.Bus
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMemory(b *eventbus.Bus) *Memory {
	ctx, cancel := context.WithCancel(context.Background())
	return &Memory{bus: b, ctx: ctx, cancel: cancel}
}

func (m *Memory) Publish(subject string, data []byte) error {
	// subscribers keep the slice, so hand over a private copy
	buf := append([]byte(nil), data...)
	if !m.bus.Publish(eventbus.Topic(subject), buf) {
		return errMemoryClosed
	}
	return nil
}

func (m *Memory) Subscribe(subjects []string, deliver func([]byte)) error {
	if m.ctx.Err() != nil || m.bus.Closed() {
		return errMemoryClosed
	}
	for _, subject := range subjects {
		ch, _ := m.bus.Subscribe(m.ctx, eventbus.Topic(subject), false)
		m.wg.Go(func() {
			for ev := range ch {
				if data, ok := ev.([]byte); ok {
					deliver(data)
				}
			}
		})
	}
	return nil
}

func (m *Memory) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}
