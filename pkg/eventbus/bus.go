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

package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"watches/pkg/logger"
)

type Topic string
type Event = any

// Stats counts what happened to published events.
type Stats struct {
	Published int64 // Publish calls accepted while open
	Delivered int64 // sends that landed in a subscriber channel
	Replaced  int64 // older events evicted to make room
	Dropped   int64 // events that could not be delivered at all
}

// Bus implements an in-memory pub/sub. Every subscriber owns a bounded
// channel; when it is full the oldest queued event is evicted so a slow
// subscriber never stalls a publisher.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Topic]map[uint64]chan Event
	last      map[Topic]Event
	depth     int
	idCounter uint64
	closed    atomic.Bool
	log       *logger.Logger

	eventCount       atomic.Int64
	sendCount        atomic.Int64
	sendDropCount    atomic.Int64
	sendReplaceCount atomic.Int64
}

// New returns a Bus whose subscriber channels only hold the latest event.
func New() *Bus {
	return NewWithDepth(1)
}

// NewWithDepth returns a Bus whose subscriber channels buffer up to depth events.
func NewWithDepth(depth int) *Bus {
	if depth < 1 {
		depth = 1
	}
	return &Bus{
		subs:  make(map[Topic]map[uint64]chan Event),
		last:  make(map[Topic]Event),
		depth: depth,
		log:   logger.New("EventBus"),
	}
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.eventCount.Load(),
		Delivered: b.sendCount.Load(),
		Replaced:  b.sendReplaceCount.Load(),
		Dropped:   b.sendDropCount.Load(),
	}
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	return b.closed.Load()
}

// Publish publishes ev to topic and stores it as the "last" event for the topic.
// It never blocks. Returns false if the bus is closed.
func (b *Bus) Publish(topic Topic, ev Event) bool {
	if b.closed.Load() {
		return false
	}

	b.eventCount.Add(1)

	b.mu.Lock()
	if b.last == nil {
		b.mu.Unlock()
		return false
	}
	b.last[topic] = ev

	// copy channels to avoid holding the lock while sending
	var chans []chan Event
	if m, ok := b.subs[topic]; ok {
		chans = make([]chan Event, 0, len(m))
		for _, ch := range m {
			chans = append(chans, ch)
		}
	}
	b.mu.Unlock()

	for _, ch := range chans {
		b.publishReplace(ch, ev)
	}
	return true
}

// publishReplace tries to deliver ev to ch. If ch is full, it removes the oldest
// item and then attempts to send ev. All operations are non-blocking.
func (b *Bus) publishReplace(ch chan Event, ev Event) {
	defer func() {
		// ch may be closed concurrently by Close or an unsubscribe
		if recover() != nil {
			b.sendDropCount.Add(1)
		}
	}()

	select {
	case ch <- ev:
		b.sendCount.Add(1)
		return
	default:
	}

	select {
	case <-ch:
		b.sendReplaceCount.Add(1)
	default:
	}
	select {
	case ch <- ev:
		b.sendCount.Add(1)
	default:
		b.log.Debug("dropped event: %+v", ev)
		b.sendDropCount.Add(1)
	}
}

// Subscribe subscribes to a topic and returns a receive-only channel and an unsubscribe func.
// If withLast is true and there is a stored "last" event, it is delivered immediately.
// The subscription is removed and the channel closed when ctx is canceled or
// unsubscribe is called.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {
	if b.closed.Load() {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, b.depth)
	id := atomic.AddUint64(&b.idCounter, 1)

	b.mu.Lock()
	if b.subs == nil {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch

	var last Event
	var hasLast bool
	if withLast {
		last, hasLast = b.last[topic]
	}
	b.mu.Unlock()

	if hasLast {
		b.publishReplace(ch, last)
	}

	done := make(chan struct{})
	var once sync.Once
	unsub := func() {
		once.Do(func() { close(done) })
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		m, ok := b.subs[topic]
		if !ok {
			// Close already took care of the channel
			return
		}
		if _, ok := m[id]; !ok {
			return
		}
		delete(m, id)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
		close(ch)
	}()

	return ch, unsub
}

// GetLast returns the last published event for a topic (if any).
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// Close closes the bus and all subscriber channels. After Close, Publish is a no-op and Subscribe
// returns a closed channel.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, m := range b.subs {
		for _, ch := range m {
			close(ch)
		}
	}
	b.subs = nil
	b.last = nil
	b.mu.Unlock()
}
