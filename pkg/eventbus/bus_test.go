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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	b := New()
	assert.True(t, b.Publish("temp", "x"))
	assert.Equal(t, int64(1), b.Stats().Published)
	assert.Equal(t, int64(0), b.Stats().Delivered)

	last, ok := b.GetLast("temp")
	require.True(t, ok)
	assert.Equal(t, "x", last)
}

func TestDepthBuffersInOrder(t *testing.T) {
	b := NewWithDepth(3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := b.Subscribe(ctx, "temp", false)
	b.Publish("temp", 1)
	b.Publish("temp", 2)
	b.Publish("temp", 3)

	assert.Equal(t, 1, <-ch)
	assert.Equal(t, 2, <-ch)
	assert.Equal(t, 3, <-ch)
}

func TestOverflowEvictsOldest(t *testing.T) {
	b := NewWithDepth(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := b.Subscribe(ctx, "temp", false)
	for i := 1; i <= 4; i++ {
		b.Publish("temp", i)
	}

	assert.Equal(t, 3, <-ch)
	assert.Equal(t, 4, <-ch)
	assert.Equal(t, int64(2), b.Stats().Replaced)
}

func TestSubscribeWithLast(t *testing.T) {
	b := New()
	b.Publish("fanstate", "on")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := b.Subscribe(ctx, "fanstate", true)

	select {
	case ev := <-ch:
		assert.Equal(t, "on", ev)
	case <-time.After(time.Second):
		t.Fatal("expected last event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(context.Background(), "temp", false)
	unsub()
	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe(context.Background(), "temp", false)
	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.False(t, b.Publish("temp", 1))
	assert.True(t, b.Closed())

	late, _ := b.Subscribe(context.Background(), "temp", false)
	_, ok = <-late
	assert.False(t, ok)
}
