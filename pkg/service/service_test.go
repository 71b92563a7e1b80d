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

package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"watches/pkg/logger"
)

func waitExit(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case code := <-ch:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("services did not stop")
		return 0
	}
}

func TestCleanShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran int
	svc := Func(func(ctx context.Context) {
		ran++
		<-ctx.Done()
	})

	exit := Start(ctx, cancel, []Runnable{svc})
	cancel()
	assert.Equal(t, 0, waitExit(t, exit))
	assert.Equal(t, 1, ran)
}

func TestPanicCancelsOthers(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(logger.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waiter := Func(func(ctx context.Context) { <-ctx.Done() })
	bomb := Func(func(context.Context) { panic("relay exploded") })

	exit := Start(ctx, cancel, []Runnable{waiter, bomb})
	assert.Equal(t, ExitPanic, waitExit(t, exit))
	assert.Contains(t, buf.String(), "relay exploded")
}
