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

package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(Close)

	log := New("Plant")
	log.Info("reading %.1f", 72.5)
	log.Warn("mismatch")
	log.Error("publish failed")

	out := buf.String()
	assert.Contains(t, out, "[Plant] INFO: reading 72.5")
	assert.Contains(t, out, "[Plant] WARN: mismatch")
	assert.Contains(t, out, "[Plant] ERROR: (logger_test.go:")
}

func TestDebugToggle(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(Close)

	EnableDebug(false)
	New("X").Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	EnableDebug(true)
	t.Cleanup(func() { EnableDebug(false) })
	New("X").Debug("shown")
	assert.Contains(t, buf.String(), "[X] DEBUG: shown")
}

func TestFatalPanics(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(Close)

	require.PanicsWithValue(t, "boom 7", func() {
		New("F").Fatal("boom %d", 7)
	})
}

func TestRingKeepsLastLines(t *testing.T) {
	r := newRing(3)
	for _, s := range []string{"a\n", "b\n", "c\nd\n"} {
		r.Write([]byte(s))
	}
	assert.Equal(t, []string{"b", "c", "d"}, r.last(0))
	assert.Equal(t, []string{"c", "d"}, r.last(2))
}

func TestWebServiceToggle(t *testing.T) {
	EnableDebug(false)
	t.Cleanup(func() { EnableDebug(false) })

	svc := WebService("/logger")

	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/toggle", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, IsDebug())

	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/toggle", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, IsDebug())

	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(Close)
	New("Web").Info("visible in page")

	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/raw", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "visible in page"))
}
