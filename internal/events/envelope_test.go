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

package events

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireFormat(t *testing.T) {
	at, err := ParseTimeOfDay("13:05:09")
	require.NoError(t, err)

	assert.Equal(t, "temp::181.5::13:05:09", TemperatureLine(181.5, at))
	assert.Equal(t, "fancontrol::turnon", CommandLine(CommandTurnOn))
	assert.Equal(t, "fancontrol::getstate", CommandLine(CommandGetState))
	assert.Equal(t, "fanstate::off::13:05:09", StateLine(StateOff, at))
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		topic   Topic
		payload string
	}{
		{TopicFanCommand, "turnoff"},
		{TopicFanCommand, "anything: with a single colon"},
		{TopicTemperature, "72.25"},
		{TopicFanState, "on"},
		{TopicFanState, ""},
	}
	for _, tc := range cases {
		t.Run(tc.topic.String()+"/"+tc.payload, func(t *testing.T) {
			var line string
			if tc.topic == TopicFanCommand {
				line = Encode(tc.topic, tc.payload)
			} else {
				line = EncodeAt(tc.topic, tc.payload, 3661)
			}
			env, err := Decode(line)
			require.NoError(t, err)
			assert.Equal(t, tc.topic, env.Topic)
			assert.Equal(t, tc.payload, env.Payload)
			assert.Equal(t, line, env.String())
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	lines := map[string]string{
		"unknown topic":          "bogus_topic::x",
		"empty":                  "",
		"command with timestamp": "fancontrol::turnon::10:00:00",
		"temp without timestamp": "temp::70",
		"bad timestamp":          "temp::70::25:00:00",
		"separator in payload":   "fanstate::o::n::10:00:00",
	}
	for name, line := range lines {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(line)
			var mErr *MalformedMessageError
			require.True(t, errors.As(err, &mErr), "got %v", err)
			assert.Equal(t, line, mErr.Line)
		})
	}
}

func TestTypedPayloads(t *testing.T) {
	env, err := Decode("temp::NaN::00:00:01")
	require.NoError(t, err)
	v, err := env.Temperature()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))

	env, _ = Decode("temp::warm::00:00:01")
	_, err = env.Temperature()
	assert.Error(t, err)

	env, _ = Decode("fanstate::warning::00:00:01")
	_, err = env.State()
	assert.Error(t, err, "warning is never reported by an actuator")

	env, _ = Decode("fancontrol::turnon")
	c, err := env.Command()
	require.NoError(t, err)
	assert.Equal(t, CommandTurnOn, c)

	_, err = env.State()
	assert.Error(t, err)
}

func TestTimeOfDay(t *testing.T) {
	ts := time.Date(2026, 3, 1, 23, 59, 59, 0, time.Local)
	assert.Equal(t, TimeOfDay(SecondsPerDay-1), TimeOfDayOf(ts))
	assert.Equal(t, "23:59:59", TimeOfDayOf(ts).String())
	assert.Equal(t, "00:00:00", TimeOfDay(0).String())
}

func TestEnumsAreClosed(t *testing.T) {
	for _, topic := range AllTopics {
		parsed, err := ParseTopic(topic.String())
		require.NoError(t, err)
		assert.Equal(t, topic, parsed)
	}
	for _, c := range []FanCommand{CommandGetState, CommandTurnOn, CommandTurnOff} {
		parsed, err := ParseFanCommand(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	s, ok := StateFor(CommandTurnOn)
	assert.True(t, ok)
	assert.Equal(t, StateOn, s)
	_, ok = StateFor(CommandGetState)
	assert.False(t, ok)

	c, ok := CommandFor(StateOff)
	assert.True(t, ok)
	assert.Equal(t, CommandTurnOff, c)
	_, ok = CommandFor(StateWarning)
	assert.False(t, ok)
}

func TestCelsiusToFahrenheit(t *testing.T) {
	assert.InDelta(t, 77.0, CelsiusToFahrenheit(25), 1e-9)
	assert.InDelta(t, 32.0, CelsiusToFahrenheit(0), 1e-9)
}

func TestFanStateJSON(t *testing.T) {
	type wrapper struct {
		S FanState `json:"s"`
	}
	for _, s := range []FanState{StateOff, StateOn, StateError, StateWarning} {
		data, err := json.Marshal(wrapper{S: s})
		require.NoError(t, err)
		assert.JSONEq(t, `{"s":"`+s.String()+`"}`, string(data))

		var back wrapper
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, s, back.S)
	}
	var w wrapper
	assert.Error(t, json.Unmarshal([]byte(`{"s":"spinning"}`), &w))
}
