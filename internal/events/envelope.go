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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Separator delimits the fields of a wire line. Payloads must not contain it;
// nothing is escaped.
const Separator = "::"

// SecondsPerDay is the number of distinct TimeOfDay values.
const SecondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall-clock second of the day, 0..SecondsPerDay-1.
type TimeOfDay int

// NoTimestamp marks an envelope whose line carried no time field.
const NoTimestamp TimeOfDay = -1

func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (d TimeOfDay) String() string {
	if d < 0 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d:%02d", int(d)/3600, (int(d)/60)%60, int(d)%60)
}

// ParseTimeOfDay parses HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return NoTimestamp, fmt.Errorf("timestamp %q is not HH:MM:SS", s)
	}
	limits := [3]int{24, 60, 60}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n >= limits[i] {
			return NoTimestamp, fmt.Errorf("timestamp %q is not HH:MM:SS", s)
		}
		v[i] = n
	}
	return TimeOfDay(v[0]*3600 + v[1]*60 + v[2]), nil
}

// Envelope is one decoded wire line.
type Envelope struct {
	Topic     Topic
	Payload   string
	Timestamp TimeOfDay
}

// MalformedMessageError reports a line that does not fit the protocol.
type MalformedMessageError struct {
	Line   string
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message %q: %s", e.Line, e.Reason)
}

func malformed(line, format string, v ...any) error {
	return &MalformedMessageError{Line: line, Reason: fmt.Sprintf(format, v...)}
}

// Encode produces the two-field form "topic::payload".
func Encode(topic Topic, payload string) string {
	return topic.String() + Separator + payload
}

// EncodeAt produces the three-field form "topic::payload::HH:MM:SS".
func EncodeAt(topic Topic, payload string, at TimeOfDay) string {
	return topic.String() + Separator + payload + Separator + at.String()
}

// Decode splits a line and checks it against the schema of its topic.
func Decode(line string) (Envelope, error) {
	fields := strings.Split(line, Separator)
	topic, err := ParseTopic(fields[0])
	if err != nil {
		return Envelope{}, malformed(line, "%v", err)
	}
	if want := topic.fields(); len(fields) != want {
		return Envelope{}, malformed(line, "%s expects %d fields, got %d", topic, want, len(fields))
	}

	env := Envelope{Topic: topic, Payload: fields[1], Timestamp: NoTimestamp}
	if len(fields) == 3 {
		if env.Timestamp, err = ParseTimeOfDay(fields[2]); err != nil {
			return Envelope{}, malformed(line, "%v", err)
		}
	}
	return env, nil
}

func (e Envelope) String() string {
	if e.Timestamp == NoTimestamp {
		return Encode(e.Topic, e.Payload)
	}
	return EncodeAt(e.Topic, e.Payload, e.Timestamp)
}

// Temperature parses the payload of a temperature envelope. Non-finite
// values parse successfully; the caller decides whether to act on them.
func (e Envelope) Temperature() (float64, error) {
	if e.Topic != TopicTemperature {
		return 0, malformed(e.String(), "not a temperature envelope")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(e.Payload), 64)
	if err != nil {
		return 0, malformed(e.String(), "temperature payload: %v", err)
	}
	return v, nil
}

func (e Envelope) Command() (FanCommand, error) {
	if e.Topic != TopicFanCommand {
		return 0, malformed(e.String(), "not a fan command envelope")
	}
	c, err := ParseFanCommand(e.Payload)
	if err != nil {
		return 0, malformed(e.String(), "%v", err)
	}
	return c, nil
}

func (e Envelope) State() (FanState, error) {
	if e.Topic != TopicFanState {
		return 0, malformed(e.String(), "not a fan state envelope")
	}
	s, err := ParseFanState(e.Payload)
	if err != nil {
		return 0, malformed(e.String(), "%v", err)
	}
	return s, nil
}

// TemperatureLine builds the line a sensor publishes.
func TemperatureLine(degF float64, at TimeOfDay) string {
	return EncodeAt(TopicTemperature, FormatTemperature(degF), at)
}

// CommandLine builds the line the controller sends to the actuator.
func CommandLine(c FanCommand) string {
	return Encode(TopicFanCommand, c.String())
}

// StateLine builds the line an actuator publishes after acting.
func StateLine(s FanState, at TimeOfDay) string {
	return EncodeAt(TopicFanState, s.String(), at)
}

func FormatTemperature(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CelsiusToFahrenheit converts at the sensor boundary; everything past it is °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}
