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

import "fmt"

// Topic identifies one of the three message streams. The set is closed.
type Topic int

const (
	TopicTemperature Topic = iota + 1
	TopicFanCommand
	TopicFanState
)

var AllTopics = []Topic{TopicTemperature, TopicFanCommand, TopicFanState}

func (t Topic) String() string {
	switch t {
	case TopicTemperature:
		return "temp"
	case TopicFanCommand:
		return "fancontrol"
	case TopicFanState:
		return "fanstate"
	}
	return fmt.Sprintf("topic(%d)", int(t))
}

// fields is the number of separator-delimited fields a line of this topic carries.
func (t Topic) fields() int {
	switch t {
	case TopicFanCommand:
		return 2
	case TopicTemperature, TopicFanState:
		return 3
	}
	return 0
}

func ParseTopic(s string) (Topic, error) {
	switch s {
	case "temp":
		return TopicTemperature, nil
	case "fancontrol":
		return TopicFanCommand, nil
	case "fanstate":
		return TopicFanState, nil
	}
	return 0, fmt.Errorf("unknown topic %q", s)
}

// FanCommand is sent from the controller to the actuator.
type FanCommand int

const (
	CommandGetState FanCommand = iota + 1
	CommandTurnOn
	CommandTurnOff
)

func (c FanCommand) String() string {
	switch c {
	case CommandGetState:
		return "getstate"
	case CommandTurnOn:
		return "turnon"
	case CommandTurnOff:
		return "turnoff"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

func ParseFanCommand(s string) (FanCommand, error) {
	switch s {
	case "getstate":
		return CommandGetState, nil
	case "turnon":
		return CommandTurnOn, nil
	case "turnoff":
		return CommandTurnOff, nil
	}
	return 0, fmt.Errorf("unknown fan command %q", s)
}

// FanState is reported by the actuator and doubles as the controller's
// aggregate status. Warning is never sent on the wire.
type FanState int

const (
	StateOff FanState = iota
	StateOn
	StateError
	StateWarning
)

func (s FanState) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	case StateError:
		return "error"
	case StateWarning:
		return "warning"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets FanState render as its wire name in JSON.
func (s FanState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *FanState) UnmarshalText(b []byte) error {
	if string(b) == "warning" {
		*s = StateWarning
		return nil
	}
	v, err := ParseFanState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseFanState accepts the values an actuator may report.
func ParseFanState(s string) (FanState, error) {
	switch s {
	case "off":
		return StateOff, nil
	case "on":
		return StateOn, nil
	case "error":
		return StateError, nil
	}
	return 0, fmt.Errorf("unknown fan state %q", s)
}

// StateFor returns the output state an on/off command asks for.
func StateFor(c FanCommand) (FanState, bool) {
	switch c {
	case CommandTurnOn:
		return StateOn, true
	case CommandTurnOff:
		return StateOff, true
	case CommandGetState:
		return 0, false
	}
	return 0, false
}

// CommandFor returns the command that drives the actuator to s.
func CommandFor(s FanState) (FanCommand, bool) {
	switch s {
	case StateOn:
		return CommandTurnOn, true
	case StateOff:
		return CommandTurnOff, true
	case StateError, StateWarning:
		return 0, false
	}
	return 0, false
}
