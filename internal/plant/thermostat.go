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

package plant

import (
	"fmt"
	"math"

	"watches/internal/events"
)

// Thermostat is a two-threshold switch: on above SetPoint, off at or below
// SetPoint-Hysteresis.
type Thermostat struct {
	SetPoint   float64
	Hysteresis float64
}

func (th Thermostat) LowerThreshold() float64 {
	return th.SetPoint - th.Hysteresis
}

// Next returns the command a reading calls for given the fan's current
// state, or false when the fan should stay as it is. A fan in any state
// other than On or Off is left to reconciliation.
func (th Thermostat) Next(current events.FanState, t float64) (events.FanCommand, bool, error) {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, false, fmt.Errorf("temperature %v is not finite", t)
	}
	switch current {
	case events.StateOn:
		if t <= th.LowerThreshold() {
			return events.CommandTurnOff, true, nil
		}
	case events.StateOff:
		if t > th.SetPoint {
			return events.CommandTurnOn, true, nil
		}
	}
	return 0, false, nil
}
