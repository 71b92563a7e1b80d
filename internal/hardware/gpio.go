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

package hardware

import (
	"sync"

	"github.com/stianeikeland/go-rpio"
)

// GPIORelay drives a relay board pin through /dev/gpiomem.
type GPIORelay struct {
	mu         sync.Mutex
	pin        rpio.Pin
	activeHigh bool
}

func OpenGPIORelay(pin int, activeHigh bool) (*GPIORelay, error) {
	if err := rpio.Open(); err != nil {
		return nil, &ActuatorFault{Driver: "gpio", Err: err}
	}
	r := &GPIORelay{pin: rpio.Pin(pin), activeHigh: activeHigh}
	r.pin.Output()
	// start de-energised
	_ = r.SetOutput(false)
	return r, nil
}

func (r *GPIORelay) SetOutput(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on == r.activeHigh {
		r.pin.High()
	} else {
		r.pin.Low()
	}
	return nil
}

// ReadOutput reads the pin level back rather than trusting the last write.
func (r *GPIORelay) ReadOutput() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	high := r.pin.Read() == rpio.High
	return high == r.activeHigh, nil
}

func (r *GPIORelay) Close() error {
	_ = r.SetOutput(false)
	return rpio.Close()
}
