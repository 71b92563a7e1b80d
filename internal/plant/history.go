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
	"math"

	"watches/internal/events"
)

// History holds one reading per second of the day, indexed directly by
// second-of-day. Slots are overwritten in place and never shifted, so a
// reading from yesterday survives until the same second comes round again.
type History struct {
	slots [events.SecondsPerDay]float64
}

// NewHistory returns a buffer with every slot empty.
func NewHistory() *History {
	h := &History{}
	for i := range h.slots {
		h.slots[i] = math.NaN()
	}
	return h
}

func (h *History) Set(at events.TimeOfDay, v float64) {
	h.slots[slot(at)] = v
}

func (h *History) Get(at events.TimeOfDay) (float64, bool) {
	v := h.slots[slot(at)]
	return v, !math.IsNaN(v)
}

type Sample struct {
	At    string  `json:"at"`
	Value float64 `json:"value"`
}

// Window returns the written slots among the n seconds ending at end,
// oldest first, wrapping past midnight.
func (h *History) Window(end events.TimeOfDay, n int) []Sample {
	n = min(max(n, 0), events.SecondsPerDay)
	out := make([]Sample, 0, 64)
	for i := n - 1; i >= 0; i-- {
		at := events.TimeOfDay(slot(end - events.TimeOfDay(i)))
		if v, ok := h.Get(at); ok {
			out = append(out, Sample{At: at.String(), Value: v})
		}
	}
	return out
}

func slot(at events.TimeOfDay) int {
	s := int(at) % events.SecondsPerDay
	if s < 0 {
		s += events.SecondsPerDay
	}
	return s
}
