// Package domain owns the simulation box, its periodicity, and the slab
// decomposition that assigns particles to partitions. It builds ghost
// layers (periodic images included) and moves particles between owners
// when they cross slab boundaries.
package domain

import (
	"fmt"
	"math"
)

// Box is the global simulation region, half-open per dimension:
// a position belongs to [Lo, Hi). Periodic dimensions wrap.
type Box struct {
	Lo       [3]float64
	Hi       [3]float64
	Periodic [3]bool
}

// Validate checks that every dimension has positive extent.
func (b Box) Validate() error {
	for d := 0; d < 3; d++ {
		if !(b.Hi[d] > b.Lo[d]) {
			return fmt.Errorf("domain: box extent along %c is %g, want positive",
				"xyz"[d], b.Hi[d]-b.Lo[d])
		}
	}
	return nil
}

// Length returns the box extent along dimension d.
func (b Box) Length(d int) float64 { return b.Hi[d] - b.Lo[d] }

// AnyPeriodic reports whether any dimension wraps.
func (b Box) AnyPeriodic() bool {
	return b.Periodic[0] || b.Periodic[1] || b.Periodic[2]
}

// Wrap folds x into the box along periodic dimensions. Aperiodic
// dimensions pass through untouched, even outside the box.
func (b Box) Wrap(x [3]float64) [3]float64 {
	for d := 0; d < 3; d++ {
		if !b.Periodic[d] {
			continue
		}
		length := b.Length(d)
		x[d] -= length * math.Floor((x[d]-b.Lo[d])/length)
		if x[d] >= b.Hi[d] {
			x[d] = b.Lo[d]
		}
	}
	return x
}

// imageShifts enumerates the periodic image offsets of the box, the zero
// shift first, then the wrapped images dimension by dimension.
func (b Box) imageShifts() [][3]float64 {
	shifts := [][3]float64{{0, 0, 0}}
	for d := 0; d < 3; d++ {
		if !b.Periodic[d] {
			continue
		}
		length := b.Length(d)
		grown := make([][3]float64, 0, len(shifts)*3)
		for _, s := range shifts {
			grown = append(grown, s)
			minus, plus := s, s
			minus[d] -= length
			plus[d] += length
			grown = append(grown, minus, plus)
		}
		shifts = grown
	}
	return shifts
}
