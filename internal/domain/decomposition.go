package domain

import (
	"fmt"
	"math"
)

// Decomposition splits the box into equal slabs along x, one per
// partition. Slabs are half-open like the box, so every position has
// exactly one owner.
type Decomposition struct {
	box Box
	n   int
}

// NewSlabDecomposition validates the box and splits it n ways.
func NewSlabDecomposition(box Box, n int) (*Decomposition, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("domain: partition count must be at least 1, got %d", n)
	}
	return &Decomposition{box: box, n: n}, nil
}

// Box returns the global box.
func (d *Decomposition) Box() Box { return d.box }

// Size returns the partition count.
func (d *Decomposition) Size() int { return d.n }

// Bounds returns the x interval [lo, hi) of a partition's slab.
func (d *Decomposition) Bounds(rank int) (lo, hi float64) {
	length := d.box.Length(0)
	lo = d.box.Lo[0] + length*float64(rank)/float64(d.n)
	hi = d.box.Lo[0] + length*float64(rank+1)/float64(d.n)
	return lo, hi
}

// Owner returns the partition owning position x. Positions are expected
// wrapped; anything still outside the box clamps to the end slabs.
func (d *Decomposition) Owner(x [3]float64) int {
	length := d.box.Length(0)
	rank := int(math.Floor((x[0] - d.box.Lo[0]) / length * float64(d.n)))
	if rank < 0 {
		return 0
	}
	if rank >= d.n {
		return d.n - 1
	}
	return rank
}
