package bond

import (
	"fmt"
	"math"
)

// Influence weights a bond's contribution to the weighted volume by its
// reference separation vector. Weights must be non-negative.
type Influence interface {
	Weight(dx, dy, dz float64) float64
}

// Uniform weights every bond equally, the bond-based microelastic model.
type Uniform struct{}

func (Uniform) Weight(dx, dy, dz float64) float64 { return 1.0 }

func (Uniform) String() string { return "uniform" }

// InverseDistance weights a bond by the reciprocal of its reference
// length, as state-based linear solid models do. A zero-length separation
// contributes nothing.
type InverseDistance struct{}

func (InverseDistance) Weight(dx, dy, dz float64) float64 {
	r := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if r == 0 {
		return 0
	}
	return 1.0 / r
}

func (InverseDistance) String() string { return "inverse-distance" }

// ParseInfluence maps a configuration name to its influence model. The
// empty name selects Uniform.
func ParseInfluence(name string) (Influence, error) {
	switch name {
	case "", "uniform":
		return Uniform{}, nil
	case "inverse-distance":
		return InverseDistance{}, nil
	}
	return nil, fmt.Errorf("bond: unknown influence model %q", name)
}
