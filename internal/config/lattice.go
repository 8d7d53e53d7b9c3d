package config

import "math"

// ParticleSpec is one generated particle, ready to hand to a store.
type ParticleSpec struct {
	Tag   int64
	Type  int
	X     [3]float64
	Vfrac float64
}

// Particles generates the initial configuration: a simple cubic lattice
// anchored at the low corner of the box, one site per spacing, stopping
// short of the high face. Tags count up from 1 in x-fastest order, so
// the same configuration always yields the same numbering.
func (c *Config) Particles() []ParticleSpec {
	mat, ok := c.Material(c.Lattice.Type)
	if !ok {
		return nil
	}
	box := c.Box()
	spacing := c.Lattice.Spacing

	var counts [3]int
	for d := 0; d < 3; d++ {
		counts[d] = latticeCount(box.Hi[d]-box.Lo[d], spacing)
	}

	specs := make([]ParticleSpec, 0, counts[0]*counts[1]*counts[2])
	tag := int64(1)
	for k := 0; k < counts[2]; k++ {
		for j := 0; j < counts[1]; j++ {
			for i := 0; i < counts[0]; i++ {
				specs = append(specs, ParticleSpec{
					Tag:  tag,
					Type: mat.Type,
					X: [3]float64{
						box.Lo[0] + float64(i)*spacing,
						box.Lo[1] + float64(j)*spacing,
						box.Lo[2] + float64(k)*spacing,
					},
					Vfrac: mat.Vfrac,
				})
				tag++
			}
		}
	}
	return specs
}

// latticeCount is the number of sites along one dimension. The tolerance
// keeps a length that is an exact multiple of the spacing from gaining a
// site on the high face through rounding.
func latticeCount(length, spacing float64) int {
	if length <= 0 || spacing <= 0 {
		return 0
	}
	return int(math.Floor((length-spacing*1e-9)/spacing)) + 1
}
