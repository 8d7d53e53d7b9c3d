package bond

import "math"

// computeWeightedVolume accumulates each local particle's weighted volume
// over its intact bonds, from reference positions. A partner tag that
// does not resolve to a slot is skipped: the bond stays intact and its
// contribution simply waits until the partner is visible again.
func (m *Manager) computeWeightedVolume() {
	nlocal := m.particles.Nlocal()
	x0 := m.particles.X0()
	types := m.particles.Types()
	vfrac := m.particles.Vfrac()
	halfLattice := 0.5 * m.lattice

	for i := 0; i < nlocal; i++ {
		row := m.store.PartnerRow(i)
		r0row := m.store.R0Row(i)
		for k, tag := range row {
			if tag == 0 {
				continue
			}
			j, ok := m.particles.Slot(tag)
			if !ok {
				continue
			}
			dx0 := x0[i][0] - x0[j][0]
			dy0 := x0[i][1] - x0[j][1]
			dz0 := x0[i][2] - x0[j][2]
			rsq0 := dx0*dx0 + dy0*dy0 + dz0*dz0
			delta := m.table.Cut(types[i], types[j])
			scale := vfracScale(r0row[k], delta, halfLattice)
			m.store.AddWvolume(i, m.influence.Weight(dx0, dy0, dz0)*rsq0*vfrac[j]*scale)
		}
	}
}

// vfracScale blends a partial volume for bonds whose reference length
// lands within half a lattice spacing of the horizon, tapering from 1 at
// delta-halfLattice to 0.5 at delta. Everything deeper inside the horizon
// counts fully.
func vfracScale(r0, delta, halfLattice float64) float64 {
	if halfLattice > 0 && math.Abs(r0-delta) <= halfLattice {
		return -r0/(2*halfLattice) + 1.0 + (delta-halfLattice)/(2*halfLattice)
	}
	return 1.0
}
