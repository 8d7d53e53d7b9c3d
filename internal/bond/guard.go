package bond

// checkDuplicates scans every local particle for a partner tag recorded
// twice. A domain shorter than two horizons along a periodic axis bonds a
// particle both to a neighbor and to that neighbor's wrapped image, which
// the tag-addressed topology cannot represent. Nothing recovers from it;
// the domain is simply too small for the horizon.
func (m *Manager) checkDuplicates() error {
	nlocal := m.particles.Nlocal()
	tags := m.particles.Tags()
	for i := 0; i < nlocal; i++ {
		row := m.store.PartnerRow(i)
		for a := 0; a < len(row); a++ {
			if row[a] == 0 {
				continue
			}
			for b := a + 1; b < len(row); b++ {
				if row[a] == row[b] {
					return NewDuplicateBondError(m.comm.Rank(), tags[i], row[a])
				}
			}
		}
	}
	return nil
}
