package testutil

import (
	"fmt"

	"github.com/tmkoller/peridyn/internal/particle"
)

// Site is one particle of a test configuration.
type Site struct {
	Tag   int64
	Type  int
	X     [3]float64
	Vfrac float64
}

// Line lays n unit-volume sites of type 1 along x, tag i+1 at i*spacing.
// The same arguments always produce the same sites, so tests comparing
// against golden output can rebuild the fixture freely.
func Line(n int, spacing float64) []Site {
	sites := make([]Site, n)
	for i := range sites {
		sites[i] = Site{
			Tag:   int64(i + 1),
			Type:  1,
			X:     [3]float64{float64(i) * spacing, 0, 0},
			Vfrac: 1.0,
		}
	}
	return sites
}

// Slab keeps only the sites whose x coordinate falls in [lo, hi), the
// slice of a global configuration one partition owns.
func Slab(sites []Site, lo, hi float64) []Site {
	var kept []Site
	for _, s := range sites {
		if s.X[0] >= lo && s.X[0] < hi {
			kept = append(kept, s)
		}
	}
	return kept
}

// Fill adds every site to the store as a locally owned particle, with
// the reference position equal to the current one.
func Fill(ps *particle.Store, sites []Site) error {
	for _, s := range sites {
		if _, err := ps.AddLocal(s.Tag, s.Type, s.X, s.X, s.Vfrac); err != nil {
			return fmt.Errorf("adding site %d: %w", s.Tag, err)
		}
	}
	return nil
}
