// Package neighbor produces candidate lists for bond discovery. The lists
// are over-inclusive: every pair within the cutoff plus a skin distance
// appears, and each partner of a local pair lists the other. Consumers
// apply the exact horizon test themselves.
package neighbor

import (
	"fmt"

	"github.com/tmkoller/peridyn/internal/particle"
)

// DefaultSkin pads the search radius so a list built once stays valid
// while particles drift a little.
const DefaultSkin = 0.3

// List holds, per local slot, the candidate slots (local or ghost) found
// within the padded cutoff.
type List struct {
	Neigh [][]int
}

// Pairs counts the candidate entries across all locals.
func (l *List) Pairs() int {
	n := 0
	for _, cand := range l.Neigh {
		n += len(cand)
	}
	return n
}

// Finder scans all slot pairs. Bond discovery runs once per simulation,
// and the sweep sees exactly the locals plus ghosts the domain prepared,
// periodic images included.
type Finder struct {
	skin float64
}

// Option configures a Finder.
type Option func(*Finder)

// WithSkin overrides the search padding. Zero disables it.
func WithSkin(skin float64) Option {
	return func(f *Finder) { f.skin = skin }
}

// NewFinder creates a Finder with the default skin.
func NewFinder(opts ...Option) (*Finder, error) {
	f := &Finder{skin: DefaultSkin}
	for _, opt := range opts {
		opt(f)
	}
	if f.skin < 0 {
		return nil, fmt.Errorf("neighbor: skin must not be negative, got %g", f.skin)
	}
	return f, nil
}

// Build scans the store and returns candidates within cut plus skin of
// each local particle.
func (f *Finder) Build(ps *particle.Store, cut float64) *List {
	nlocal := ps.Nlocal()
	total := nlocal + ps.Nghost()
	x := ps.X()
	reach := cut + f.skin
	reachsq := reach * reach

	neigh := make([][]int, nlocal)
	for i := 0; i < nlocal; i++ {
		for j := 0; j < total; j++ {
			if j == i {
				continue
			}
			dx := x[i][0] - x[j][0]
			dy := x[i][1] - x[j][1]
			dz := x[i][2] - x[j][2]
			if dx*dx+dy*dy+dz*dz <= reachsq {
				neigh[i] = append(neigh[i], j)
			}
		}
	}
	return &List{Neigh: neigh}
}
