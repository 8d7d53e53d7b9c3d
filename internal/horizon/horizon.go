// Package horizon holds the per-type-pair interaction cutoffs that bound
// bond formation. The table is symmetric: setting a pair sets its mirror.
package horizon

import (
	"fmt"
	"math"
)

// Table is the symmetric per-type-pair cutoff table. Material types are
// 1-based so type values index the table directly; row and column 0 are
// unused.
type Table struct {
	ntypes int
	cut    [][]float64
	cutsq  [][]float64
	set    [][]bool
}

// NewTable creates a table for ntypes material types with no pairs set.
func NewTable(ntypes int) (*Table, error) {
	if ntypes < 1 {
		return nil, fmt.Errorf("horizon: ntypes must be at least 1, got %d", ntypes)
	}
	t := &Table{
		ntypes: ntypes,
		cut:    make([][]float64, ntypes+1),
		cutsq:  make([][]float64, ntypes+1),
		set:    make([][]bool, ntypes+1),
	}
	for i := range t.cut {
		t.cut[i] = make([]float64, ntypes+1)
		t.cutsq[i] = make([]float64, ntypes+1)
		t.set[i] = make([]bool, ntypes+1)
	}
	return t, nil
}

// NTypes returns the number of material types the table covers.
func (t *Table) NTypes() int { return t.ntypes }

// Set assigns the cutoff for the (ti, tj) pair and its mirror.
func (t *Table) Set(ti, tj int, cut float64) error {
	if err := t.checkPair(ti, tj); err != nil {
		return err
	}
	if cut <= 0 {
		return fmt.Errorf("horizon: cutoff for pair (%d,%d) must be positive, got %g", ti, tj, cut)
	}
	t.cut[ti][tj] = cut
	t.cut[tj][ti] = cut
	t.cutsq[ti][tj] = cut * cut
	t.cutsq[tj][ti] = cut * cut
	t.set[ti][tj] = true
	t.set[tj][ti] = true
	return nil
}

// Cut returns the cutoff distance for the pair.
func (t *Table) Cut(ti, tj int) float64 { return t.cut[ti][tj] }

// Cutsq returns the squared cutoff for the pair. Distance tests against it
// are inclusive: a separation exactly at the cutoff qualifies.
func (t *Table) Cutsq(ti, tj int) float64 { return t.cutsq[ti][tj] }

// MaxCut returns the largest cutoff in the table. Ghost exchange and
// candidate search widths derive from it.
func (t *Table) MaxCut() float64 {
	max := 0.0
	for i := 1; i <= t.ntypes; i++ {
		for j := i; j <= t.ntypes; j++ {
			max = math.Max(max, t.cut[i][j])
		}
	}
	return max
}

// Validate reports an error if any type pair was never set. There is no
// mixing rule: every pair must be assigned explicitly.
func (t *Table) Validate() error {
	for i := 1; i <= t.ntypes; i++ {
		for j := i; j <= t.ntypes; j++ {
			if !t.set[i][j] {
				return fmt.Errorf("horizon: cutoff for pair (%d,%d) is not set", i, j)
			}
		}
	}
	return nil
}

func (t *Table) checkPair(ti, tj int) error {
	if ti < 1 || ti > t.ntypes || tj < 1 || tj > t.ntypes {
		return fmt.Errorf("horizon: pair (%d,%d) out of range for %d types", ti, tj, t.ntypes)
	}
	return nil
}
