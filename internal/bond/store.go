package bond

import "fmt"

// Store holds the bond topology of one partition's particles: per slot, a
// row of partner tags with their reference separations, plus the vinter
// and weighted-volume scalars. Rows share one global bound, maxPartner,
// agreed collectively; the rows are flat slices with that bound as stride.
//
// Partner tag zero is a tombstone. Tombstones accumulate as bonds break
// and are dropped only when the particle migrates; reference separations
// are written once per bond and never rewritten in place.
type Store struct {
	maxPartner int
	built      bool
	nmax       int

	count   []int
	partner []int64
	r0      []float64
	vinter  []float64
	wvolume []float64

	budget int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMemoryBudget caps the bytes the store may allocate for its arrays.
// Growth past the cap fails with an ALLOC_FAILED error instead of
// exhausting the machine. Zero means unlimited.
func WithMemoryBudget(bytes int64) StoreOption {
	return func(s *Store) { s.budget = bytes }
}

// NewStore creates an empty store with the placeholder bound of one
// partner per particle. The real bound arrives with the first build or a
// checkpoint header.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{maxPartner: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxPartner returns the agreed global partner bound.
func (s *Store) MaxPartner() int { return s.maxPartner }

// Built reports whether the topology has been populated. A built store is
// never populated again.
func (s *Store) Built() bool { return s.built }

// Count returns the occupied row length for slot, tombstones included.
func (s *Store) Count(slot int) int { return s.count[slot] }

// PartnerRow returns the live partner tags of slot. The slice aliases the
// store; entries are tombstoned through Break, not through the slice.
func (s *Store) PartnerRow(slot int) []int64 {
	base := slot * s.maxPartner
	return s.partner[base : base+s.count[slot]]
}

// R0Row returns the reference separations matching PartnerRow.
func (s *Store) R0Row(slot int) []float64 {
	base := slot * s.maxPartner
	return s.r0[base : base+s.count[slot]]
}

// LiveBonds counts the intact bonds of slot.
func (s *Store) LiveBonds(slot int) int {
	live := 0
	for _, tag := range s.PartnerRow(slot) {
		if tag != 0 {
			live++
		}
	}
	return live
}

// Vinter returns the accumulated neighbor volume fraction of slot.
func (s *Store) Vinter(slot int) float64 { return s.vinter[slot] }

// AddVinter accumulates a neighbor's volume fraction onto slot.
func (s *Store) AddVinter(slot int, v float64) { s.vinter[slot] += v }

// Wvolume returns the weighted volume of slot.
func (s *Store) Wvolume(slot int) float64 { return s.wvolume[slot] }

// SetWvolume overwrites the weighted volume of slot. Ghost refresh uses
// it; local values normally grow through AddWvolume.
func (s *Store) SetWvolume(slot int, v float64) { s.wvolume[slot] = v }

// AddWvolume accumulates a bond contribution onto slot's weighted volume.
func (s *Store) AddWvolume(slot int, v float64) { s.wvolume[slot] += v }

// AppendBond records a new bond from slot to the particle with the given
// tag at reference separation r0. The caller must have sized the bound
// first: appending past it is a protocol violation, not a growth trigger.
func (s *Store) AppendBond(slot int, tag int64, r0 float64) error {
	if s.count[slot] == s.maxPartner {
		return NewSerializationError(fmt.Sprintf(
			"slot %d already holds %d partners, the agreed bound", slot, s.maxPartner))
	}
	k := slot*s.maxPartner + s.count[slot]
	s.partner[k] = tag
	s.r0[k] = r0
	s.count[slot]++
	return nil
}

// Break tombstones bond k of slot. The row keeps its length; migration
// packing drops the hole later.
func (s *Store) Break(slot, k int) error {
	if k < 0 || k >= s.count[slot] {
		return fmt.Errorf("bond: break index %d out of range %d for slot %d", k, s.count[slot], slot)
	}
	s.partner[slot*s.maxPartner+k] = 0
	return nil
}

// GrowBound widens every row to the new global bound. Rows keep their
// contents. Shrinking is not a thing: a smaller bound is a no-op.
//
// CRITICAL: callers must complete GrowBound on every partition before any
// record packed against the new bound is exchanged.
func (s *Store) GrowBound(bound int) error {
	if bound <= s.maxPartner {
		return nil
	}
	if err := s.checkBudget(s.nmax, bound); err != nil {
		return err
	}
	partner := make([]int64, s.nmax*bound)
	r0 := make([]float64, s.nmax*bound)
	for slot := 0; slot < s.nmax; slot++ {
		copy(partner[slot*bound:], s.partner[slot*s.maxPartner:(slot+1)*s.maxPartner])
		copy(r0[slot*bound:], s.r0[slot*s.maxPartner:(slot+1)*s.maxPartner])
	}
	s.partner, s.r0 = partner, r0
	s.maxPartner = bound
	return nil
}

// GrowTo resizes the particle dimension to at least n slots. The particle
// store drives it through the PerParticle registration.
func (s *Store) GrowTo(n int) error {
	if n <= s.nmax {
		return nil
	}
	if err := s.checkBudget(n, s.maxPartner); err != nil {
		return err
	}
	partner := make([]int64, n*s.maxPartner)
	copy(partner, s.partner)
	r0 := make([]float64, n*s.maxPartner)
	copy(r0, s.r0)
	count := make([]int, n)
	copy(count, s.count)
	vinter := make([]float64, n)
	copy(vinter, s.vinter)
	wvolume := make([]float64, n)
	copy(wvolume, s.wvolume)
	s.partner, s.r0, s.count, s.vinter, s.wvolume = partner, r0, count, vinter, wvolume
	s.nmax = n
	return nil
}

// CopySlot copies all bond state from slot src to slot dst.
func (s *Store) CopySlot(src, dst int) {
	s.count[dst] = s.count[src]
	s.vinter[dst] = s.vinter[src]
	s.wvolume[dst] = s.wvolume[src]
	sb, db := src*s.maxPartner, dst*s.maxPartner
	copy(s.partner[db:db+s.maxPartner], s.partner[sb:sb+s.maxPartner])
	copy(s.r0[db:db+s.maxPartner], s.r0[sb:sb+s.maxPartner])
}

// MemoryBytes returns the bytes the store's arrays occupy.
func (s *Store) MemoryBytes() int64 { return bytesFor(s.nmax, s.maxPartner) }

func (s *Store) checkBudget(nmax, bound int) error {
	if s.budget <= 0 {
		return nil
	}
	if need := bytesFor(nmax, bound); need > s.budget {
		return NewAllocError(fmt.Sprintf(
			"bond storage for %d slots at partner bound %d needs %d bytes, budget is %d",
			nmax, bound, need, s.budget))
	}
	return nil
}

// bytesFor prices the arrays: a tag and a separation per row entry, plus
// the three per-slot scalars (count priced as a word).
func bytesFor(nmax, bound int) int64 {
	return int64(nmax) * (16*int64(bound) + 24)
}
