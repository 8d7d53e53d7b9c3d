package particle

import (
	"fmt"
)

// growChunk is the minimum slot capacity added per growth step.
const growChunk = 16

// Store holds the particles of one partition in structure-of-arrays form.
type Store struct {
	tags  []int64
	types []int
	x0    [][3]float64
	x     [][3]float64
	vfrac []float64

	nlocal int
	nghost int
	nmax   int

	tag2slot map[int64]int

	handlers []PerParticle
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tag2slot: make(map[int64]int)}
}

// Nlocal returns the number of locally owned particles.
func (s *Store) Nlocal() int { return s.nlocal }

// Nghost returns the number of ghost replicas currently held.
func (s *Store) Nghost() int { return s.nghost }

// Nmax returns the allocated slot capacity. Handlers are sized to it.
func (s *Store) Nmax() int { return s.nmax }

// Tags returns the live tag slice covering locals then ghosts.
func (s *Store) Tags() []int64 { return s.tags[:s.nlocal+s.nghost] }

// Types returns the live material type slice.
func (s *Store) Types() []int { return s.types[:s.nlocal+s.nghost] }

// X returns the live current-position slice. Callers may write positions
// in place; ownership changes must go through migration.
func (s *Store) X() [][3]float64 { return s.x[:s.nlocal+s.nghost] }

// X0 returns the live reference-position slice.
func (s *Store) X0() [][3]float64 { return s.x0[:s.nlocal+s.nghost] }

// Vfrac returns the live volume-fraction slice.
func (s *Store) Vfrac() []float64 { return s.vfrac[:s.nlocal+s.nghost] }

// Slot resolves a global tag to its local slot. Ghost images never shadow
// a locally owned particle with the same tag.
func (s *Store) Slot(tag int64) (int, bool) {
	slot, ok := s.tag2slot[tag]
	return slot, ok
}

// Register adds a per-particle handler and sizes it to the current
// capacity. CRITICAL: every partition must register the same handlers in
// the same order before any exchange; handler payload order is part of the
// wire format.
func (s *Store) Register(h PerParticle) error {
	if err := h.GrowTo(s.nmax); err != nil {
		return fmt.Errorf("sizing handler on register: %w", err)
	}
	s.handlers = append(s.handlers, h)
	return nil
}

// Unregister removes a previously registered handler.
func (s *Store) Unregister(h PerParticle) {
	for i, reg := range s.handlers {
		if reg == h {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

// AddLocal appends a locally owned particle and returns its slot. Locals
// cannot be added while ghost replicas are present: migration and ghost
// builds clear ghosts first so the local region stays contiguous.
func (s *Store) AddLocal(tag int64, typ int, x0, x [3]float64, vfrac float64) (int, error) {
	if tag <= 0 {
		return 0, fmt.Errorf("particle: tag must be positive, got %d", tag)
	}
	if s.nghost > 0 {
		return 0, fmt.Errorf("particle: cannot add local particle %d while %d ghosts are present", tag, s.nghost)
	}
	if prev, ok := s.tag2slot[tag]; ok && prev < s.nlocal {
		return 0, fmt.Errorf("particle: tag %d already owned locally", tag)
	}
	if err := s.ensure(s.nlocal + 1); err != nil {
		return 0, err
	}
	slot := s.nlocal
	s.tags[slot] = tag
	s.types[slot] = typ
	s.x0[slot] = x0
	s.x[slot] = x
	s.vfrac[slot] = vfrac
	s.tag2slot[tag] = slot
	s.nlocal++
	return slot, nil
}

// AddGhost appends a ghost replica and returns its slot. Multiple images
// of the same tag may coexist; the tag map keeps the first slot, so a
// local particle is never shadowed by its own image.
func (s *Store) AddGhost(tag int64, typ int, x0, x [3]float64, vfrac float64) (int, error) {
	if tag <= 0 {
		return 0, fmt.Errorf("particle: ghost tag must be positive, got %d", tag)
	}
	if err := s.ensure(s.nlocal + s.nghost + 1); err != nil {
		return 0, err
	}
	slot := s.nlocal + s.nghost
	s.tags[slot] = tag
	s.types[slot] = typ
	s.x0[slot] = x0
	s.x[slot] = x
	s.vfrac[slot] = vfrac
	if _, ok := s.tag2slot[tag]; !ok {
		s.tag2slot[tag] = slot
	}
	s.nghost++
	return slot, nil
}

// ClearGhosts drops every ghost replica. Local particles keep their slots.
func (s *Store) ClearGhosts() {
	for slot := s.nlocal; slot < s.nlocal+s.nghost; slot++ {
		if mapped, ok := s.tag2slot[s.tags[slot]]; ok && mapped == slot {
			delete(s.tag2slot, s.tags[slot])
		}
	}
	s.nghost = 0
}

// RemoveLocal deletes a locally owned particle by copying the last local
// into its slot. Handlers see the same copy, so their state compacts in
// lockstep. Ghosts must be cleared first.
func (s *Store) RemoveLocal(slot int) error {
	if s.nghost > 0 {
		return fmt.Errorf("particle: cannot remove local slot %d while %d ghosts are present", slot, s.nghost)
	}
	if slot < 0 || slot >= s.nlocal {
		return fmt.Errorf("particle: slot %d out of local range %d", slot, s.nlocal)
	}
	delete(s.tag2slot, s.tags[slot])
	last := s.nlocal - 1
	if slot != last {
		s.copySlot(last, slot)
		s.tag2slot[s.tags[slot]] = slot
	}
	s.nlocal--
	return nil
}

func (s *Store) copySlot(src, dst int) {
	s.tags[dst] = s.tags[src]
	s.types[dst] = s.types[src]
	s.x0[dst] = s.x0[src]
	s.x[dst] = s.x[src]
	s.vfrac[dst] = s.vfrac[src]
	for _, h := range s.handlers {
		h.CopySlot(src, dst)
	}
}

// ensure grows the store, and every handler, to hold at least n slots.
func (s *Store) ensure(n int) error {
	if n <= s.nmax {
		return nil
	}
	newmax := s.nmax
	if newmax < growChunk {
		newmax = growChunk
	}
	for newmax < n {
		newmax *= 2
	}
	tags := make([]int64, newmax)
	copy(tags, s.tags)
	types := make([]int, newmax)
	copy(types, s.types)
	x0 := make([][3]float64, newmax)
	copy(x0, s.x0)
	x := make([][3]float64, newmax)
	copy(x, s.x)
	vfrac := make([]float64, newmax)
	copy(vfrac, s.vfrac)
	s.tags, s.types, s.x0, s.x, s.vfrac = tags, types, x0, x, vfrac
	s.nmax = newmax
	for _, h := range s.handlers {
		if err := h.GrowTo(newmax); err != nil {
			return fmt.Errorf("growing handler to %d slots: %w", newmax, err)
		}
	}
	return nil
}
