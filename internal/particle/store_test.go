package particle

import (
	"errors"
	"testing"
)

// stubHandler keeps one float64 per slot so tests can watch the handler
// fan-out. Its exchange record is the bare value; its restart record is
// length-framed.
type stubHandler struct {
	vals      []float64
	growCalls int
	growErr   error
}

func (h *stubHandler) GrowTo(n int) error {
	h.growCalls++
	if h.growErr != nil {
		return h.growErr
	}
	if n > len(h.vals) {
		grown := make([]float64, n)
		copy(grown, h.vals)
		h.vals = grown
	}
	return nil
}

func (h *stubHandler) CopySlot(src, dst int) { h.vals[dst] = h.vals[src] }

func (h *stubHandler) AppendExchange(slot int, buf []float64) []float64 {
	return append(buf, h.vals[slot])
}

func (h *stubHandler) UnpackExchange(slot int, words []float64) (int, error) {
	if len(words) < 1 {
		return 0, errors.New("stub: short exchange record")
	}
	h.vals[slot] = words[0]
	return 1, nil
}

func (h *stubHandler) AppendRestart(slot int, buf []float64) []float64 {
	return append(buf, 2, h.vals[slot])
}

func (h *stubHandler) UnpackRestart(slot int, words []float64) (int, error) {
	if len(words) < 2 || int(words[0]) != 2 {
		return 0, errors.New("stub: bad restart record")
	}
	h.vals[slot] = words[1]
	return 2, nil
}

func (h *stubHandler) MaxRestartWords() int { return 2 }

func TestAddLocalAssignsSlotsAndTags(t *testing.T) {
	s := NewStore()

	for i := 0; i < 5; i++ {
		tag := int64(i + 1)
		slot, err := s.AddLocal(tag, 1, [3]float64{float64(i), 0, 0}, [3]float64{float64(i), 0, 0}, 1.0)
		if err != nil {
			t.Fatalf("AddLocal(%d) failed: %v", tag, err)
		}
		if slot != i {
			t.Errorf("AddLocal(%d) slot = %d, want %d", tag, slot, i)
		}
	}
	if s.Nlocal() != 5 {
		t.Errorf("Nlocal() = %d, want 5", s.Nlocal())
	}
	slot, ok := s.Slot(3)
	if !ok || slot != 2 {
		t.Errorf("Slot(3) = %d,%v, want 2,true", slot, ok)
	}
}

func TestAddLocalRejectsBadInput(t *testing.T) {
	s := NewStore()
	if _, err := s.AddLocal(0, 1, [3]float64{}, [3]float64{}, 1.0); err == nil {
		t.Error("AddLocal with tag 0 should fail")
	}
	if _, err := s.AddLocal(-7, 1, [3]float64{}, [3]float64{}, 1.0); err == nil {
		t.Error("AddLocal with negative tag should fail")
	}

	if _, err := s.AddLocal(4, 1, [3]float64{}, [3]float64{}, 1.0); err != nil {
		t.Fatalf("AddLocal(4) failed: %v", err)
	}
	if _, err := s.AddLocal(4, 1, [3]float64{}, [3]float64{}, 1.0); err == nil {
		t.Error("AddLocal with duplicate tag should fail")
	}

	if _, err := s.AddGhost(9, 1, [3]float64{}, [3]float64{}, 1.0); err != nil {
		t.Fatalf("AddGhost(9) failed: %v", err)
	}
	if _, err := s.AddLocal(5, 1, [3]float64{}, [3]float64{}, 1.0); err == nil {
		t.Error("AddLocal with ghosts present should fail")
	}
}

func TestGhostImagesDoNotShadowLocals(t *testing.T) {
	s := NewStore()
	s.AddLocal(1, 1, [3]float64{0, 0, 0}, [3]float64{0, 0, 0}, 1.0)

	// Two periodic images of the local particle plus a foreign ghost.
	s.AddGhost(1, 1, [3]float64{4, 0, 0}, [3]float64{4, 0, 0}, 1.0)
	s.AddGhost(1, 1, [3]float64{-4, 0, 0}, [3]float64{-4, 0, 0}, 1.0)
	gslot, _ := s.AddGhost(2, 1, [3]float64{1, 0, 0}, [3]float64{1, 0, 0}, 1.0)

	if slot, ok := s.Slot(1); !ok || slot != 0 {
		t.Errorf("Slot(1) = %d,%v, want the local slot 0", slot, ok)
	}
	if slot, ok := s.Slot(2); !ok || slot != gslot {
		t.Errorf("Slot(2) = %d,%v, want ghost slot %d", slot, ok, gslot)
	}

	s.ClearGhosts()
	if s.Nghost() != 0 {
		t.Errorf("Nghost() = %d after ClearGhosts, want 0", s.Nghost())
	}
	if _, ok := s.Slot(2); ok {
		t.Error("Slot(2) still resolves after ClearGhosts")
	}
	if slot, ok := s.Slot(1); !ok || slot != 0 {
		t.Errorf("Slot(1) = %d,%v after ClearGhosts, want 0,true", slot, ok)
	}
}

func TestRemoveLocalCompactsWithHandlers(t *testing.T) {
	s := NewStore()
	h := &stubHandler{}
	if err := s.Register(h); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		slot, err := s.AddLocal(int64(i+1), 1, [3]float64{float64(i), 0, 0}, [3]float64{float64(i), 0, 0}, 1.0)
		if err != nil {
			t.Fatalf("AddLocal failed: %v", err)
		}
		h.vals[slot] = float64((i + 1) * 10)
	}

	// Remove tag 2 (slot 1): tag 4 moves into its slot.
	if err := s.RemoveLocal(1); err != nil {
		t.Fatalf("RemoveLocal(1) failed: %v", err)
	}
	if s.Nlocal() != 3 {
		t.Fatalf("Nlocal() = %d, want 3", s.Nlocal())
	}
	if s.Tags()[1] != 4 {
		t.Errorf("Tags()[1] = %d, want 4", s.Tags()[1])
	}
	if slot, ok := s.Slot(4); !ok || slot != 1 {
		t.Errorf("Slot(4) = %d,%v, want 1,true", slot, ok)
	}
	if _, ok := s.Slot(2); ok {
		t.Error("Slot(2) still resolves after removal")
	}
	if h.vals[1] != 40 {
		t.Errorf("handler value at slot 1 = %g, want 40 (copied from tag 4)", h.vals[1])
	}

	// Removing the last slot needs no copy.
	if err := s.RemoveLocal(2); err != nil {
		t.Fatalf("RemoveLocal(2) failed: %v", err)
	}
	if s.Nlocal() != 2 {
		t.Errorf("Nlocal() = %d, want 2", s.Nlocal())
	}
}

func TestRemoveLocalRejectsBadState(t *testing.T) {
	s := NewStore()
	s.AddLocal(1, 1, [3]float64{}, [3]float64{}, 1.0)

	if err := s.RemoveLocal(5); err == nil {
		t.Error("RemoveLocal out of range should fail")
	}

	s.AddGhost(2, 1, [3]float64{}, [3]float64{}, 1.0)
	if err := s.RemoveLocal(0); err == nil {
		t.Error("RemoveLocal with ghosts present should fail")
	}
}

func TestGrowthFansOutToHandlers(t *testing.T) {
	s := NewStore()
	h := &stubHandler{}
	if err := s.Register(h); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	for i := 0; i < growChunk+1; i++ {
		if _, err := s.AddLocal(int64(i+1), 1, [3]float64{}, [3]float64{}, 1.0); err != nil {
			t.Fatalf("AddLocal failed at %d: %v", i, err)
		}
	}
	if s.Nmax() < growChunk+1 {
		t.Errorf("Nmax() = %d, want at least %d", s.Nmax(), growChunk+1)
	}
	if len(h.vals) < s.Nmax() {
		t.Errorf("handler sized to %d, want at least %d", len(h.vals), s.Nmax())
	}
	// Register + two growth steps (to growChunk, then doubled).
	if h.growCalls < 3 {
		t.Errorf("handler saw %d grow calls, want at least 3", h.growCalls)
	}
}

func TestGrowthErrorPropagates(t *testing.T) {
	s := NewStore()
	h := &stubHandler{growErr: errors.New("budget exceeded")}
	if err := s.Register(h); err == nil {
		t.Fatal("Register() should surface the handler growth error")
	}

	// A handler that starts failing after registration surfaces on add.
	ok := &stubHandler{}
	if err := s.Register(ok); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	ok.growErr = errors.New("budget exceeded")
	if _, err := s.AddLocal(1, 1, [3]float64{}, [3]float64{}, 1.0); err == nil {
		t.Fatal("AddLocal should surface the handler growth error")
	}
}

func TestUnregisterStopsFanOut(t *testing.T) {
	s := NewStore()
	h := &stubHandler{}
	s.Register(h)
	s.Unregister(h)

	s.AddLocal(1, 1, [3]float64{}, [3]float64{}, 1.0)
	buf := s.AppendExchange(0, nil)
	if len(buf) != 1+9 {
		t.Errorf("exchange record has %d words, want 10 with no handlers", len(buf))
	}
}
