package neighbor

import (
	"testing"

	"github.com/tmkoller/peridyn/internal/particle"
	"github.com/tmkoller/peridyn/internal/testutil"
)

func lineStore(t *testing.T, n int, spacing float64) *particle.Store {
	t.Helper()
	ps := particle.NewStore()
	if err := testutil.Fill(ps, testutil.Line(n, spacing)); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	return ps
}

func TestNewFinderRejectsNegativeSkin(t *testing.T) {
	if _, err := NewFinder(WithSkin(-0.1)); err == nil {
		t.Fatal("NewFinder with negative skin should fail")
	}
}

func TestBuildListsBothDirections(t *testing.T) {
	ps := lineStore(t, 4, 1.0)
	f, err := NewFinder(WithSkin(0))
	if err != nil {
		t.Fatalf("NewFinder failed: %v", err)
	}

	list := f.Build(ps, 1.5)
	want := [][]int{
		{1},
		{0, 2},
		{1, 3},
		{2},
	}
	for i, cand := range list.Neigh {
		if len(cand) != len(want[i]) {
			t.Fatalf("slot %d candidates = %v, want %v", i, cand, want[i])
		}
		for k := range cand {
			if cand[k] != want[i][k] {
				t.Errorf("slot %d candidates = %v, want %v", i, cand, want[i])
				break
			}
		}
	}
	if list.Pairs() != 6 {
		t.Errorf("Pairs() = %d, want 6", list.Pairs())
	}
}

func TestSkinWidensTheSweep(t *testing.T) {
	ps := lineStore(t, 3, 1.0)
	f, err := NewFinder(WithSkin(0.6))
	if err != nil {
		t.Fatalf("NewFinder failed: %v", err)
	}

	// Cut 1.5 plus skin 0.6 reaches the spacing-2 neighbor: candidates
	// may exceed what the horizon test will accept.
	list := f.Build(ps, 1.5)
	if got := len(list.Neigh[0]); got != 2 {
		t.Errorf("slot 0 has %d candidates, want 2 with the skin applied", got)
	}
}

func TestBuildIncludesGhosts(t *testing.T) {
	ps := lineStore(t, 2, 1.0)
	ps.AddGhost(7, 1, [3]float64{-1, 0, 0}, [3]float64{-1, 0, 0}, 1.0)

	f, err := NewFinder(WithSkin(0))
	if err != nil {
		t.Fatalf("NewFinder failed: %v", err)
	}
	list := f.Build(ps, 1.5)

	// Slot 0 sees the other local and the ghost; the ghost gets no list
	// of its own.
	if len(list.Neigh) != 2 {
		t.Fatalf("list covers %d slots, want locals only (2)", len(list.Neigh))
	}
	if len(list.Neigh[0]) != 2 {
		t.Errorf("slot 0 candidates = %v, want local 1 and ghost 2", list.Neigh[0])
	}
}
