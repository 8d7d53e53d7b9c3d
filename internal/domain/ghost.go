package domain

import (
	"context"
	"fmt"

	"github.com/tmkoller/peridyn/internal/comm"
	"github.com/tmkoller/peridyn/internal/particle"
)

// ghostWords is the fixed width of one ghost record: tag, type, x0, x
// (three words each), vfrac.
const ghostWords = 9

// BuildGhosts rebuilds the ghost layer: every partition receives copies
// of the particles, periodic images included, lying within cut of its
// slab. It returns the forward plan matching the new layout, for pushing
// owner values back out to the ghosts later.
//
// Record order is deterministic on both sides (ascending slot, then image
// shift, on the sender; ascending source rank on the receiver), so the
// plan's send and receive sides line up without any further negotiation.
// All partitions must call BuildGhosts together.
func BuildGhosts(ctx context.Context, c comm.Communicator, d *Decomposition, ps *particle.Store, cut float64) (comm.ForwardPlan, error) {
	plan := comm.ForwardPlan{
		Sends: make(map[int][]int),
		Recvs: make(map[int][]int),
	}
	if cut < 0 {
		return plan, fmt.Errorf("domain: ghost cutoff must not be negative, got %g", cut)
	}
	ps.ClearGhosts()

	box := d.box
	shifts := box.imageShifts()
	rank := c.Rank()

	tags := ps.Tags()
	types := ps.Types()
	x := ps.X()
	x0 := ps.X0()
	vfrac := ps.Vfrac()

	sends := make(map[int][]float64)
	for slot := 0; slot < ps.Nlocal(); slot++ {
		for _, shift := range shifts {
			pos := [3]float64{x[slot][0] + shift[0], x[slot][1] + shift[1], x[slot][2] + shift[2]}
			if !withinExpandedBox(box, pos, cut) {
				continue
			}
			for dst := 0; dst < c.Size(); dst++ {
				if dst == rank && shift == ([3]float64{}) {
					continue
				}
				lo, hi := d.Bounds(dst)
				if pos[0] < lo-cut || pos[0] >= hi+cut {
					continue
				}
				sends[dst] = append(sends[dst],
					float64(tags[slot]),
					float64(types[slot]),
					x0[slot][0]+shift[0], x0[slot][1]+shift[1], x0[slot][2]+shift[2],
					pos[0], pos[1], pos[2],
					vfrac[slot],
				)
				plan.Sends[dst] = append(plan.Sends[dst], slot)
			}
		}
	}

	recv, err := c.Exchange(ctx, sends)
	if err != nil {
		return plan, fmt.Errorf("exchanging ghost layers: %w", err)
	}
	for src := 0; src < c.Size(); src++ {
		words := recv[src]
		if len(words) == 0 {
			continue
		}
		if len(words)%ghostWords != 0 {
			return plan, fmt.Errorf("domain: ghost payload from rank %d holds %d words, not a multiple of %d",
				src, len(words), ghostWords)
		}
		for off := 0; off < len(words); off += ghostWords {
			slot, err := ps.AddGhost(
				int64(words[off]),
				int(words[off+1]),
				[3]float64{words[off+2], words[off+3], words[off+4]},
				[3]float64{words[off+5], words[off+6], words[off+7]},
				words[off+8],
			)
			if err != nil {
				return plan, fmt.Errorf("appending ghost from rank %d: %w", src, err)
			}
			plan.Recvs[src] = append(plan.Recvs[src], slot)
		}
	}
	return plan, nil
}

// withinExpandedBox keeps only image positions that can matter: anything
// farther than cut outside the box can never fall within a horizon of an
// owned particle.
func withinExpandedBox(b Box, pos [3]float64, cut float64) bool {
	for d := 0; d < 3; d++ {
		if pos[d] < b.Lo[d]-cut || pos[d] > b.Hi[d]+cut {
			return false
		}
	}
	return true
}
