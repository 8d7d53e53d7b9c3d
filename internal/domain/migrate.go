package domain

import (
	"context"
	"fmt"

	"github.com/tmkoller/peridyn/internal/comm"
	"github.com/tmkoller/peridyn/internal/particle"
)

// MigrateStats counts one partition's migration traffic.
type MigrateStats struct {
	Sent     int
	Received int
}

// Migrate transfers ownership of particles that left their slab. Ghosts
// are invalidated, positions are wrapped into the box, leavers are packed
// (handler state included) and shipped to their new owner, and arrivals
// are appended as locals. All partitions must call Migrate together;
// rebuild ghosts afterwards.
func Migrate(ctx context.Context, c comm.Communicator, d *Decomposition, ps *particle.Store) (MigrateStats, error) {
	var stats MigrateStats
	ps.ClearGhosts()

	rank := c.Rank()
	box := d.box
	x := ps.X()
	sends := make(map[int][]float64)

	// Walk backwards so the copy-last compaction never moves a slot the
	// walk has yet to visit.
	for slot := ps.Nlocal() - 1; slot >= 0; slot-- {
		wrapped := box.Wrap(x[slot])
		x[slot] = wrapped
		dst := d.Owner(wrapped)
		if dst == rank {
			continue
		}
		sends[dst] = ps.AppendExchange(slot, sends[dst])
		if err := ps.RemoveLocal(slot); err != nil {
			return stats, fmt.Errorf("removing migrated slot %d: %w", slot, err)
		}
		stats.Sent++
	}

	recv, err := c.Exchange(ctx, sends)
	if err != nil {
		return stats, fmt.Errorf("exchanging migrants: %w", err)
	}
	for src := 0; src < c.Size(); src++ {
		words := recv[src]
		if len(words) == 0 {
			continue
		}
		added, err := ps.UnpackArrivals(words)
		if err != nil {
			return stats, fmt.Errorf("unpacking migrants from rank %d: %w", src, err)
		}
		stats.Received += added
	}
	return stats, nil
}
