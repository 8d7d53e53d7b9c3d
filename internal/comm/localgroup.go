package comm

import (
	"context"
	"fmt"
	"sync"
)

type opKind string

const (
	opMax      opKind = "allreduce-max"
	opSum      opKind = "allreduce-sum"
	opExchange opKind = "exchange"
)

// round is one in-flight collective. Members deposit inputs under the
// group lock; the last to arrive computes the result and closes done.
// After done closes the round is immutable.
type round struct {
	kind    opKind
	arrived int
	done    chan struct{}
	err     error

	maxIn int
	sumIn int64
	sends []map[int][]float64

	maxOut int
	sumOut int64
	recvs  []map[int][]float64
}

func (r *round) finish(size int) {
	switch r.kind {
	case opMax:
		r.maxOut = r.maxIn
	case opSum:
		r.sumOut = r.sumIn
	case opExchange:
		recvs := make([]map[int][]float64, size)
		for src := 0; src < size; src++ {
			for dst, words := range r.sends[src] {
				if dst < 0 || dst >= size {
					r.err = fmt.Errorf("comm: rank %d sent to rank %d, group has %d partitions", src, dst, size)
					return
				}
				if recvs[dst] == nil {
					recvs[dst] = make(map[int][]float64)
				}
				recvs[dst][src] = words
			}
		}
		r.recvs = recvs
	}
}

// LocalGroup runs a whole partition group in one process. Each rank holds
// a view from Comm; collectives rendezvous on a shared round.
type LocalGroup struct {
	size  int
	epoch Epoch

	mu  sync.Mutex
	cur *round
}

// NewLocalGroup creates a group of size partitions.
func NewLocalGroup(size int) (*LocalGroup, error) {
	if size < 1 {
		return nil, fmt.Errorf("comm: group size must be at least 1, got %d", size)
	}
	return &LocalGroup{size: size}, nil
}

// Size returns the number of partitions in the group.
func (g *LocalGroup) Size() int { return g.size }

// Epochs returns the number of collective operations the group completed.
func (g *LocalGroup) Epochs() int64 { return g.epoch.Current() }

// Comm returns the communicator for one rank of the group.
func (g *LocalGroup) Comm(rank int) (Communicator, error) {
	if rank < 0 || rank >= g.size {
		return nil, fmt.Errorf("comm: rank %d out of range for group of %d", rank, g.size)
	}
	return &groupComm{g: g, rank: rank}, nil
}

// enter joins the current round, creating it on first arrival, and runs
// deposit under the lock. A kind mismatch poisons the round for every
// member: results computed from mixed collectives would be garbage.
func (g *LocalGroup) enter(kind opKind, deposit func(*round)) *round {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil {
		g.cur = &round{
			kind:  kind,
			done:  make(chan struct{}),
			sends: make([]map[int][]float64, g.size),
		}
	}
	r := g.cur
	if r.kind != kind && r.err == nil {
		r.err = fmt.Errorf("comm: mismatched collectives: round started as %s, got %s", r.kind, kind)
	}
	if r.err == nil {
		deposit(r)
	}
	r.arrived++
	if r.arrived == g.size {
		if r.err == nil {
			r.finish(g.size)
		}
		close(r.done)
		g.cur = nil
		g.epoch.Next()
	}
	return r
}

func waitRound(ctx context.Context, r *round) error {
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.err
}

// groupComm is one rank's view of a LocalGroup.
type groupComm struct {
	g    *LocalGroup
	rank int
}

func (c *groupComm) Rank() int { return c.rank }
func (c *groupComm) Size() int { return c.g.size }

func (c *groupComm) AllreduceMaxInt(ctx context.Context, v int) (int, error) {
	r := c.g.enter(opMax, func(r *round) {
		if r.arrived == 0 || v > r.maxIn {
			r.maxIn = v
		}
	})
	if err := waitRound(ctx, r); err != nil {
		return 0, err
	}
	return r.maxOut, nil
}

func (c *groupComm) AllreduceSumInt64(ctx context.Context, v int64) (int64, error) {
	r := c.g.enter(opSum, func(r *round) {
		r.sumIn += v
	})
	if err := waitRound(ctx, r); err != nil {
		return 0, err
	}
	return r.sumOut, nil
}

func (c *groupComm) Exchange(ctx context.Context, sends map[int][]float64) (map[int][]float64, error) {
	r := c.g.enter(opExchange, func(r *round) {
		r.sends[c.rank] = sends
	})
	if err := waitRound(ctx, r); err != nil {
		return nil, err
	}
	recv := r.recvs[c.rank]
	if recv == nil {
		recv = make(map[int][]float64)
	}
	return recv, nil
}
