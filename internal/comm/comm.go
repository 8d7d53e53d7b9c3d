package comm

import (
	"context"
	"fmt"
)

// Communicator is the collective surface one partition sees. All methods
// block until every member of the group has made the matching call, or
// until ctx is cancelled.
type Communicator interface {
	// Rank identifies this partition within the group, in [0, Size).
	Rank() int

	// Size returns the number of partitions in the group.
	Size() int

	// AllreduceMaxInt returns the maximum of v over all partitions.
	AllreduceMaxInt(ctx context.Context, v int) (int, error)

	// AllreduceSumInt64 returns the sum of v over all partitions.
	AllreduceSumInt64(ctx context.Context, v int64) (int64, error)

	// Exchange delivers each sends[dst] payload to partition dst and
	// returns the payloads addressed to this partition, keyed by source
	// rank. Sending to the own rank is allowed and loops back. Receivers
	// own the returned slices.
	Exchange(ctx context.Context, sends map[int][]float64) (map[int][]float64, error)
}

// ForwardPlan describes a ghost forward exchange: Sends lists, per peer,
// the local slots whose values the peer needs; Recvs lists, per peer, the
// ghost slots the incoming values fill. The slot order of Sends[p] on one
// partition matches Recvs[q] on the other side, which makes the exchange a
// pure gather, swap, scatter.
type ForwardPlan struct {
	Sends map[int][]int
	Recvs map[int][]int
}

// Serial is the single-partition communicator. Reductions are identities
// and exchanges loop back.
type Serial struct {
	epoch Epoch
}

// NewSerial creates a communicator for a one-partition group.
func NewSerial() *Serial { return &Serial{} }

func (s *Serial) Rank() int { return 0 }
func (s *Serial) Size() int { return 1 }

// Epochs returns the number of collective operations completed.
func (s *Serial) Epochs() int64 { return s.epoch.Current() }

func (s *Serial) AllreduceMaxInt(ctx context.Context, v int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.epoch.Next()
	return v, nil
}

func (s *Serial) AllreduceSumInt64(ctx context.Context, v int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.epoch.Next()
	return v, nil
}

func (s *Serial) Exchange(ctx context.Context, sends map[int][]float64) (map[int][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recv := make(map[int][]float64, len(sends))
	for dst, words := range sends {
		if dst != 0 {
			return nil, fmt.Errorf("comm: rank 0 cannot send to rank %d in a single-partition group", dst)
		}
		recv[0] = words
	}
	s.epoch.Next()
	return recv, nil
}
