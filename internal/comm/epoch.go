package comm

import "sync/atomic"

// Epoch counts completed collective operations. The count is shared by the
// whole group, so two partitions comparing epochs after the same collective
// see the same value. Tests use it to pin down how many synchronization
// points an operation costs.
type Epoch struct {
	n atomic.Int64
}

// Next advances the epoch and returns the new value.
func (e *Epoch) Next() int64 { return e.n.Add(1) }

// Current returns the epoch without advancing it.
func (e *Epoch) Current() int64 { return e.n.Load() }
