package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunGroup executes fn once per partition of an in-process group and waits
// for all of them. The first error cancels the shared context, which
// releases partitions blocked in collectives, and is returned.
func RunGroup(ctx context.Context, partitions int, fn func(ctx context.Context, c Communicator) error) error {
	group, err := NewLocalGroup(partitions)
	if err != nil {
		return err
	}
	eg, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < partitions; rank++ {
		c, err := group.Comm(rank)
		if err != nil {
			return fmt.Errorf("building rank %d: %w", rank, err)
		}
		eg.Go(func() error {
			return fn(ctx, c)
		})
	}
	return eg.Wait()
}
