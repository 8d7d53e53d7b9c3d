package bond

import (
	"context"
	"fmt"
)

// SyncGhosts refreshes the weighted volume on ghost replicas from the
// partitions that own them, following the installed forward plan. Every
// partition must call it together: the underlying exchange is collective
// even when a partition has nothing to forward.
func (m *Manager) SyncGhosts(ctx context.Context) error {
	sends := make(map[int][]float64, len(m.plan.Sends))
	for peer, slots := range m.plan.Sends {
		payload := make([]float64, len(slots))
		for k, slot := range slots {
			payload[k] = m.store.Wvolume(slot)
		}
		sends[peer] = payload
	}
	recv, err := m.comm.Exchange(ctx, sends)
	if err != nil {
		return fmt.Errorf("forwarding weighted volume to ghosts: %w", err)
	}
	for peer, slots := range m.plan.Recvs {
		words := recv[peer]
		if len(words) != len(slots) {
			return NewSerializationError(fmt.Sprintf(
				"ghost sync from rank %d carried %d values for %d ghost slots",
				peer, len(words), len(slots)))
		}
		for k, slot := range slots {
			m.store.SetWvolume(slot, words[k])
		}
	}
	return nil
}
