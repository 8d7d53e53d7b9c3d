package particle

// PerParticle is implemented by subsystems that maintain their own
// per-particle state alongside the store. The store invokes handlers in
// registration order whenever slots are created, copied, migrated, or
// checkpointed.
type PerParticle interface {
	// GrowTo resizes the handler's arrays to hold at least n slots.
	// Existing slot contents must be preserved.
	GrowTo(n int) error

	// CopySlot copies all per-particle state from slot src to slot dst.
	CopySlot(src, dst int)

	// AppendExchange appends the slot's migration record to buf and
	// returns the extended buffer. The record must be self-describing:
	// UnpackExchange on the receiving partition consumes exactly what
	// AppendExchange wrote.
	AppendExchange(slot int, buf []float64) []float64

	// UnpackExchange reads one migration record for slot from the front
	// of words and returns the number of words consumed.
	UnpackExchange(slot int, words []float64) (int, error)

	// AppendRestart appends the slot's checkpoint record to buf and
	// returns the extended buffer. The record leads with its own length
	// in words (counting the length word) so readers that do not know
	// the handler can skip it.
	AppendRestart(slot int, buf []float64) []float64

	// UnpackRestart reads one checkpoint record for slot from the front
	// of words and returns the number of words consumed.
	UnpackRestart(slot int, words []float64) (int, error)

	// MaxRestartWords returns an upper bound on the words AppendRestart
	// can emit for one slot. Writers use it to presize buffers.
	MaxRestartWords() int
}
