// Package particle owns per-particle storage for one partition.
//
// Particles live in structure-of-arrays slices indexed by transient local
// slot. Slots [0, Nlocal) hold locally owned particles; slots
// [Nlocal, Nlocal+Nghost) hold ghost replicas of particles owned elsewhere
// (or periodic images of local ones). Slot indices are never durable: the
// stable identifier is the positive global tag, and the store maintains the
// tag to slot map.
//
// Subsystems that keep their own per-particle state (the bond topology
// store is one) register a PerParticle handler. The store fans out growth,
// slot copies during compaction, migration packing, and restart packing to
// every registered handler, in registration order. Registration order is
// part of the wire contract: every partition must register the same
// handlers in the same order before any exchange takes place.
package particle
