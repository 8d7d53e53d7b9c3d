// Package bond manages the bonded-neighbor topology of a peridynamic
// particle system.
//
// Bonds are discovered once, at first setup, between every pair of
// particles within the material horizon, and the resulting network is
// fixed for the life of the run: bonds can be broken (their partner entry
// tombstoned to zero) but never added. The Store keeps each local
// particle's partner tags, reference separations, and the derived vinter
// and weighted-volume scalars inside a single global partner bound that
// all partitions agree on collectively and that only ever grows.
//
// The Manager drives the lifecycle: the two-pass build against a candidate
// neighbor list, the duplicate-bond check under periodic boundaries, the
// weighted-volume accumulation, and the forward sync that refreshes ghost
// replicas. The Store also implements particle.PerParticle, so migration
// and checkpoint traffic carry the topology alongside the particles that
// own it.
package bond
