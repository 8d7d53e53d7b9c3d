// Package comm provides the collective communication surface partitions
// use to agree on global state.
//
// Every partition of a run executes the same program over its own
// particles and meets the others at blocking collective calls: bound
// reductions, bond statistics sums, and bulk payload exchange during ghost
// builds and migration. The Communicator interface captures exactly those
// meeting points. Serial serves single-partition runs; LocalGroup runs any
// number of partitions in one process over a shared rendezvous, which is
// what the command line tools and the scenario harness use.
//
// Collectives are whole-group: every member must call the same operation.
// A partition that fails before reaching a collective cancels the shared
// context (see RunGroup), which releases the members already waiting.
package comm
