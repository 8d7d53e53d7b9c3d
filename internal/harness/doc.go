// Package harness executes conformance scenarios against the topology
// pipeline.
//
// A scenario names a configuration file and a flow of operations: build
// the ghost layer and the bond topology, displace and break, migrate,
// resync, checkpoint, restore. Every partition appends one trace event
// per operation; the merged trace is deterministic, so golden files can
// pin the expected behavior byte for byte. Scenario assertions check the
// final topology on top of the trace comparison.
package harness
