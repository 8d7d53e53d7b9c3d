// Package checkpoint persists and restores partition state.
//
// Each partition serializes its particles, bond topology included, into
// a self-describing binary stream. Streams are archived in a SQLite
// database keyed by run, step, and rank, so a finished or interrupted
// run can be reopened, inspected, and restored later.
package checkpoint
