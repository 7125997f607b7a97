// Package invariants exposes whether expensive internal consistency checks
// are compiled in. They are enabled by building with the "invariants" tag or
// with the race detector.
package invariants
