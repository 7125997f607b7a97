//go:build invariants || race

package invariants

// Enabled is true when expensive internal checks should run.
const Enabled = true
