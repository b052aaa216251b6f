// Package runstore persists clustering runs, their per-document assignments,
// the active-run pointer of each algorithm family and the in-progress lock.
//
// A run moves through
//
//	PENDING -> PROJECTING -> CLUSTERING -> LAYOUT_READY -> ACTIVE -> INACTIVE
//
// and may become FAILED from any state before ACTIVE. Assignments are written
// together with the cluster stats in one transaction (SaveResults), so a run
// never exposes partial assignments. Activate swaps the single-row pointer of
// the family and marks the previously active run INACTIVE in the same
// transaction.
//
// The in-progress guard is a row per family with a lease. A worker that dies
// without releasing it blocks the family only until the lease expires.
package runstore
