// Package conversation implements the versioned conversation store with
// optimistic-concurrency writes. The conditional Save is the only
// cross-worker coordination mechanism in the system: a worker that loses
// the version race discards its in-progress decision and re-runs the
// pipeline against freshly loaded state.
package conversation
