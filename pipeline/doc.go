// Package pipeline implements the three-stage decision pipeline: state
// selection, response composition and final arbitration. The stages run
// strictly sequentially; each stage's function signature requires the
// previous stage's concrete result value, so invoking stage N+1 without
// stage N's output is a type-level impossibility.
//
// Failure handling is uniform: backend errors (timeout, malformed output,
// out-of-range values) are converted into the stage's deterministic
// fallback inside the stage and never propagate. A run in which every
// stage fell back is still a successful run.
package pipeline
