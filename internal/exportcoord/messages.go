// Package exportcoord implements the EXPORT half of the bridge:
// spec.md §4.6-§4.8's coordinator, worker pool, and CSV writer,
// grounded on the teacher's internal/benchmark.Runner (worker channels
// fanned out from one parser, a shared results channel fanned in) but
// generalized from a fixed 3-column hostname query to arbitrary
// token-range SELECTs dispatched over the ring.
package exportcoord

import "github.com/sandinv/ringcopy/internal/ring"

// Assignment is one unit of work handed to an export worker: a token
// range plus its mutable bookkeeping (hosts, attempts, rows so far).
type Assignment struct {
	Range ring.TokenRange
	State *ring.RangeState
}

// Result is the tagged union an export worker reports back, mirroring
// spec.md §4.6 step 5's four message shapes.
type Result struct {
	Range *ring.TokenRange // nil => worker-level (fatal) result
	Done  bool              // true => (None, None): this range finished
	Rows  [][]string        // non-nil => a partial CSV chunk for Range
	Err   error             // non-nil => range-level or worker-level error
}
