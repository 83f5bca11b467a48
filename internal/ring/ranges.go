package ring

import "sort"

// TokenRange is the half-open (begin, end] pair of spec.md §3. A nil
// bound means unbounded on that side.
type TokenRange struct {
	Begin *int64
	End   *int64
}

// RangeState is the export coordinator's per-range mutable bookkeeping
// record (spec.md §3). Invariant: Attempts is monotonic, and a range
// with Rows > 0 is never retried.
type RangeState struct {
	Hosts    []string
	Attempts int
	Rows     int
}

// Partitioner names the supported hash functions, used only to derive
// the ring's structural minimum token (spec.md §4.6 step 2).
type Partitioner int

const (
	PartitionerNone Partitioner = iota
	PartitionerMurmur3
	PartitionerRandom
)

// MinToken returns the partitioner's minimum token, or nil when the
// partitioner has no defined minimum (None degenerates to a single
// unbounded range).
func (p Partitioner) MinToken() *int64 {
	switch p {
	case PartitionerMurmur3:
		v := int64(-1) << 63
		return &v
	case PartitionerRandom:
		v := int64(-1)
		return &v
	default:
		return nil
	}
}

func ptr(v int64) *int64 { return &v }

// intersect clips the (prev, curr] segment — prev nil meaning
// unbounded below — against the caller-supplied (begin, end] window,
// returning ok=false when the intersection is empty. Ported from
// original_source copyutil.py's make_range; prev/curr use *int64 here
// because the ring-walk's own "previous" sentinel starts unbounded,
// exactly like begin/end can be.
func intersect(prev *int64, curr int64, begin, end *int64) (lo *int64, hi int64, ok bool) {
	lo, hi = prev, curr
	if begin != nil {
		if hi <= *begin {
			return nil, 0, false
		}
		if lo == nil || *lo < *begin {
			lo = begin
		}
	}
	if end != nil {
		if lo != nil && *lo >= *end {
			return nil, 0, false
		}
		if hi > *end {
			hi = *end
		}
	}
	return lo, hi, true
}

// BuildRanges computes the set of token ranges to export, replicating
// original_source copyutil.py's get_ranges: walk the sorted ring,
// emit (prev, curr] for each adjacent pair that doesn't land on the
// ring's structural minimum, intersect with any caller window, and
// reuse the first ring slot's replicas for the trailing wrap-around
// segment. The ring-walk's "previous" pointer starts at nil (unbounded
// below); since no real token can be smaller than the partitioner's
// minimum, this is equivalent to anchoring coverage at min_token (see
// DESIGN.md Open Question 1).
func (t *TokenMap) BuildRanges(part Partitioner, beginToken, endToken *int64) map[TokenRange]*RangeState {
	ranges := map[TokenRange]*RangeState{}
	minToken := part.MinToken()

	makeRangeData := func(replicas []HostInfo) *RangeState {
		hosts := t.FilterReplicas(replicas)
		return &RangeState{Hosts: hosts, Attempts: 0, Rows: 0}
	}

	if minToken == nil || len(t.Ring) == 0 {
		ranges[TokenRange{Begin: beginToken, End: endToken}] = makeRangeData(nil)
		return ranges
	}

	if len(t.Ring) == 1 {
		ranges[TokenRange{Begin: beginToken, End: endToken}] = makeRangeData(t.Replicas[0])
		return ranges
	}

	order := make([]int, len(t.Ring))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return t.Ring[order[i]] < t.Ring[order[j]] })

	var firstRangeData *RangeState
	var previous *int64
	for _, idx := range order {
		token := t.Ring[idx]
		replicas := t.Replicas[idx]

		if firstRangeData == nil {
			firstRangeData = makeRangeData(replicas)
		}

		if token == *minToken {
			continue
		}

		lo, hi, ok := intersect(previous, token, beginToken, endToken)
		if ok {
			ranges[TokenRange{Begin: lo, End: ptr(hi)}] = makeRangeData(replicas)
		}
		previous = ptr(token)
	}

	if previous != nil && (endToken == nil || *previous < *endToken) {
		ranges[TokenRange{Begin: previous, End: endToken}] = firstRangeData
	}

	return ranges
}
