// Package ring implements the cached token-ring view used to partition
// EXPORT work and to route IMPORT rows to their replica group.
package ring

import (
	"math/rand"
	"sort"
)

// HostInfo describes one ring replica, as much as the core needs of it.
type HostInfo struct {
	Address    string
	Datacenter string
	IsUp       bool
}

// TokenMap mirrors spec.md §3's {ring, replicas, pk_to_token} record.
// Ring is sorted ascending; Replicas[i] holds the replica set that owns
// the ring slot at Ring[i]. PKToToken must be bound once at
// construction time so per-row dispatch never re-derives it (spec.md
// §4.4).
type TokenMap struct {
	Ring      []int64
	Replicas  [][]HostInfo
	PKToToken func(partitionKey []byte) int64
	LocalDC   string
	SelfHost  string
}

// Degenerate builds the single-ring-position fallback described in
// spec.md §4.4 for when the driver exposes no token map: every key
// routes to the shell's own host.
func Degenerate(selfHost, localDC string) *TokenMap {
	return &TokenMap{
		Ring:      []int64{0},
		Replicas:  [][]HostInfo{{{Address: selfHost, Datacenter: localDC, IsUp: true}}},
		PKToToken: func([]byte) int64 { return 0 },
		LocalDC:   localDC,
		SelfHost:  selfHost,
	}
}

// GetRingPos returns bisect_right(ring, val) mod len(ring), the ring
// slot owning token val, per spec.md §4.4 / original_source
// TokenMap.get_ring_pos.
func (t *TokenMap) GetRingPos(val int64) int {
	idx := sort.Search(len(t.Ring), func(i int) bool { return t.Ring[i] > val })
	if idx < len(t.Ring) {
		return idx
	}
	return 0
}

// FilterReplicas randomly shuffles hosts then keeps only those that are
// up and in the local datacenter, falling back to the shell's own host
// when nothing qualifies, per spec.md §4.4.
func (t *TokenMap) FilterReplicas(hosts []HostInfo) []string {
	shuffled := make([]HostInfo, len(hosts))
	copy(shuffled, hosts)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	out := make([]string, 0, len(shuffled))
	for _, h := range shuffled {
		if h.IsUp && h.Datacenter == t.LocalDC {
			out = append(out, h.Address)
		}
	}
	if len(out) == 0 {
		out = append(out, t.SelfHost)
	}
	return out
}
