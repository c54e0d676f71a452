package subtree

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the graph's topology: every live node's id and level
// plus its successor edges, in id order. Two graphs with the same shape
// fingerprint equal; useful for debugging dynamic re-parenting and for
// benchmark verification.
func (g *Graph) Fingerprint() uint64 {
	g.regMu.Lock()
	ids := make([]uint64, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	nodes := make([]ReactiveNode, 0, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id])
	}
	g.regMu.Unlock()

	h := xxhash.New()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	for _, n := range nodes {
		b := n.base()
		writeU64(b.id)
		writeU64(uint64(b.level))

		b.shift.RLock()
		writeU64(uint64(len(b.successors)))
		for _, s := range b.successors {
			writeU64(s.base().id)
		}
		b.shift.RUnlock()
	}
	return h.Sum64()
}

// NodeCount returns the number of live registered nodes.
func (g *Graph) NodeCount() int {
	g.regMu.Lock()
	defer g.regMu.Unlock()
	return len(g.nodes)
}
