// Package ring implements ringdb's partition placement: hashing a
// partition key onto the node positions of the cluster ring, and
// computing the contiguous clockwise replica arc that owns it (spec §2,
// §3 GLOSSARY "Ring").
package ring

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/cuemby/ringdb/pkg/model"
)

// Ring is a read-only snapshot of the cluster's node positions, sorted
// ascending, used to place partitions and compute replica arcs. Build a
// fresh Ring whenever membership changes (spec §4.8 gossip merge, §4.10
// rebalance); Ring itself does not watch metadata.
type Ring struct {
	positions []int
	byPos     map[int]*model.Node
}

// New builds a Ring snapshot from the given nodes. Nodes are deduplicated
// by position; the last one wins.
func New(nodes []*model.Node) *Ring {
	byPos := make(map[int]*model.Node, len(nodes))
	for _, n := range nodes {
		byPos[n.Position] = n
	}
	positions := make([]int, 0, len(byPos))
	for p := range byPos {
		positions = append(positions, p)
	}
	sort.Ints(positions)
	return &Ring{positions: positions, byPos: byPos}
}

// Size returns the number of distinct node positions on the ring.
func (r *Ring) Size() int {
	return len(r.positions)
}

// HashKey hashes a partition key to its ring position, per spec §2:
// `pos = hash(partition_key) mod |nodes| + 1`.
func (r *Ring) HashKey(partitionKey string) int {
	return HashMod(partitionKey, len(r.positions))
}

// HashMod applies spec §2's placement formula given an already-known
// cluster size, so callers that only need the arithmetic (such as the
// tests) don't need a full Ring.
func HashMod(partitionKey string, clusterSize int) int {
	if clusterSize <= 0 {
		return 0
	}
	h := xxhash.Sum64String(partitionKey)
	return int(h%uint64(clusterSize)) + 1
}

// Owner returns the node owning the given partition key: the node whose
// position is the smallest position >= the hashed position, wrapping
// around the ring (spec GLOSSARY "Ring").
func (r *Ring) Owner(partitionKey string) (*model.Node, bool) {
	if len(r.positions) == 0 {
		return nil, false
	}
	h := r.HashKey(partitionKey)
	i := sort.SearchInts(r.positions, h)
	if i == len(r.positions) {
		i = 0
	}
	return r.byPos[r.positions[i]], true
}

// ReplicaArc returns the RF replicas for a partition key: the owning
// node followed by the next RF-1 positions clockwise (spec §3 invariant
// 5). If RF exceeds the ring size, every known node is returned exactly
// once.
func (r *Ring) ReplicaArc(partitionKey string, rf int) []*model.Node {
	if len(r.positions) == 0 || rf <= 0 {
		return nil
	}
	h := r.HashKey(partitionKey)
	start := sort.SearchInts(r.positions, h)
	if start == len(r.positions) {
		start = 0
	}
	n := rf
	if n > len(r.positions) {
		n = len(r.positions)
	}
	out := make([]*model.Node, 0, n)
	for i := 0; i < n; i++ {
		pos := r.positions[(start+i)%len(r.positions)]
		out = append(out, r.byPos[pos])
	}
	return out
}

// IsReplica reports whether the node at the given position is one of the
// partition key's replicas for the given replication factor.
func (r *Ring) IsReplica(partitionKey string, rf int, position int) bool {
	for _, n := range r.ReplicaArc(partitionKey, rf) {
		if n.Position == position {
			return true
		}
	}
	return false
}

// Positions returns the ring's node positions in ascending order. The
// returned slice is owned by the caller.
func (r *Ring) Positions() []int {
	out := make([]int, len(r.positions))
	copy(out, r.positions)
	return out
}
