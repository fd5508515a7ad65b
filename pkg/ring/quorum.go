package ring

import "github.com/cuemby/ringdb/pkg/wire"

// Quorum computes the number of replica acknowledgements the delegator
// must collect to satisfy a consistency level against a replica set of
// the given size (spec §4.5.5): ONE/ANY → 1, QUORUM → ⌊RF/2⌋+1, ALL → RF.
// The arithmetic itself lives on wire.Consistency; this wrapper exists so
// callers reasoning about a replica arc can stay in package ring.
func Quorum(cl wire.Consistency, rf int) int {
	return cl.Value(rf)
}
