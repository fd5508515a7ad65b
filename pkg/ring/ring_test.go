package ring

import (
	"testing"

	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/stretchr/testify/require"
)

func testNodes(positions ...int) []*model.Node {
	out := make([]*model.Node, 0, len(positions))
	for _, p := range positions {
		out = append(out, &model.Node{Position: p, IP: "127.0.0.1", Port: 9000 + p, State: model.Active})
	}
	return out
}

func TestHashModIsDeterministicAndInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		pos := HashMod("key", 5)
		require.GreaterOrEqual(t, pos, 1)
		require.LessOrEqual(t, pos, 5)
	}
	require.Equal(t, HashMod("same-key", 7), HashMod("same-key", 7))
}

func TestOwnerIsANodeOnTheRing(t *testing.T) {
	r := New(testNodes(1, 2, 3, 4, 5))
	owner, ok := r.Owner("some-partition-key")
	require.True(t, ok)
	require.Contains(t, []int{1, 2, 3, 4, 5}, owner.Position)
}

func TestReplicaArcIsContiguousAndLengthRF(t *testing.T) {
	r := New(testNodes(1, 2, 3, 4, 5))
	arc := r.ReplicaArc("pk", 3)
	require.Len(t, arc, 3)

	// the arc must be RF contiguous positions starting at the owner,
	// wrapping modulo the ring size.
	owner, _ := r.Owner("pk")
	idx := -1
	positions := r.Positions()
	for i, p := range positions {
		if p == owner.Position {
			idx = i
		}
	}
	require.NotEqual(t, -1, idx)
	for i, n := range arc {
		want := positions[(idx+i)%len(positions)]
		require.Equal(t, want, n.Position)
	}
}

func TestReplicaArcClampsToRingSize(t *testing.T) {
	r := New(testNodes(1, 2))
	arc := r.ReplicaArc("pk", 5)
	require.Len(t, arc, 2)
}

func TestIsReplicaAgreesWithReplicaArc(t *testing.T) {
	r := New(testNodes(1, 2, 3, 4, 5))
	arc := r.ReplicaArc("pk", 3)
	for _, p := range r.Positions() {
		want := false
		for _, n := range arc {
			if n.Position == p {
				want = true
			}
		}
		require.Equal(t, want, r.IsReplica("pk", 3, p))
	}
}

func TestEmptyRing(t *testing.T) {
	r := New(nil)
	_, ok := r.Owner("pk")
	require.False(t, ok)
	require.Nil(t, r.ReplicaArc("pk", 3))
}

func TestQuorumMatchesConsistencyValue(t *testing.T) {
	require.Equal(t, 1, Quorum(wire.One, 3))
	require.Equal(t, 2, Quorum(wire.Quorum, 3))
	require.Equal(t, 3, Quorum(wire.All, 3))
	require.Equal(t, 1, Quorum(wire.Any, 3))
}
