package gossip

import (
	"context"
	"testing"

	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	reply []*model.Node
	err   error
	calls []string
}

func (f *fakeTransport) Gossip(ctx context.Context, addr string, view []*model.Node) ([]*model.Node, error) {
	f.calls = append(f.calls, addr)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func newTestGossiper(t *testing.T, transport Transport) *Gossiper {
	t.Helper()
	md, err := metadata.Open(t.TempDir())
	require.NoError(t, err)
	return New(md, transport)
}

func TestTickMergesPeerReplyIntoMetadata(t *testing.T) {
	peer := &model.Node{Position: 2, IP: "10.0.0.2", Port: 9100, State: model.Active}
	transport := &fakeTransport{reply: []*model.Node{
		{Position: 3, IP: "10.0.0.3", Port: 9100, State: model.Active, LastTimestamp: 5},
	}}
	g := newTestGossiper(t, transport)
	require.NoError(t, g.Metadata.SetSelfNode(&model.Node{Position: 1, IP: "10.0.0.1", Port: 9100, State: model.Active}))
	require.NoError(t, g.Metadata.UpsertPeer(peer))

	require.NoError(t, g.Tick(context.Background()))
	require.Len(t, transport.calls, 1)
	require.Equal(t, peer.Addr(), transport.calls[0])

	adopted, ok, err := g.Metadata.GetPeer(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.3", adopted.IP)
}

func TestTickWithNoPeersIsANoop(t *testing.T) {
	g := newTestGossiper(t, &fakeTransport{})
	require.NoError(t, g.Metadata.SetSelfNode(&model.Node{Position: 1, IP: "10.0.0.1", Port: 9100}))
	require.NoError(t, g.Tick(context.Background()))
}

func TestTickSwallowsTransportErrors(t *testing.T) {
	peer := &model.Node{Position: 2, IP: "10.0.0.2", Port: 9100, State: model.Active}
	transport := &fakeTransport{err: context.DeadlineExceeded}
	g := newTestGossiper(t, transport)
	require.NoError(t, g.Metadata.UpsertPeer(peer))

	require.NoError(t, g.Tick(context.Background()))
}

func TestReplyMergesIncomingAndReturnsMissingLocalRecords(t *testing.T) {
	g := newTestGossiper(t, &fakeTransport{})
	require.NoError(t, g.Metadata.UpsertPeer(&model.Node{Position: 1, IP: "10.0.0.1", Port: 9100, LastTimestamp: 1}))

	missing, err := g.Reply([]*model.Node{{Position: 2, IP: "10.0.0.2", Port: 9100, LastTimestamp: 1}})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, 1, missing[0].Position)

	_, ok, err := g.Metadata.GetPeer(2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNextPositionReclaimsVacantSlot(t *testing.T) {
	nodes := []*model.Node{{Position: 1}, {Position: 3}}
	require.Equal(t, 2, NextPosition(nodes))
}

func TestNextPositionAppendsWhenNoVacancy(t *testing.T) {
	nodes := []*model.Node{{Position: 1}, {Position: 2}}
	require.Equal(t, 3, NextPosition(nodes))
}

func TestNextPositionForEmptyRingStartsAtOne(t *testing.T) {
	require.Equal(t, 1, NextPosition(nil))
}

func TestReplyFiresOnPeerJoinedForNewBootingPosition(t *testing.T) {
	g := newTestGossiper(t, &fakeTransport{})
	var joined []*model.Node
	g.OnPeerJoined = func(n *model.Node) { joined = append(joined, n) }

	_, err := g.Reply([]*model.Node{{Position: 5, IP: "10.0.0.5", Port: 9100, State: model.Booting}})
	require.NoError(t, err)
	require.Len(t, joined, 1)
	require.Equal(t, 5, joined[0].Position)

	joined = nil
	_, err = g.Reply([]*model.Node{{Position: 5, IP: "10.0.0.5", Port: 9100, State: model.Booting, LastTimestamp: 1}})
	require.NoError(t, err)
	require.Empty(t, joined, "already-known position must not refire OnPeerJoined")
}

func TestTickFiresOnPeerActiveOnTransition(t *testing.T) {
	transport := &fakeTransport{reply: []*model.Node{
		{Position: 2, IP: "10.0.0.2", Port: 9100, State: model.Active, LastTimestamp: 2},
	}}
	g := newTestGossiper(t, transport)
	require.NoError(t, g.Metadata.UpsertPeer(&model.Node{Position: 2, IP: "10.0.0.2", Port: 9100, State: model.Inactive, LastTimestamp: 1}))

	var activated []*model.Node
	g.OnPeerActive = func(n *model.Node) { activated = append(activated, n) }

	require.NoError(t, g.Tick(context.Background()))
	require.Len(t, activated, 1)
	require.Equal(t, 2, activated[0].Position)
}

func TestHandleBootstrapAssignsAndPersistsBootingPeer(t *testing.T) {
	g := newTestGossiper(t, &fakeTransport{})
	require.NoError(t, g.Metadata.SetSelfNode(&model.Node{Position: 1, IP: "10.0.0.1", Port: 9100}))

	reply, err := g.HandleBootstrap(BootstrapRequest{IP: "10.0.0.9", Port: 9100})
	require.NoError(t, err)
	require.Equal(t, 2, reply.AssignedPosition)
	require.Len(t, reply.Nodes, 1)

	joiner, ok, err := g.Metadata.GetPeer(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Booting, joiner.State)
}
