package node

import (
	"context"

	"github.com/cuemby/ringdb/pkg/model"
)

// gossipTransport is pkg/gossip.Transport's concrete implementation: it
// dials a peer's gossip listener (base port + 5, spec §6) and exchanges
// membership views.
type gossipTransport struct {
	n *Node
}

func (t *gossipTransport) Gossip(ctx context.Context, addr string, view []*model.Node) ([]*model.Node, error) {
	req := gossipRequest{View: view}
	var resp gossipResponse
	gossipAddr := withOffset(addr, offsetGossip)
	if err := dial(ctx, t.n.dialTLS, gossipAddr, t.n.dialTimeout(), "gossip", req, &resp); err != nil {
		return nil, err
	}
	return resp.View, nil
}
