package node

import (
	"context"

	"github.com/cuemby/ringdb/pkg/hints"
	"github.com/cuemby/ringdb/pkg/log"
	"github.com/cuemby/ringdb/pkg/model"
)

// replayHintsFor streams every queued hint addressed to peer's IP over its
// hint-receiver socket (P+6), in FIFO order, acknowledging each one only
// after the peer confirms it applied the write (spec §4.7). It is invoked
// whenever gossip observes peer transition into Active.
func (n *Node) replayHintsFor(peerIP string) {
	pending, err := n.Hints.Pending(peerIP)
	if err != nil {
		log.Logger.Warn().Err(err).Str("peer", peerIP).Msg("list pending hints")
		return
	}
	if len(pending) == 0 {
		return
	}

	peer, ok, err := n.findPeerByIP(peerIP)
	if err != nil || !ok {
		return
	}

	for _, sq := range pending {
		query, keyspace, err := hints.Decode(sq)
		if err != nil {
			log.Logger.Warn().Err(err).Str("hint", sq.ID).Msg("decode hint")
			continue
		}

		req := hintReplayRequest{Query: query, Keyspace: keyspace, Timestamp: sq.Timestamp}
		var resp hintReplayResponse
		ctx, cancel := context.WithTimeout(context.Background(), n.dialTimeout())
		hintAddr := withOffset(peer.Addr(), offsetHints)
		err = dial(ctx, n.dialTLS, hintAddr, n.dialTimeout(), "hint", req, &resp)
		cancel()
		if err != nil {
			log.Logger.Warn().Err(err).Str("peer", peerIP).Str("hint", sq.ID).Msg("hint replay failed, will retry next activation")
			return
		}
		if err := n.Hints.Ack(peerIP, sq.ID); err != nil {
			log.Logger.Warn().Err(err).Str("hint", sq.ID).Msg("ack replayed hint")
		}
	}
}

func (n *Node) findPeerByIP(ip string) (*model.Node, bool, error) {
	peers, err := n.Metadata.ListPeers()
	if err != nil {
		return nil, false, err
	}
	for _, p := range peers {
		if p.IP == ip {
			return p, true, nil
		}
	}
	return nil, false, nil
}
