package node

import (
	"context"

	"github.com/cuemby/ringdb/pkg/log"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/rebalance"
)

// rebalanceToJoiner runs whenever gossip observes a new position enter
// the ring as Booting (spec §4.8): this node computes, independently of
// every other node, which of its own rows the new replica arc now assigns
// to the joiner, and streams exactly those over the data-access-RPC
// socket (P+2), one row per request/response so a dropped connection
// loses at most the in-flight row rather than the whole plan.
func (n *Node) rebalanceToJoiner(joiner *model.Node) {
	self, err := n.Metadata.SelfNode()
	if err != nil || self == nil || self.Position == joiner.Position {
		return
	}
	peers, err := n.Metadata.ListPeers()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("list peers for rebalance")
		return
	}
	existing := append(append([]*model.Node{}, peers...), self)

	keyspaces, err := n.Metadata.ListKeyspaces()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("list keyspaces for rebalance")
		return
	}

	plan, err := rebalance.Build(n.Storage, keyspaces, existing, joiner, n.Config.ReplicationFactor)
	if err != nil {
		log.Logger.Warn().Err(err).Str("peer", joiner.Addr()).Msg("build rebalance plan")
		return
	}
	if len(plan.Moves) == 0 {
		return
	}

	log.Logger.Info().Str("peer", joiner.Addr()).Int("rows", len(plan.Moves)).Msg("streaming rebalance rows")
	for _, mv := range plan.Moves {
		req := rebalanceRowRequest{Keyspace: mv.Keyspace, Table: mv.Table, Row: mv.Row}
		var resp rebalanceRowResponse
		ctx, cancel := context.WithTimeout(context.Background(), n.dialTimeout())
		dataAddr := withOffset(joiner.Addr(), offsetDataAccess)
		err := dial(ctx, n.dialTLS, dataAddr, n.dialTimeout(), "rebalance-row", req, &resp)
		cancel()
		if err != nil {
			log.Logger.Warn().Err(err).Str("peer", joiner.Addr()).Str("table", mv.Keyspace+"."+mv.Table).Msg("rebalance row delivery failed")
			return
		}
	}
}
