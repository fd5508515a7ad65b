package node

import (
	"encoding/json"
	"net"

	"github.com/cuemby/ringdb/pkg/cql"
	"github.com/cuemby/ringdb/pkg/gossip"
	"github.com/cuemby/ringdb/pkg/log"
	"github.com/cuemby/ringdb/pkg/model"
)

// runLocalRows parses and executes text on this node's own storage,
// returning the rows of a SELECT or nil for a write — what a replica
// call's response carries back to the coordinator (spec §4.5, §4.6: the
// coordinator needs per-column timestamps for read-repair, which a
// RowsResult-encoded wire frame doesn't carry, hence the internal
// envelope rather than the client wire protocol here).
func (n *Node) runLocalRows(text, keyspace string) ([]*model.Row, error) {
	query, err := cql.Parse(text, keyspace)
	if err != nil {
		return nil, err
	}
	if sel, ok := query.(*cql.SelectQuery); ok {
		rows, _, err := sel.SelectRows(n.execContext(keyspace))
		return rows, err
	}
	if _, err := query.RunLocal(n.execContext(keyspace)); err != nil {
		return nil, err
	}
	return nil, nil
}

func replyError(conn net.Conn, err error) {
	if werr := writeEnvelope(conn, "error", err.Error()); werr != nil {
		log.Logger.Warn().Err(werr).Msg("write rpc error reply")
	}
}

// handleDelegationConn answers the query-delegation socket (P+1): the
// coordinator's delegate.ReplicaClient dials here for every replica in a
// statement's arc.
func (n *Node) handleDelegationConn(conn net.Conn) {
	env, err := readEnvelope(conn)
	if err != nil {
		return
	}
	var req executeRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		replyError(conn, err)
		return
	}
	rows, err := n.runLocalRows(req.Query, req.Keyspace)
	if err != nil {
		replyError(conn, err)
		return
	}
	if err := writeEnvelope(conn, "rows", executeResponse{Rows: rows}); err != nil {
		log.Logger.Warn().Err(err).Msg("write delegation reply")
	}
}

// handleDataAccessConn answers the data-access-RPC socket (P+2). It takes
// rebalance row pushes (spec §4.8), carried as a raw row since a moved row
// has no CQL text of its own; any other envelope kind is decoded as a
// hintReplayRequest and its CQL text applied locally. Within this package
// only rebalanceToJoiner dials this socket; read-repair deltas are not
// sent here.
func (n *Node) handleDataAccessConn(conn net.Conn) {
	env, err := readEnvelope(conn)
	if err != nil {
		return
	}
	switch env.Kind {
	case "rebalance-row":
		var req rebalanceRowRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			replyError(conn, err)
			return
		}
		if err := n.Storage.Write(req.Keyspace, req.Table, req.Row); err != nil {
			replyError(conn, err)
			return
		}
		if err := writeEnvelope(conn, "applied", rebalanceRowResponse{Applied: true}); err != nil {
			log.Logger.Warn().Err(err).Msg("write rebalance reply")
		}
	default:
		var req hintReplayRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			replyError(conn, err)
			return
		}
		if _, err := n.runLocalRows(req.Query, req.Keyspace); err != nil {
			replyError(conn, err)
			return
		}
		if err := writeEnvelope(conn, "applied", hintReplayResponse{Applied: true}); err != nil {
			log.Logger.Warn().Err(err).Msg("write data-access reply")
		}
	}
}

// handleMetadataConn answers the metadata-RPC socket (P+3): peers
// broadcast DDL text here so every node's schema metadata converges
// (spec §4.4; broadcastSchemaChange is the sender side).
func (n *Node) handleMetadataConn(conn net.Conn) {
	env, err := readEnvelope(conn)
	if err != nil {
		return
	}
	var req executeRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		replyError(conn, err)
		return
	}
	if _, err := n.runLocalRows(req.Query, req.Keyspace); err != nil {
		replyError(conn, err)
		return
	}
	if err := writeEnvelope(conn, "applied", executeResponse{}); err != nil {
		log.Logger.Warn().Err(err).Msg("write metadata reply")
	}
}

// handleSeedConn answers the seed-listener socket (P+4): a joining node
// sends its own (ip, port) and gets back the cluster's node list plus
// its assigned ring position (spec §4.8).
func (n *Node) handleSeedConn(conn net.Conn) {
	env, err := readEnvelope(conn)
	if err != nil {
		return
	}
	var req gossip.BootstrapRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		replyError(conn, err)
		return
	}
	reply, err := n.Gossiper.HandleBootstrap(req)
	if err != nil {
		replyError(conn, err)
		return
	}
	if err := writeEnvelope(conn, "bootstrap", reply); err != nil {
		log.Logger.Warn().Err(err).Msg("write seed reply")
	}
}

// handleGossipConn answers the gossip socket (P+5): a peer sends its
// view of the cluster and gets back whatever local records it's missing
// (spec §4.8).
func (n *Node) handleGossipConn(conn net.Conn) {
	env, err := readEnvelope(conn)
	if err != nil {
		return
	}
	var req gossipRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		replyError(conn, err)
		return
	}
	missing, err := n.Gossiper.Reply(req.View)
	if err != nil {
		replyError(conn, err)
		return
	}
	if err := writeEnvelope(conn, "view", gossipResponse{View: missing}); err != nil {
		log.Logger.Warn().Err(err).Msg("write gossip reply")
	}
}

// handleHintConn answers the hint-receiver socket (P+6): a peer replaying
// this node's queued hints (because it observed this node go Active)
// streams one hint at a time and waits for an acknowledgement before
// sending the next (spec §4.7).
func (n *Node) handleHintConn(conn net.Conn) {
	env, err := readEnvelope(conn)
	if err != nil {
		return
	}
	var req hintReplayRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		replyError(conn, err)
		return
	}
	if _, err := n.runLocalRows(req.Query, req.Keyspace); err != nil {
		replyError(conn, err)
		return
	}
	if err := writeEnvelope(conn, "applied", hintReplayResponse{Applied: true}); err != nil {
		log.Logger.Warn().Err(err).Msg("write hint-receiver reply")
	}
}
