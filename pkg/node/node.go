// Package node wires the CORE subsystems together into one running
// ringdb process: it opens the seven TLS listeners spec §6 mandates (one
// per role, at base port + fixed offset), dispatches accepted
// connections to the right handler, and supplies the concrete
// collaborators pkg/delegate, pkg/gossip, and pkg/hints only declared as
// interfaces (ReplicaClient, Transport, peer dialing for hint replay).
package node

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuemby/ringdb/pkg/auth"
	"github.com/cuemby/ringdb/pkg/clock"
	"github.com/cuemby/ringdb/pkg/config"
	"github.com/cuemby/ringdb/pkg/cql"
	"github.com/cuemby/ringdb/pkg/delegate"
	"github.com/cuemby/ringdb/pkg/gossip"
	"github.com/cuemby/ringdb/pkg/hints"
	"github.com/cuemby/ringdb/pkg/log"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/metrics"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/session"
	"github.com/cuemby/ringdb/pkg/storage"
	"github.com/cuemby/ringdb/pkg/tlsutil"
)

// Port offsets from spec §6's port layout.
const (
	offsetClient      = 0
	offsetDelegation  = 1
	offsetDataAccess  = 2
	offsetMetadataRPC = 3
	offsetSeed        = 4
	offsetGossip      = 5
	offsetHints       = 6
)

// Node is one running ringdb process: the seven listeners of spec §6
// plus the CORE subsystems they dispatch into.
type Node struct {
	Config   *config.Config
	Storage  *storage.Engine
	Metadata *metadata.Store
	Creds    *auth.Store
	Hints    *hints.Store
	Clock    *clock.Clock

	Delegator *delegate.Delegator
	Gossiper  *gossip.Gossiper

	serverTLS *tls.Config
	dialTLS   *tls.Config

	listeners []net.Listener
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// New opens a node's storage, metadata, credential, and hint stores
// under cfg.DataDir and wires the delegation and gossip layers. It does
// not yet listen on any socket; call Start for that.
func New(cfg *config.Config) (*Node, error) {
	st, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	md, err := metadata.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	creds, err := auth.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	hs, err := hints.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open hint store: %w", err)
	}

	self, err := md.SelfNode()
	if err != nil {
		return nil, fmt.Errorf("load self node: %w", err)
	}
	position := 0
	if self != nil {
		position = self.Position
	}
	clk := clock.New(position)

	tlsCfg := tlsutil.Config{
		CertFile: cfg.TLS.CertFile,
		KeyFile:  cfg.TLS.KeyFile,
		CAFile:   cfg.TLS.CAFile,
	}
	serverTLS, err := tlsCfg.ServerConfig()
	if err != nil {
		return nil, fmt.Errorf("build server TLS config: %w", err)
	}
	dialTLS, err := tlsCfg.DialConfig()
	if err != nil {
		return nil, fmt.Errorf("build dial TLS config: %w", err)
	}

	n := &Node{
		Config:    cfg,
		Storage:   st,
		Metadata:  md,
		Creds:     creds,
		Hints:     hs,
		Clock:     clk,
		serverTLS: serverTLS,
		dialTLS:   dialTLS,
		stopCh:    make(chan struct{}),
	}

	n.Delegator = delegate.New(md, hs, &replicaClient{n: n}, n.execContext(""))
	n.Gossiper = gossip.New(md, &gossipTransport{n: n})
	n.Gossiper.OnPeerActive = func(peer *model.Node) { go n.replayHintsFor(peer.IP) }
	n.Gossiper.OnPeerJoined = func(peer *model.Node) { go n.rebalanceToJoiner(peer) }
	return n, nil
}

func (n *Node) execContext(keyspace string) *cql.ExecContext {
	return &cql.ExecContext{Storage: n.Storage, Metadata: n.Metadata, Clock: n.Clock, Keyspace: keyspace}
}

func (n *Node) basePort() int { return n.Config.BasePort }

func (n *Node) listenAddr(offset int) string {
	return fmt.Sprintf("%s:%d", n.Config.BindIP, n.basePort()+offset)
}

// Start opens every listener role and begins the gossip ticker. It
// returns once all listeners are bound; each listener then accepts
// connections on its own goroutine (spec §5: "one listener per role").
func (n *Node) Start() error {
	roles := []struct {
		offset  int
		name    string
		handler func(net.Conn)
	}{
		{offsetClient, "client", n.handleClientConn},
		{offsetDelegation, "query-delegation", n.handleDelegationConn},
		{offsetDataAccess, "data-access-rpc", n.handleDataAccessConn},
		{offsetMetadataRPC, "metadata-rpc", n.handleMetadataConn},
		{offsetSeed, "seed", n.handleSeedConn},
		{offsetGossip, "gossip", n.handleGossipConn},
		{offsetHints, "hint-receiver", n.handleHintConn},
	}

	for _, role := range roles {
		addr := n.listenAddr(role.offset)
		ln, err := tls.Listen("tcp", addr, n.serverTLS)
		if err != nil {
			n.closeListeners()
			return fmt.Errorf("listen %s (%s): %w", role.name, addr, err)
		}
		n.listeners = append(n.listeners, ln)
		log.Logger.Info().Str("role", role.name).Str("addr", addr).Msg("listening")

		n.wg.Add(1)
		go n.acceptLoop(ln, role.name, role.handler)
	}

	n.Gossiper.Start()
	return nil
}

// Stop closes every listener and stops the gossip ticker, then waits for
// in-flight connection handlers to drain.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.Gossiper.Stop()
		n.closeListeners()
	})
	n.wg.Wait()
}

func (n *Node) closeListeners() {
	for _, ln := range n.listeners {
		ln.Close()
	}
}

func (n *Node) acceptLoop(ln net.Listener, role string, handle func(net.Conn)) {
	defer n.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Logger.Warn().Err(err).Str("role", role).Msg("accept failed")
				return
			}
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			defer conn.Close()
			handle(conn)
		}()
	}
}

// dialTimeout bounds outbound internal RPCs to the same deadline the
// delegator uses for a replica call (spec §5 TIMEOUT_SECS).
func (n *Node) dialTimeout() time.Duration {
	if n.Delegator != nil && n.Delegator.Timeout > 0 {
		return n.Delegator.Timeout
	}
	return delegate.DefaultTimeout
}

// broadcastSchemaChange pushes a DDL statement's text to every known
// Active peer's metadata-RPC listener so schema — unlike partitioned rows —
// converges across the whole cluster rather than just a replica arc
// (spec §4.4: Keyspace/Table are cluster-wide, not partitioned).
func (n *Node) broadcastSchemaChange(text, keyspace string) {
	peers, err := n.Metadata.ListPeers()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("list peers for schema broadcast")
		return
	}
	for _, peer := range peers {
		if peer.State != model.Active {
			continue
		}
		go func(addr string) {
			ctx, cancel := context.WithTimeout(context.Background(), n.dialTimeout())
			defer cancel()
			req := executeRequest{Query: text, Keyspace: keyspace}
			var resp executeResponse
			metadataAddr := withOffset(addr, offsetMetadataRPC)
			if err := dial(ctx, n.dialTLS, metadataAddr, n.dialTimeout(), "schema", req, &resp); err != nil {
				log.Logger.Warn().Err(err).Str("peer", addr).Msg("schema broadcast failed")
			}
		}(peer.Addr())
	}
}
