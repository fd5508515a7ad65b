package node

import (
	"context"
	"fmt"

	"github.com/cuemby/ringdb/pkg/config"
	"github.com/cuemby/ringdb/pkg/delegate"
	"github.com/cuemby/ringdb/pkg/gossip"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/tlsutil"
)

// Initialize sets up a brand-new single-node cluster: this node takes
// ring position 1 and is immediately Active, because there is no one
// else to gossip a join through (spec §4.8 describes joining an existing
// ring; a cluster's very first node has nothing to join). Used by
// `ringdb cluster bootstrap`.
func Initialize(cfg *config.Config) error {
	md, err := metadata.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	if self, err := md.SelfNode(); err != nil {
		return err
	} else if self != nil {
		return fmt.Errorf("node already has an identity (position %d); bootstrap only applies to a fresh data directory", self.Position)
	}
	self := &model.Node{Position: 1, IP: cfg.BindIP, Port: cfg.BasePort, State: model.Active, IsSeed: true}
	return md.SetSelfNode(self)
}

// Join performs spec §4.8's bootstrap handshake against an existing
// seed: dial its seed listener (base port + 4), report this node's own
// (ip, port), and persist the assigned ring position plus the seed's
// node list as this node's starting view of the cluster. The node is
// recorded Booting (spec §3) until rebalance (triggered by gossip
// observing the new position) delivers its share of rows. Used by
// `ringdb cluster join`.
func Join(cfg *config.Config, seedBaseAddr string) error {
	md, err := metadata.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	if self, err := md.SelfNode(); err != nil {
		return err
	} else if self != nil {
		return fmt.Errorf("node already has an identity (position %d)", self.Position)
	}

	tlsCfg := tlsutil.Config{CertFile: cfg.TLS.CertFile, KeyFile: cfg.TLS.KeyFile, CAFile: cfg.TLS.CAFile}
	dialTLS, err := tlsCfg.DialConfig()
	if err != nil {
		return fmt.Errorf("build dial TLS config: %w", err)
	}

	req := gossip.BootstrapRequest{IP: cfg.BindIP, Port: cfg.BasePort}
	var reply gossip.BootstrapReply
	ctx, cancel := context.WithTimeout(context.Background(), delegate.DefaultTimeout)
	defer cancel()
	seedAddr := withOffset(seedBaseAddr, offsetSeed)
	if err := dial(ctx, dialTLS, seedAddr, delegate.DefaultTimeout, "bootstrap", req, &reply); err != nil {
		return fmt.Errorf("bootstrap against seed %s: %w", seedAddr, err)
	}

	self := &model.Node{Position: reply.AssignedPosition, IP: cfg.BindIP, Port: cfg.BasePort, State: model.Booting}
	if err := md.SetSelfNode(self); err != nil {
		return fmt.Errorf("persist assigned identity: %w", err)
	}
	for _, peer := range reply.Nodes {
		if err := md.UpsertPeer(peer); err != nil {
			return fmt.Errorf("persist seed's node list: %w", err)
		}
	}
	return nil
}
