// Package gossip implements ringdb's membership gossip and seed-node
// bootstrap (spec §4.8): a periodic ticker that picks one peer per
// round, exchanges cluster views, and merges the reply through
// pkg/metadata.Store.MergeGossip.
package gossip

import (
	"context"
	"math/rand"
	"time"

	"github.com/cuemby/ringdb/pkg/log"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/model"
)

// DefaultInterval is how often a node picks a peer and gossips with it.
// Spec §4.8 only requires fan-out >= 1 for O(log N) convergence; a fixed
// tick keeps the implementation deterministic-enough to test.
const DefaultInterval = 2 * time.Second

// Transport exchanges this node's cluster view with a peer and returns
// the peer's reply view. The concrete implementation dials the peer's
// gossip listener (base port + 5, spec §6); pkg/node supplies it. Tests
// substitute a fake.
type Transport interface {
	Gossip(ctx context.Context, addr string, view []*model.Node) ([]*model.Node, error)
}

// Gossiper runs the periodic gossip tick for one node.
type Gossiper struct {
	Metadata  *metadata.Store
	Transport Transport
	Interval  time.Duration

	// OnPeerActive, if set, fires whenever a merge (incoming from a Tick
	// or a Reply) observes a peer transition into the Active state from
	// something else. Hinted-handoff replay (spec §4.7) keys off this
	// transition; pkg/node wires it.
	OnPeerActive func(*model.Node)

	// OnPeerJoined, if set, fires the first time a merge learns of a
	// position this node had never seen before, while that position is
	// still Booting. This is the rebalance trigger (spec §4.8 "redistribute
	// the affected partitions' rows to the new replica set"): every
	// existing node reacts independently by pushing the rows the new
	// replica arc assigns to the joiner, rather than the joiner pulling
	// them, which is the shape node/src/redistribution/builder_message.rs
	// takes in the original.
	OnPeerJoined func(*model.Node)

	stopCh chan struct{}
}

// New builds a Gossiper with spec §4.8's default tick interval.
func New(md *metadata.Store, transport Transport) *Gossiper {
	return &Gossiper{Metadata: md, Transport: transport, Interval: DefaultInterval, stopCh: make(chan struct{})}
}

// Start begins the periodic gossip ticker in a background goroutine.
func (g *Gossiper) Start() {
	interval := g.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				g.Tick(context.Background())
			case <-g.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the gossip ticker.
func (g *Gossiper) Stop() {
	close(g.stopCh)
}

// Tick runs one gossip round: pick a peer, send this node's view, merge
// the reply (spec §4.8). It is exported so tests and a manual "gossip
// now" admin hook can drive a round synchronously.
func (g *Gossiper) Tick(ctx context.Context) error {
	peer, ok, err := g.pickPeer()
	if err != nil || !ok {
		return err
	}

	view, err := g.view()
	if err != nil {
		return err
	}

	reply, err := g.Transport.Gossip(ctx, peer.Addr(), view)
	if err != nil {
		log.Logger.Warn().Err(err).Str("peer", peer.Addr()).Msg("gossip round failed")
		return nil
	}

	return g.merge(reply)
}

// Reply computes what this node sends back when a peer initiates a
// gossip round against it: merge the incoming view, then report every
// local record the incoming view didn't carry so the sender can adopt
// it (spec §4.8 point 2).
func (g *Gossiper) Reply(incoming []*model.Node) ([]*model.Node, error) {
	before, err := g.snapshot()
	if err != nil {
		return nil, err
	}
	missing, err := g.Metadata.MergeGossip(incoming)
	if err != nil {
		return nil, err
	}
	g.notify(before)
	return missing, nil
}

// merge applies an incoming view the way Reply does, but discards the
// "missing" half of MergeGossip's result since a Tick round has nothing
// further to send back.
func (g *Gossiper) merge(incoming []*model.Node) error {
	before, err := g.snapshot()
	if err != nil {
		return err
	}
	if _, err := g.Metadata.MergeGossip(incoming); err != nil {
		return err
	}
	g.notify(before)
	return nil
}

// peerSnapshot records, per position, whether this node knew of that peer
// before a merge and whether it was Active, so the merge's effects on
// both OnPeerJoined and OnPeerActive can be detected afterward.
type peerSnapshot struct {
	known  map[int]bool
	active map[int]bool
}

func (g *Gossiper) snapshot() (*peerSnapshot, error) {
	peers, err := g.Metadata.ListPeers()
	if err != nil {
		return nil, err
	}
	s := &peerSnapshot{known: make(map[int]bool, len(peers)), active: make(map[int]bool, len(peers))}
	for _, p := range peers {
		s.known[p.Position] = true
		s.active[p.Position] = p.State == model.Active
	}
	return s, nil
}

// notify fires OnPeerJoined for every position seen for the first time
// while still Booting, and OnPeerActive for every position that was not
// Active before the merge and is Active after it.
func (g *Gossiper) notify(before *peerSnapshot) {
	if g.OnPeerActive == nil && g.OnPeerJoined == nil {
		return
	}
	peers, err := g.Metadata.ListPeers()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("list peers after gossip merge")
		return
	}
	for _, p := range peers {
		if g.OnPeerJoined != nil && p.State == model.Booting && !before.known[p.Position] {
			g.OnPeerJoined(p)
		}
		if g.OnPeerActive != nil && p.State == model.Active && !before.active[p.Position] {
			g.OnPeerActive(p)
		}
	}
}

// view renders this node's current knowledge of the cluster (self plus
// every known peer) as the payload a gossip round sends.
func (g *Gossiper) view() ([]*model.Node, error) {
	self, err := g.Metadata.SelfNode()
	if err != nil {
		return nil, err
	}
	peers, err := g.Metadata.ListPeers()
	if err != nil {
		return nil, err
	}
	if self == nil {
		return peers, nil
	}
	return append(append([]*model.Node{}, peers...), self), nil
}

// pickPeer chooses one known peer at random to gossip with this round.
func (g *Gossiper) pickPeer() (*model.Node, bool, error) {
	peers, err := g.Metadata.ListPeers()
	if err != nil {
		return nil, false, err
	}
	if len(peers) == 0 {
		return nil, false, nil
	}
	return peers[rand.Intn(len(peers))], true, nil
}
