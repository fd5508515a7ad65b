package gossip

import "github.com/cuemby/ringdb/pkg/model"

// BootstrapRequest is what a joining node sends to a seed's bootstrap
// listener (spec §6 port layout, seed listener at base port + 4).
type BootstrapRequest struct {
	IP   string
	Port int
}

// BootstrapReply is the seed's answer: the cluster's current node list
// plus the position the joiner was assigned.
type BootstrapReply struct {
	Nodes            []*model.Node
	AssignedPosition int
}

// NextPosition implements spec §4.8's assignment rule: the joining node
// takes the highest existing position plus one, or reclaims the lowest
// vacant slot below that if one exists (a prior node having left the
// ring). Positions are 1-based.
func NextPosition(existing []*model.Node) int {
	occupied := make(map[int]bool, len(existing))
	highest := 0
	for _, n := range existing {
		occupied[n.Position] = true
		if n.Position > highest {
			highest = n.Position
		}
	}
	for pos := 1; pos <= highest; pos++ {
		if !occupied[pos] {
			return pos
		}
	}
	return highest + 1
}

// HandleBootstrap answers a joining node's bootstrap request: it
// computes and persists the joiner's assigned position (marked Booting
// until rebalance delivers its share of rows, spec §4.8), then returns
// the cluster's node list as of just before the join so the joiner can
// resolve the ring it is about to join.
//
// The seed — not the joining node — computes the position, even though
// spec prose reads "let the joining node pick its position": concurrent
// joins racing on the same "highest + 1" arithmetic would otherwise
// collide, and the seed already serializes peer-table mutations through
// pkg/metadata's per-file mutex.
func (g *Gossiper) HandleBootstrap(req BootstrapRequest) (*BootstrapReply, error) {
	self, err := g.Metadata.SelfNode()
	if err != nil {
		return nil, err
	}
	peers, err := g.Metadata.ListPeers()
	if err != nil {
		return nil, err
	}
	existing := peers
	if self != nil {
		existing = append(append([]*model.Node{}, peers...), self)
	}

	pos := NextPosition(existing)
	joiner := &model.Node{Position: pos, IP: req.IP, Port: req.Port, State: model.Booting}
	if err := g.Metadata.UpsertPeer(joiner); err != nil {
		return nil, err
	}

	return &BootstrapReply{Nodes: existing, AssignedPosition: pos}, nil
}
