package metadata

import (
	"github.com/cuemby/ringdb/pkg/model"
)

// nodesDoc is the on-disk shape of nodes.json: this node's own identity
// plus its view of every peer (spec §3 Cluster, §6 persisted state
// layout).
type nodesDoc struct {
	Self  *model.Node           `json:"self"`
	Peers map[int]*model.Node   `json:"peers"` // keyed by position
}

func (s *Store) loadNodesLocked() (*nodesDoc, error) {
	d := &nodesDoc{Peers: make(map[int]*model.Node)}
	if err := readJSON(s.nodesPath(), d); err != nil {
		return nil, err
	}
	if d.Peers == nil {
		d.Peers = make(map[int]*model.Node)
	}
	return d, nil
}

// SelfNode returns this node's own identity record.
func (s *Store) SelfNode() (*model.Node, error) {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	d, err := s.loadNodesLocked()
	if err != nil {
		return nil, err
	}
	return d.Self, nil
}

// SetSelfNode persists this node's own identity record.
func (s *Store) SetSelfNode(n *model.Node) error {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	d, err := s.loadNodesLocked()
	if err != nil {
		return err
	}
	d.Self = n
	return writeJSON(s.nodesPath(), d)
}

// ListPeers returns a copy-on-read snapshot of every known peer (spec §5:
// "writers acquire the cluster mutex, readers copy-on-read").
func (s *Store) ListPeers() ([]*model.Node, error) {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	d, err := s.loadNodesLocked()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Node, 0, len(d.Peers))
	for _, p := range d.Peers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// GetPeer looks up one peer by ring position.
func (s *Store) GetPeer(position int) (*model.Node, bool, error) {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	d, err := s.loadNodesLocked()
	if err != nil {
		return nil, false, err
	}
	p, ok := d.Peers[position]
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

// UpsertPeer writes or overwrites a peer record, used both by gossip
// merge and by rebalance/bootstrap bookkeeping.
func (s *Store) UpsertPeer(n *model.Node) error {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	d, err := s.loadNodesLocked()
	if err != nil {
		return err
	}
	cp := *n
	d.Peers[n.Position] = &cp
	return writeJSON(s.nodesPath(), d)
}

// MergeGossip applies an incoming gossip view: for each incoming record,
// adopt it if this node has none for that position, or if the incoming
// last_timestamp is strictly newer; otherwise keep the local copy. It
// returns the set of local records absent from the incoming view, so the
// caller can hand them back to the sender (spec §4.8).
func (s *Store) MergeGossip(incoming []*model.Node) ([]*model.Node, error) {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	d, err := s.loadNodesLocked()
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(incoming))
	changed := false
	for _, in := range incoming {
		seen[in.Position] = true
		local, ok := d.Peers[in.Position]
		if !ok || in.LastTimestamp > local.LastTimestamp {
			cp := *in
			d.Peers[in.Position] = &cp
			changed = true
		}
	}

	var missing []*model.Node
	for pos, local := range d.Peers {
		if !seen[pos] {
			cp := *local
			missing = append(missing, &cp)
		}
	}

	if changed {
		if err := writeJSON(s.nodesPath(), d); err != nil {
			return nil, err
		}
	}
	return missing, nil
}
