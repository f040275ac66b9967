package peers

// PeerSet is a set of Peers forming a consensus network.
type PeerSet struct {
	Peers  []*Peer      `json:"peers"`
	ByID   map[ID]*Peer `json:"-"`
	byAddr map[string]*Peer
}

// NewPeerSet creates a new PeerSet from a list of Peers.
func NewPeerSet(list []*Peer) *PeerSet {
	ps := &PeerSet{
		ByID:   make(map[ID]*Peer),
		byAddr: make(map[string]*Peer),
	}
	for _, p := range list {
		if _, ok := ps.ByID[p.ID]; ok {
			continue
		}
		ps.Peers = append(ps.Peers, p)
		ps.ByID[p.ID] = p
		ps.byAddr[p.NetAddr] = p
	}
	return ps
}

// WithNewPeer returns a new PeerSet including the given peer.
func (ps *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	if _, ok := ps.ByID[peer.ID]; ok {
		return ps
	}
	return NewPeerSet(append(append([]*Peer{}, ps.Peers...), peer))
}

// WithRemovedPeer returns a new PeerSet excluding the given peer.
func (ps *PeerSet) WithRemovedPeer(id ID) *PeerSet {
	list := make([]*Peer, 0, len(ps.Peers))
	for _, p := range ps.Peers {
		if p.ID != id {
			list = append(list, p)
		}
	}
	return NewPeerSet(list)
}

// ByNetAddr returns the peer listening on addr, if any.
func (ps *PeerSet) ByNetAddr(addr string) (*Peer, bool) {
	p, ok := ps.byAddr[addr]
	return p, ok
}

// IDs returns the PeerSet's slice of IDs.
func (ps *PeerSet) IDs() []ID {
	res := make([]ID, 0, len(ps.Peers))
	for _, p := range ps.Peers {
		res = append(res, p.ID)
	}
	return res
}

// Len returns the number of Peers in the PeerSet.
func (ps *PeerSet) Len() int {
	return len(ps.Peers)
}
