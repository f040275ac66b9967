package hail

import (
	"bytes"
	"errors"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/vrf"
)

// ErrUnknownHeight is returned when an operation references a height with no
// known blocks.
var ErrUnknownHeight = errors.New("no blocks at height")

type member struct {
	hash      crypto.Hash
	vrfOutput [vrf.OutputLength]byte
}

// ConflictSet tracks the competing blocks at one height.
type ConflictSet struct {
	members map[crypto.Hash]member

	Pref crypto.Hash
	Last crypto.Hash
	Cnt  int
}

// Len returns the number of competing blocks.
func (cs *ConflictSet) Len() int {
	return len(cs.members)
}

// IsSingleton reports whether exactly one block is known at this height.
func (cs *ConflictSet) IsSingleton() bool {
	return len(cs.members) == 1
}

// Members returns the competing block hashes.
func (cs *ConflictSet) Members() []crypto.Hash {
	out := make([]crypto.Hash, 0, len(cs.members))
	for h := range cs.members {
		out = append(out, h)
	}
	return out
}

// lowest returns the member with the lowest VRF output, ties broken by the
// lowest block hash.
func (cs *ConflictSet) lowest() crypto.Hash {
	var best member
	first := true
	for _, m := range cs.members {
		if first {
			best = m
			first = false
			continue
		}
		c := bytes.Compare(m.vrfOutput[:], best.vrfOutput[:])
		if c < 0 || (c == 0 && bytes.Compare(m.hash[:], best.hash[:]) < 0) {
			best = m
		}
	}
	return best.hash
}

// ConflictMap tracks one ConflictSet per block height.
type ConflictMap struct {
	heights map[alpha.Height]*ConflictSet
}

// NewConflictMap creates an empty conflict map.
func NewConflictMap() *ConflictMap {
	return &ConflictMap{heights: make(map[alpha.Height]*ConflictSet)}
}

// Get returns the conflict set at a height.
func (m *ConflictMap) Get(h alpha.Height) (*ConflictSet, error) {
	cs, ok := m.heights[h]
	if !ok {
		return nil, ErrUnknownHeight
	}
	return cs, nil
}

// Insert registers a block at its height. While no block has accumulated
// conviction, the preference is the one with the lowest VRF output.
func (m *ConflictMap) Insert(b *alpha.Block) {
	h := b.Hash()
	cs, ok := m.heights[b.Height]
	if !ok {
		cs = &ConflictSet{members: map[crypto.Hash]member{}}
		m.heights[b.Height] = cs
		cs.members[h] = member{hash: h, vrfOutput: b.VRFOutput}
		cs.Pref, cs.Last = h, h
		return
	}
	if _, dup := cs.members[h]; dup {
		return
	}
	cs.members[h] = member{hash: h, vrfOutput: b.VRFOutput}
	if cs.Cnt == 0 {
		low := cs.lowest()
		cs.Pref, cs.Last = low, low
	}
}

// IsPreferred reports whether the block is the preference at its height.
func (m *ConflictMap) IsPreferred(height alpha.Height, h crypto.Hash) (bool, error) {
	cs, err := m.Get(height)
	if err != nil {
		return false, err
	}
	return cs.Pref == h, nil
}

// Confidence returns the preference streak of the block at its height.
func (m *ConflictMap) Confidence(height alpha.Height, h crypto.Hash) (int, error) {
	cs, err := m.Get(height)
	if err != nil {
		return 0, err
	}
	if cs.Pref != h {
		return 0, nil
	}
	return cs.Cnt, nil
}

// Update folds a successful query round for the block into its height's
// conflict set.
func (m *ConflictMap) Update(height alpha.Height, h crypto.Hash, d1, d2 int, beta2 int) error {
	cs, err := m.Get(height)
	if err != nil {
		return err
	}
	if cs.Pref != h && d1 > d2 {
		cs.Pref = h
	}
	if cs.Last != h {
		cs.Last = h
		cs.Cnt = 1
	} else if cs.Cnt < beta2 {
		cs.Cnt++
	}
	return nil
}

// ResetCount clears the stability counter at a height.
func (m *ConflictMap) ResetCount(height alpha.Height) error {
	cs, err := m.Get(height)
	if err != nil {
		return err
	}
	cs.Cnt = 0
	return nil
}

// Accept pins the block as the sole member at its height and returns the
// rejected competitors.
func (m *ConflictMap) Accept(height alpha.Height, h crypto.Hash) ([]crypto.Hash, error) {
	cs, err := m.Get(height)
	if err != nil {
		return nil, err
	}
	var rejected []crypto.Hash
	for hash := range cs.members {
		if hash != h {
			rejected = append(rejected, hash)
			delete(cs.members, hash)
		}
	}
	cs.Pref, cs.Last = h, h
	return rejected, nil
}
