package alpha

import (
	"crypto/ed25519"
	"sort"

	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/vrf"
	"github.com/frostnetworks/frost/src/peers"
)

// InitialStaker is a genesis allocation bonded to a validator.
type InitialStaker struct {
	ID         peers.ID `json:"id"`
	NetAddr    string   `json:"addr"`
	PubKey     []byte   `json:"pub_key"`
	Allocation uint64   `json:"allocation"`
}

// GenesisSeed is the sortition seed used at height 1, before any block has
// contributed a VRF output.
func GenesisSeed() [vrf.OutputLength]byte {
	return crypto.Blake3([]byte("frost genesis seed"))
}

// GenesisCells mints one coinbase cell per staker, locked to the staker's
// public key. The cells are deterministic: every node derives the same
// genesis frontier from the same staker list.
func GenesisCells(stakers []*InitialStaker) []*cell.Cell {
	ordered := append([]*InitialStaker{}, stakers...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].ID, ordered[j].ID
		for x := range a {
			if a[x] != b[x] {
				return a[x] < b[x]
			}
		}
		return false
	})
	cells := make([]*cell.Cell, 0, len(ordered))
	for _, s := range ordered {
		var pub ed25519.PublicKey = s.PubKey
		cells = append(cells, cell.New(nil, []cell.Output{
			{
				Capacity: s.Allocation,
				Type:     cell.Coinbase,
				Lock:     crypto.Blake3(pub),
			},
			{
				Capacity: s.Allocation,
				Type:     cell.Stake,
				Data:     s.ID[:],
				Lock:     crypto.Blake3(pub),
			},
		}))
	}
	return cells
}

// GenesisBlock builds the deterministic height-0 block carrying the genesis
// cells. It has no producer and no signature; every node trusts it by
// construction.
func GenesisBlock(stakers []*InitialStaker) *Block {
	cells := GenesisCells(stakers)
	hashes := make([]crypto.Hash, 0, len(cells))
	for _, c := range cells {
		hashes = append(hashes, c.Hash())
	}
	return &Block{
		Height:    0,
		Parent:    crypto.Hash{},
		VRFOutput: GenesisSeed(),
		Cells:     hashes,
	}
}
