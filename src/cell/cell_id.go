package cell

import (
	"bytes"
	"sort"

	"github.com/mr-tron/base58"

	"github.com/frostnetworks/frost/src/crypto"
)

// ID identifies a single spendable output: the hash of the producing cell
// bound to the output's index. Conflict sets in sleet are keyed by ID.
type ID [32]byte

// NewID computes the ID of output `index` of the cell with the given hash.
func NewID(cellHash crypto.Hash, index uint8) ID {
	return ID(crypto.Blake3Concat(cellHash[:], []byte{index}))
}

// String renders the ID in base58 for display.
func (id ID) String() string {
	return base58.Encode(id[:])
}

// IDs is a set of output IDs, kept sorted for deterministic iteration.
type IDs []ID

// FromInputs collects the IDs consumed by a list of inputs.
func FromInputs(inputs []Input) IDs {
	ids := make(IDs, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ID())
	}
	ids.sort()
	return ids
}

// FromOutputs collects the IDs produced by a cell's outputs.
func FromOutputs(cellHash crypto.Hash, outputs []Output) IDs {
	ids := make(IDs, 0, len(outputs))
	for i := range outputs {
		ids = append(ids, NewID(cellHash, uint8(i)))
	}
	ids.sort()
	return ids
}

func (ids IDs) sort() {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

// Contains reports whether id is a member of the set.
func (ids IDs) Contains(id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Intersects reports whether the two sets share a member.
func (ids IDs) Intersects(other IDs) bool {
	for _, x := range ids {
		if other.Contains(x) {
			return true
		}
	}
	return false
}
