package sleet

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
)

// NParents is the number of strongly-preferred parents a fresh transaction
// is attached to.
const NParents = 3

// Tx is a cell attached to the DAG: the cell itself plus the edge set chosen
// at creation. The transaction's identity is the cell's content hash, so
// re-delivering a known cell with different parents is a no-op.
type Tx struct {
	Cell    *cell.Cell
	Parents []crypto.Hash
}

// NewTx attaches a cell to the given parents.
func NewTx(c *cell.Cell, parents []crypto.Hash) *Tx {
	return &Tx{Cell: c, Parents: parents}
}

// Hash returns the transaction's identity.
func (t *Tx) Hash() crypto.Hash {
	return t.Cell.Hash()
}

func (t *Tx) String() string {
	h := t.Hash()
	return fmt.Sprintf("tx %s (%d parents)", base58.Encode(h[:]), len(t.Parents))
}
