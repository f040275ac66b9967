package hail

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/crypto"
)

// Vertex keys the consensus DAG: a block hash bound to its height.
type Vertex struct {
	Height alpha.Height
	Block  crypto.Hash
}

// NewVertex builds the vertex of a block.
func NewVertex(b *alpha.Block) Vertex {
	return Vertex{Height: b.Height, Block: b.Hash()}
}

// ParentVertex builds the vertex of a block's parent.
func ParentVertex(b *alpha.Block) Vertex {
	return Vertex{Height: b.Height - 1, Block: b.Parent}
}

func (v Vertex) String() string {
	return fmt.Sprintf("%s@%d", base58.Encode(v.Block[:]), v.Height)
}
