package cell

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/frostnetworks/frost/src/crypto"
)

var (
	// ErrNoInputs is returned for a non-coinbase cell without inputs.
	ErrNoInputs = errors.New("cell has no inputs")
	// ErrNoOutputs is returned for a cell without outputs.
	ErrNoOutputs = errors.New("cell has no outputs")
	// ErrDuplicateInput is returned when a cell spends the same output twice.
	ErrDuplicateInput = errors.New("cell spends the same output twice")
)

// Cell is an ordered list of inputs and outputs. Its hash over the canonical
// encoding is its identity.
type Cell struct {
	Inputs  []Input
	Outputs []Output

	// cached hash of the canonical encoding
	hash *crypto.Hash
}

// New constructs a cell from inputs and outputs.
func New(inputs []Input, outputs []Output) *Cell {
	return &Cell{Inputs: inputs, Outputs: outputs}
}

// Marshal returns the canonical byte encoding of the cell.
func (c *Cell) Marshal() ([]byte, error) {
	return Marshal(struct {
		Inputs  []Input
		Outputs []Output
	}{c.Inputs, c.Outputs})
}

// UnmarshalCell decodes a cell from its canonical encoding.
func UnmarshalCell(data []byte) (*Cell, error) {
	var w struct {
		Inputs  []Input
		Outputs []Output
	}
	if err := Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &Cell{Inputs: w.Inputs, Outputs: w.Outputs}, nil
}

// Hash returns the BLAKE3 hash of the canonical encoding.
func (c *Cell) Hash() crypto.Hash {
	if c.hash == nil {
		data, err := c.Marshal()
		if err != nil {
			// Marshalling a well-formed cell cannot fail; an encoding
			// error here means memory corruption.
			panic(err)
		}
		h := crypto.Blake3(data)
		c.hash = &h
	}
	return *c.hash
}

// IsCoinbase reports whether the cell mints capacity, ie. has a coinbase
// output. Coinbase cells only appear in the genesis frontier and in blocks,
// never in the mempool.
func (c *Cell) IsCoinbase() bool {
	for i := range c.Outputs {
		if c.Outputs[i].Type == Coinbase {
			return true
		}
	}
	return false
}

// ProducedIDs returns the identifiers of the outputs this cell produces.
func (c *Cell) ProducedIDs() IDs {
	return FromOutputs(c.Hash(), c.Outputs)
}

// ConsumedIDs returns the identifiers of the outputs this cell spends.
func (c *Cell) ConsumedIDs() IDs {
	return FromInputs(c.Inputs)
}

// Sum returns the total capacity of the outputs.
func (c *Cell) Sum() Capacity {
	var total Capacity
	for i := range c.Outputs {
		total += c.Outputs[i].Capacity
	}
	return total
}

// Verify checks the cell's syntactic and cryptographic envelope: it decodes,
// inputs carry valid unlock signatures, no input is spent twice, and the
// outputs are well-formed. Whether the spent outputs exist is checked by the
// engine against the DAG and the alpha frontier.
func (c *Cell) Verify() error {
	if len(c.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(c.Inputs) == 0 && !c.IsCoinbase() {
		return ErrNoInputs
	}
	seen := make(map[ID]struct{}, len(c.Inputs))
	for i := range c.Inputs {
		id := c.Inputs[i].ID()
		if _, ok := seen[id]; ok {
			return ErrDuplicateInput
		}
		seen[id] = struct{}{}
		if err := c.Inputs[i].Verify(); err != nil {
			return err
		}
	}
	for i := range c.Outputs {
		if err := c.Outputs[i].Verify(); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	return nil
}

func (c *Cell) String() string {
	h := c.Hash()
	return fmt.Sprintf("cell %s (%d in, %d out)", base58.Encode(h[:]), len(c.Inputs), len(c.Outputs))
}
