package cell

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Capacity is the amount carried by a cell output.
type Capacity = uint64

// Output is a spendable amount locked to an owner, with an optional typed
// data field that the core treats as opaque.
type Output struct {
	Capacity Capacity
	Type     Type
	Data     []byte
	Lock     [32]byte
}

func (o Output) String() string {
	return fmt.Sprintf("%s (lock %s) = %d", o.Type, base58.Encode(o.Lock[:]), o.Capacity)
}

// Verify checks the envelope invariants of the output and runs the
// registered hook for its type tag. Capacity is unsigned, so the
// non-negativity invariant holds by construction; zero-capacity outputs are
// legal.
func (o *Output) Verify() error {
	return validateData(o)
}
