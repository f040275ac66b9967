package cell

import (
	"crypto/ed25519"
	"fmt"

	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
)

// UnlockScript proves ownership of a spent output: an ed25519 public key and
// a signature over the spent output's ID.
type UnlockScript struct {
	PublicKey []byte
	Signature []byte
}

// Input references a spendable output of a prior cell and carries the unlock
// script authorizing the spend.
type Input struct {
	Cell   crypto.Hash
	Index  uint8
	Unlock UnlockScript
}

// NewInput builds a signed input spending output `index` of the cell with
// hash `cellHash`.
func NewInput(key *keys.KeyPair, cellHash crypto.Hash, index uint8) Input {
	id := NewID(cellHash, index)
	return Input{
		Cell:  cellHash,
		Index: index,
		Unlock: UnlockScript{
			PublicKey: key.Public,
			Signature: key.Sign(id[:]),
		},
	}
}

// ID returns the identifier of the output this input spends.
func (in Input) ID() ID {
	return NewID(in.Cell, in.Index)
}

// OwnerHash returns the hash of the unlocking public key, for comparison with
// the spent output's lock.
func (in Input) OwnerHash() [32]byte {
	return crypto.Blake3(in.Unlock.PublicKey)
}

// Verify checks the unlock signature. Whether the public key matches the
// spent output's lock is checked by the engine, which knows the output.
func (in Input) Verify() error {
	if len(in.Unlock.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("input %v: bad public key length %d", in.ID(), len(in.Unlock.PublicKey))
	}
	id := in.ID()
	if !keys.Verify(in.Unlock.PublicKey, id[:], in.Unlock.Signature) {
		return fmt.Errorf("input %v: invalid unlock signature", id)
	}
	return nil
}
