package alpha

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/crypto/vrf"
	"github.com/frostnetworks/frost/src/peers"
)

// ErrBadSignature is returned when a block's producer signature is invalid.
var ErrBadSignature = errors.New("invalid block signature")

// Height is a block's position in the chain.
type Height = uint64

// Block finalises a set of accepted cells at a height. The VRF proof
// establishes the producer's sortition eligibility; the output doubles as
// the seed for the next height.
type Block struct {
	Height    Height
	Parent    crypto.Hash
	VRFOutput [vrf.OutputLength]byte
	VRFProof  []byte
	Cells     []crypto.Hash
	Producer  peers.ID
	Signature []byte

	hash *crypto.Hash
}

type blockBody struct {
	Height    Height
	Parent    crypto.Hash
	VRFOutput [vrf.OutputLength]byte
	VRFProof  []byte
	Cells     []crypto.Hash
	Producer  peers.ID
}

func (b *Block) body() blockBody {
	return blockBody{
		Height:    b.Height,
		Parent:    b.Parent,
		VRFOutput: b.VRFOutput,
		VRFProof:  b.VRFProof,
		Cells:     b.Cells,
		Producer:  b.Producer,
	}
}

// Hash returns the BLAKE3 hash of the canonical encoding of the block body
// (the signature is not part of the identity).
func (b *Block) Hash() crypto.Hash {
	if b.hash == nil {
		data, err := cell.Marshal(b.body())
		if err != nil {
			panic(err)
		}
		h := crypto.Blake3(data)
		b.hash = &h
	}
	return *b.hash
}

// SortitionAlpha is the VRF input for a block at the given height, derived
// from the previous height's seed.
func SortitionAlpha(seed [vrf.OutputLength]byte, height Height) []byte {
	buf := make([]byte, len(seed)+8)
	copy(buf, seed[:])
	binary.BigEndian.PutUint64(buf[len(seed):], height)
	return buf
}

// Sign sets the producer's signature over the block hash.
func (b *Block) Sign(key *keys.KeyPair) {
	h := b.Hash()
	b.Signature = key.Sign(h[:])
}

// VerifySignature checks the producer's signature under pub.
func (b *Block) VerifySignature(pub ed25519.PublicKey) error {
	h := b.Hash()
	if !keys.Verify(pub, h[:], b.Signature) {
		return ErrBadSignature
	}
	return nil
}

// VerifyVRF checks the block's VRF proof under pub against the previous
// height's seed, and that the embedded output matches the proof.
func (b *Block) VerifyVRF(pub ed25519.PublicKey, prevSeed [vrf.OutputLength]byte) error {
	out, err := vrf.Verify(pub, b.VRFProof, SortitionAlpha(prevSeed, b.Height))
	if err != nil {
		return fmt.Errorf("block %s: %w", b, err)
	}
	if out != b.VRFOutput {
		return fmt.Errorf("block %s: vrf output does not match proof", b)
	}
	return nil
}

func (b *Block) String() string {
	h := b.Hash()
	return fmt.Sprintf("block %s @ %d (%d cells)", base58.Encode(h[:]), b.Height, len(b.Cells))
}
