package crypto

import (
	"lukechampine.com/blake3"
)

// Hash is a 32-byte BLAKE3 digest. All content addressing in frost (cells,
// blocks, peer identities) uses this hash.
type Hash [32]byte

// Blake3 returns the BLAKE3 hash of the data.
func Blake3(data []byte) Hash {
	return blake3.Sum256(data)
}

// Blake3Concat returns the BLAKE3 hash of the concatenation of left and right.
func Blake3Concat(left []byte, right []byte) Hash {
	h := blake3.New(32, nil)
	h.Write(left)
	h.Write(right)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}
