// Package vrf wraps an ed25519-based verifiable random function for block
// sortition. The sortition value of a proof is the BLAKE3 hash of the proof
// itself, so any holder of a valid proof can recompute it.
package vrf

import (
	"crypto/ed25519"
	"errors"

	"github.com/yoseplee/vrf"

	"github.com/frostnetworks/frost/src/crypto"
)

// OutputLength is the length in bytes of a sortition output.
const OutputLength = 32

var errInvalidProof = errors.New("vrf: invalid proof")

// Prove evaluates the VRF over alpha with the given key pair. It returns the
// proof and the 32-byte sortition output derived from it.
func Prove(pub ed25519.PublicKey, priv ed25519.PrivateKey, alpha []byte) (proof []byte, output [OutputLength]byte, err error) {
	proof, _, err = vrf.Prove(pub, priv, alpha)
	if err != nil {
		return nil, output, err
	}
	output = crypto.Blake3(proof)
	return proof, output, nil
}

// Verify checks the proof over alpha under pub and returns the sortition
// output it commits to.
func Verify(pub ed25519.PublicKey, proof, alpha []byte) ([OutputLength]byte, error) {
	var output [OutputLength]byte
	ok, err := vrf.Verify(pub, proof, alpha)
	if err != nil {
		return output, err
	}
	if !ok {
		return output, errInvalidProof
	}
	return crypto.Blake3(proof), nil
}
