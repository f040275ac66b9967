package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SeedLength is the length in bytes of an ed25519 seed.
const SeedLength = ed25519.SeedSize

// KeyPair holds the node's ed25519 signing material. It is used for
// message-level signatures, independently of the TLS identity.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a new random ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// FromSeed derives a key pair from a 32-byte seed.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != SeedLength {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedLength, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{
		Public:  priv.Public().(ed25519.PublicKey),
		Private: priv,
	}, nil
}

// FromSeedHex derives a key pair from a 64-character hex string, as passed on
// the command line with --keypair.
func FromSeedHex(s string) (*KeyPair, error) {
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding keypair hex: %w", err)
	}
	return FromSeed(seed)
}

// SeedHex returns the hex encoding of the key pair's seed.
func (k *KeyPair) SeedHex() string {
	return hex.EncodeToString(k.Private.Seed())
}

// Sign signs the message with the private key.
func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.Private, message)
}

// Verify reports whether sig is a valid signature of message under pub.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
