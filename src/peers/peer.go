package peers

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/frostnetworks/frost/src/crypto"
)

// ID is a peer's authoritative identity: the hash of its TLS certificate's
// SubjectPublicKeyInfo, or of its ed25519 public key on plain transports.
type ID [32]byte

// NewID hashes raw public key material into an ID.
func NewID(spki []byte) ID {
	return ID(crypto.Blake3(spki))
}

// String renders the ID in base58.
func (id ID) String() string {
	return base58.Encode(id[:])
}

// ParseID decodes a base58-rendered ID.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("parsing peer id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("parsing peer id %q: want %d bytes, got %d", s, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Peer binds an ID to a network endpoint.
type Peer struct {
	ID      ID     `json:"id"`
	NetAddr string `json:"addr"`
	PubKey  []byte `json:"pub_key,omitempty"`
	Moniker string `json:"moniker,omitempty"`
}

// NewPeer creates a Peer from an ID and an endpoint.
func NewPeer(id ID, netAddr string) *Peer {
	return &Peer{ID: id, NetAddr: netAddr}
}

// ParseBootstrap parses a "PeerId@host:port" bootstrap entry.
func ParseBootstrap(s string) (*Peer, error) {
	idx := strings.IndexByte(s, '@')
	if idx <= 0 || idx == len(s)-1 {
		return nil, fmt.Errorf("bootstrap entry %q: want PeerId@host:port", s)
	}
	id, err := ParseID(s[:idx])
	if err != nil {
		return nil, err
	}
	return NewPeer(id, s[idx+1:]), nil
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.NetAddr)
}
