// Package peers defines frost's notion of peer identity and peer sets. A
// peer's authoritative identity is the BLAKE3 hash of its TLS certificate's
// public key, rendered in base58 for display.
package peers
