// Package cell defines the UTXO-style transactions that frost reaches
// consensus on. A Cell consumes outputs of prior cells and produces new typed
// outputs. Cells are content-addressed: their identity is the BLAKE3 hash of
// their canonical byte encoding, and they are immutable once constructed.
package cell
