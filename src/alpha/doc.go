// Package alpha bridges the consensus core to the alpha client chain. It
// derives the validator set and its stake weights from the genesis staker
// allocations, supplies the genesis frontier of spendable cells, and defines
// the block format that hail finalises.
package alpha
