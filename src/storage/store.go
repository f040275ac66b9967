// Package storage persists what consensus has decided: accepted blocks and
// their finalised cells, the last accepted frontier, and the current
// validator snapshot. Undecided DAG state is in-memory only and is
// reconstructed through gossip on restart.
package storage

import (
	"errors"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
)

// ErrNotFound is returned when a key is not in the store.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface shared by the in-memory and badger
// implementations.
type Store interface {
	// SetCell stores a finalised cell.
	SetCell(c *cell.Cell) error

	// GetCell retrieves a finalised cell.
	GetCell(hash crypto.Hash) (*cell.Cell, error)

	// SetBlock stores an accepted block and indexes it by height.
	SetBlock(b *alpha.Block) error

	// GetBlock retrieves an accepted block by hash.
	GetBlock(hash crypto.Hash) (*alpha.Block, error)

	// GetBlockByHeight retrieves the accepted block at a height.
	GetBlockByHeight(height alpha.Height) (*alpha.Block, error)

	// LastAcceptedBlock returns the accepted block with the greatest
	// height.
	LastAcceptedBlock() (*alpha.Block, error)

	// SetFrontier stores the accepted frontier.
	SetFrontier(frontier []crypto.Hash) error

	// Frontier retrieves the accepted frontier.
	Frontier() ([]crypto.Hash, error)

	// SetValidatorSet stores the current validator snapshot.
	SetValidatorSet(vs *alpha.ValidatorSet) error

	// ValidatorSet retrieves the current validator snapshot.
	ValidatorSet() (*alpha.ValidatorSet, error)

	// Close releases the store's resources.
	Close() error
}

// validatorSetWrapper flattens a ValidatorSet for serialization.
type validatorSetWrapper struct {
	Epoch      uint64
	Validators []*alpha.Validator
	TotalStake uint64
}

func wrapValidatorSet(vs *alpha.ValidatorSet) *validatorSetWrapper {
	return &validatorSetWrapper{
		Epoch:      vs.Epoch,
		Validators: vs.List(),
		TotalStake: vs.TotalStake,
	}
}

func (w *validatorSetWrapper) unwrap() *alpha.ValidatorSet {
	var listed uint64
	for _, v := range w.Validators {
		listed += v.Stake
	}
	return alpha.NewValidatorSet(w.Epoch, w.Validators, w.TotalStake-listed)
}
