package storage

import (
	"sync"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
)

// InmemStore implements the Store interface with in-memory maps. Used in
// tests and when the node runs without --store.
type InmemStore struct {
	l sync.RWMutex

	cells     map[crypto.Hash]*cell.Cell
	blocks    map[crypto.Hash]*alpha.Block
	byHeight  map[alpha.Height]crypto.Hash
	maxHeight alpha.Height
	hasBlocks bool
	frontier  []crypto.Hash
	vs        *alpha.ValidatorSet
}

// NewInmemStore creates an empty in-memory store.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		cells:    make(map[crypto.Hash]*cell.Cell),
		blocks:   make(map[crypto.Hash]*alpha.Block),
		byHeight: make(map[alpha.Height]crypto.Hash),
	}
}

// SetCell implements the Store interface.
func (s *InmemStore) SetCell(c *cell.Cell) error {
	s.l.Lock()
	defer s.l.Unlock()
	s.cells[c.Hash()] = c
	return nil
}

// GetCell implements the Store interface.
func (s *InmemStore) GetCell(hash crypto.Hash) (*cell.Cell, error) {
	s.l.RLock()
	defer s.l.RUnlock()
	c, ok := s.cells[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// SetBlock implements the Store interface.
func (s *InmemStore) SetBlock(b *alpha.Block) error {
	s.l.Lock()
	defer s.l.Unlock()
	hash := b.Hash()
	s.blocks[hash] = b
	s.byHeight[b.Height] = hash
	if !s.hasBlocks || b.Height > s.maxHeight {
		s.maxHeight = b.Height
		s.hasBlocks = true
	}
	return nil
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(hash crypto.Hash) (*alpha.Block, error) {
	s.l.RLock()
	defer s.l.RUnlock()
	b, ok := s.blocks[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// GetBlockByHeight implements the Store interface.
func (s *InmemStore) GetBlockByHeight(height alpha.Height) (*alpha.Block, error) {
	s.l.RLock()
	defer s.l.RUnlock()
	hash, ok := s.byHeight[height]
	if !ok {
		return nil, ErrNotFound
	}
	return s.blocks[hash], nil
}

// LastAcceptedBlock implements the Store interface.
func (s *InmemStore) LastAcceptedBlock() (*alpha.Block, error) {
	s.l.RLock()
	defer s.l.RUnlock()
	if !s.hasBlocks {
		return nil, ErrNotFound
	}
	return s.blocks[s.byHeight[s.maxHeight]], nil
}

// SetFrontier implements the Store interface.
func (s *InmemStore) SetFrontier(frontier []crypto.Hash) error {
	s.l.Lock()
	defer s.l.Unlock()
	s.frontier = append([]crypto.Hash{}, frontier...)
	return nil
}

// Frontier implements the Store interface.
func (s *InmemStore) Frontier() ([]crypto.Hash, error) {
	s.l.RLock()
	defer s.l.RUnlock()
	if s.frontier == nil {
		return nil, ErrNotFound
	}
	return append([]crypto.Hash{}, s.frontier...), nil
}

// SetValidatorSet implements the Store interface.
func (s *InmemStore) SetValidatorSet(vs *alpha.ValidatorSet) error {
	s.l.Lock()
	defer s.l.Unlock()
	s.vs = vs
	return nil
}

// ValidatorSet implements the Store interface.
func (s *InmemStore) ValidatorSet() (*alpha.ValidatorSet, error) {
	s.l.RLock()
	defer s.l.RUnlock()
	if s.vs == nil {
		return nil, ErrNotFound
	}
	return s.vs, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
