package storage

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
)

// Key prefixes.
const (
	cellPrefix    = 'c'
	blockPrefix   = 'b'
	heightPrefix  = 'h'
	frontierKey   = 'f'
	validatorsKey = 'v'
	lastHeightKey = 'l'
)

// BadgerStore implements the Store interface on a badger database.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens (or creates) a badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, path: path}, nil
}

// Path returns the database directory.
func (s *BadgerStore) Path() string {
	return s.path
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func prefixed(prefix byte, key []byte) []byte {
	return append([]byte{prefix}, key...)
}

func heightKey(height alpha.Height) []byte {
	buf := make([]byte, 9)
	buf[0] = heightPrefix
	binary.BigEndian.PutUint64(buf[1:], height)
	return buf
}

func (s *BadgerStore) set(key, val []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

// SetCell implements the Store interface.
func (s *BadgerStore) SetCell(c *cell.Cell) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	hash := c.Hash()
	return s.set(prefixed(cellPrefix, hash[:]), data)
}

// GetCell implements the Store interface.
func (s *BadgerStore) GetCell(hash crypto.Hash) (*cell.Cell, error) {
	data, err := s.get(prefixed(cellPrefix, hash[:]))
	if err != nil {
		return nil, err
	}
	return cell.UnmarshalCell(data)
}

type blockWrapper struct {
	Height    alpha.Height
	Parent    crypto.Hash
	VRFOutput [32]byte
	VRFProof  []byte
	Cells     []crypto.Hash
	Producer  [32]byte
	Signature []byte
}

func wrapBlock(b *alpha.Block) *blockWrapper {
	return &blockWrapper{
		Height:    b.Height,
		Parent:    b.Parent,
		VRFOutput: b.VRFOutput,
		VRFProof:  b.VRFProof,
		Cells:     b.Cells,
		Producer:  b.Producer,
		Signature: b.Signature,
	}
}

func (w *blockWrapper) unwrap() *alpha.Block {
	return &alpha.Block{
		Height:    w.Height,
		Parent:    w.Parent,
		VRFOutput: w.VRFOutput,
		VRFProof:  w.VRFProof,
		Cells:     w.Cells,
		Producer:  w.Producer,
		Signature: w.Signature,
	}
}

// SetBlock implements the Store interface.
func (s *BadgerStore) SetBlock(b *alpha.Block) error {
	data, err := cell.Marshal(wrapBlock(b))
	if err != nil {
		return err
	}
	hash := b.Hash()
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(prefixed(blockPrefix, hash[:]), data); err != nil {
			return err
		}
		if err := txn.Set(heightKey(b.Height), hash[:]); err != nil {
			return err
		}
		last, err := s.lastHeight(txn)
		if err != nil && err != ErrNotFound {
			return err
		}
		if err == ErrNotFound || b.Height > last {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, b.Height)
			return txn.Set([]byte{lastHeightKey}, buf)
		}
		return nil
	})
}

func (s *BadgerStore) lastHeight(txn *badger.Txn) (alpha.Height, error) {
	item, err := txn.Get([]byte{lastHeightKey})
	if err == badger.ErrKeyNotFound {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(val), nil
}

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(hash crypto.Hash) (*alpha.Block, error) {
	data, err := s.get(prefixed(blockPrefix, hash[:]))
	if err != nil {
		return nil, err
	}
	var w blockWrapper
	if err := cell.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return w.unwrap(), nil
}

// GetBlockByHeight implements the Store interface.
func (s *BadgerStore) GetBlockByHeight(height alpha.Height) (*alpha.Block, error) {
	hashBytes, err := s.get(heightKey(height))
	if err != nil {
		return nil, err
	}
	var hash crypto.Hash
	copy(hash[:], hashBytes)
	return s.GetBlock(hash)
}

// LastAcceptedBlock implements the Store interface.
func (s *BadgerStore) LastAcceptedBlock() (*alpha.Block, error) {
	var height alpha.Height
	err := s.db.View(func(txn *badger.Txn) error {
		h, err := s.lastHeight(txn)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBlockByHeight(height)
}

// SetFrontier implements the Store interface.
func (s *BadgerStore) SetFrontier(frontier []crypto.Hash) error {
	data, err := cell.Marshal(frontier)
	if err != nil {
		return err
	}
	return s.set([]byte{frontierKey}, data)
}

// Frontier implements the Store interface.
func (s *BadgerStore) Frontier() ([]crypto.Hash, error) {
	data, err := s.get([]byte{frontierKey})
	if err != nil {
		return nil, err
	}
	var frontier []crypto.Hash
	if err := cell.Unmarshal(data, &frontier); err != nil {
		return nil, err
	}
	return frontier, nil
}

// SetValidatorSet implements the Store interface.
func (s *BadgerStore) SetValidatorSet(vs *alpha.ValidatorSet) error {
	data, err := cell.Marshal(wrapValidatorSet(vs))
	if err != nil {
		return err
	}
	return s.set([]byte{validatorsKey}, data)
}

// ValidatorSet implements the Store interface.
func (s *BadgerStore) ValidatorSet() (*alpha.ValidatorSet, error) {
	data, err := s.get([]byte{validatorsKey})
	if err != nil {
		return nil, err
	}
	var w validatorSetWrapper
	if err := cell.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return w.unwrap(), nil
}
