package sleet

import (
	"errors"

	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
)

// ErrUnknownTx is returned when a conflict-map operation references a
// transaction it has never seen.
var ErrUnknownTx = errors.New("transaction not in conflict map")

// ConflictMap keys a ConflictSet by each spent output. Transitive conflict
// inheritance over shared inputs arises because updating one input's set can
// change its preference, which changes conviction comparisons for every
// ancestor reachable through any spending path.
type ConflictMap struct {
	sets map[cell.ID]*ConflictSet
	// the sets each transaction participates in
	byTx map[crypto.Hash][]*ConflictSet
}

// NewConflictMap creates an empty conflict map.
func NewConflictMap() *ConflictMap {
	return &ConflictMap{
		sets: make(map[cell.ID]*ConflictSet),
		byTx: make(map[crypto.Hash][]*ConflictSet),
	}
}

// Insert registers a transaction under every output it spends.
func (m *ConflictMap) Insert(tx crypto.Hash, consumed cell.IDs) {
	if _, ok := m.byTx[tx]; ok {
		return
	}
	var sets []*ConflictSet
	for _, id := range consumed {
		cs, ok := m.sets[id]
		if !ok {
			cs = newConflictSet(tx)
			m.sets[id] = cs
		} else {
			cs.add(tx)
		}
		sets = append(sets, cs)
	}
	m.byTx[tx] = sets
}

// SetsOf returns the conflict sets tx participates in.
func (m *ConflictMap) SetsOf(tx crypto.Hash) ([]*ConflictSet, error) {
	sets, ok := m.byTx[tx]
	if !ok {
		return nil, ErrUnknownTx
	}
	return sets, nil
}

// IsPreferred reports whether tx is the preference of every set it
// participates in.
func (m *ConflictMap) IsPreferred(tx crypto.Hash) (bool, error) {
	sets, err := m.SetsOf(tx)
	if err != nil {
		return false, err
	}
	for _, cs := range sets {
		if cs.Pref != tx {
			return false, nil
		}
	}
	return true, nil
}

// IsSingleton reports whether every set tx participates in has size 1.
func (m *ConflictMap) IsSingleton(tx crypto.Hash) (bool, error) {
	sets, err := m.SetsOf(tx)
	if err != nil {
		return false, err
	}
	for _, cs := range sets {
		if !cs.IsSingleton() {
			return false, nil
		}
	}
	return true, nil
}

// Confidence returns the lowest preference streak of tx across its sets;
// the acceptance rules compare it against beta1/beta2.
func (m *ConflictMap) Confidence(tx crypto.Hash) (int, error) {
	sets, err := m.SetsOf(tx)
	if err != nil {
		return 0, err
	}
	conf := -1
	for _, cs := range sets {
		if cs.Pref != tx {
			return 0, nil
		}
		if conf < 0 || cs.Cnt < conf {
			conf = cs.Cnt
		}
	}
	if conf < 0 {
		conf = 0
	}
	return conf, nil
}

// Update folds a successful query round for tx into each of its conflict
// sets: the preference moves to tx when its conviction exceeds the current
// preference's, and the stability counter advances or restarts.
func (m *ConflictMap) Update(tx crypto.Hash, conviction func(crypto.Hash) int, beta2 int) error {
	sets, err := m.SetsOf(tx)
	if err != nil {
		return err
	}
	d1 := conviction(tx)
	for _, cs := range sets {
		if cs.Pref != tx && d1 > conviction(cs.Pref) {
			cs.Pref = tx
		}
		if cs.Last != tx {
			cs.Last = tx
			cs.Cnt = 1
		} else if cs.Cnt < beta2 {
			cs.Cnt++
		}
	}
	return nil
}

// ResetCount clears the stability counter of every set tx participates in.
// Called when a query for tx fails to reach quorum.
func (m *ConflictMap) ResetCount(tx crypto.Hash) error {
	sets, err := m.SetsOf(tx)
	if err != nil {
		return err
	}
	for _, cs := range sets {
		cs.Cnt = 0
	}
	return nil
}

// Conflicts returns the other members of tx's conflict sets.
func (m *ConflictMap) Conflicts(tx crypto.Hash) ([]crypto.Hash, error) {
	sets, err := m.SetsOf(tx)
	if err != nil {
		return nil, err
	}
	seen := map[crypto.Hash]struct{}{tx: {}}
	var out []crypto.Hash
	for _, cs := range sets {
		for _, member := range cs.Members() {
			if _, ok := seen[member]; !ok {
				seen[member] = struct{}{}
				out = append(out, member)
			}
		}
	}
	return out, nil
}

// Accept pins tx as the sole member of every set it participates in and
// returns the implicitly rejected competitors.
func (m *ConflictMap) Accept(tx crypto.Hash) ([]crypto.Hash, error) {
	rejected, err := m.Conflicts(tx)
	if err != nil {
		return nil, err
	}
	for _, loser := range rejected {
		m.removeTx(loser)
	}
	for _, cs := range m.byTx[tx] {
		cs.Pref = tx
		cs.Last = tx
	}
	return rejected, nil
}

// Remove drops a transaction from every set it participates in, eg. when its
// ancestry was rejected.
func (m *ConflictMap) Remove(tx crypto.Hash) {
	m.removeTx(tx)
}

func (m *ConflictMap) removeTx(tx crypto.Hash) {
	for _, cs := range m.byTx[tx] {
		cs.remove(tx)
		if cs.Pref == tx {
			cs.Pref = cs.lowest()
			cs.Last = cs.Pref
			cs.Cnt = 0
		}
	}
	delete(m.byTx, tx)
}
