package sleet

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/graph"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sampling"
)

var (
	// ErrMissingAncestry is returned when a transaction references parents
	// or inputs this node has not seen; the caller may gap-fill and retry.
	ErrMissingAncestry = errors.New("missing ancestry")
	// ErrCoinbaseCell is returned when a coinbase cell is submitted to the
	// mempool. Coinbase cells only enter through blocks and genesis.
	ErrCoinbaseCell = errors.New("coinbase cells cannot enter the mempool")
	// ErrBadUnlock is returned when an input's public key does not match
	// the spent output's lock.
	ErrBadUnlock = errors.New("unlock key does not match output lock")
	// ErrCapacityExceeded is returned when a cell's outputs exceed its
	// inputs.
	ErrCapacityExceeded = errors.New("outputs exceed consumed capacity")
)

// Status is a transaction's position in its lifecycle.
type Status uint8

const (
	// StatusPending means received but not yet queried
	StatusPending Status = iota
	// StatusQueried means at least one sampling query ran
	StatusQueried
	// StatusAccepted is terminal
	StatusAccepted
	// StatusRejected means a competing spender was accepted
	StatusRejected
	// StatusRemoved means an ancestor was rejected
	StatusRemoved
)

var statusNames = []string{"Pending", "Queried", "Accepted", "Rejected", "Removed"}

func (s Status) String() string {
	if int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return statusNames[s]
}

// Sleet is the mempool consensus engine. It is driven by the node's sleet
// loop; all methods must be called under the node's sleet lock.
type Sleet struct {
	params sampling.Params
	selfID peers.ID

	dag       *graph.DAG[crypto.Hash]
	conflicts *ConflictMap
	txs       map[crypto.Hash]*Tx
	status    map[crypto.Hash]Status

	// known outputs, spendable or tentatively spendable, by ID
	outputs map[cell.ID]cell.Output

	unqueried []crypto.Hash
	inQueue   map[crypto.Hash]bool

	// accepted cells in topological acceptance order, and the accepted
	// frontier (accepted vertices without accepted children)
	acceptedLog []crypto.Hash
	frontier    map[crypto.Hash]bool

	validators *alpha.ValidatorSet

	logger *logrus.Entry
}

// NewSleet creates the mempool consensus engine.
func NewSleet(params sampling.Params, selfID peers.ID, logger *logrus.Entry) *Sleet {
	return &Sleet{
		params:    params,
		selfID:    selfID,
		dag:       graph.New[crypto.Hash](),
		conflicts: NewConflictMap(),
		txs:       make(map[crypto.Hash]*Tx),
		status:    make(map[crypto.Hash]Status),
		outputs:   make(map[cell.ID]cell.Output),
		inQueue:   make(map[crypto.Hash]bool),
		frontier:  make(map[crypto.Hash]bool),
		logger:    logger,
	}
}

// Params returns the engine's consensus parameters.
func (s *Sleet) Params() sampling.Params {
	return s.params
}

// SetValidators installs a new validator snapshot. Sampling for subsequent
// queries uses the new snapshot; the caller abandons queries in flight
// against peers that left.
func (s *Sleet) SetValidators(vs *alpha.ValidatorSet) {
	s.validators = vs
}

// Validators returns the current validator snapshot.
func (s *Sleet) Validators() *alpha.ValidatorSet {
	return s.validators
}

// Sample draws up to k validators, stake-weighted without replacement,
// excluding self.
func (s *Sleet) Sample(rng *rand.Rand) []*alpha.Validator {
	if s.validators == nil {
		return nil
	}
	pool := make([]*alpha.Validator, 0, s.validators.Len())
	for _, v := range s.validators.List() {
		if v.ID != s.selfID {
			pool = append(pool, v)
		}
	}
	return sampling.Weighted(rng, pool, func(v *alpha.Validator) float64 {
		return float64(v.Stake)
	}, s.params.K)
}

// Bootstrap seeds the engine with an accepted frontier: the genesis cells or
// the persisted frontier from a previous run. The cells enter the DAG as
// accepted roots with their chit set, and their outputs become spendable.
func (s *Sleet) Bootstrap(cells []*cell.Cell) {
	for _, c := range cells {
		h := c.Hash()
		if _, ok := s.txs[h]; ok {
			continue
		}
		s.txs[h] = NewTx(c, nil)
		s.status[h] = StatusAccepted
		if err := s.dag.Insert(h, nil); err == nil {
			_ = s.dag.SetChit(h)
		}
		s.registerOutputs(c)
		s.acceptedLog = append(s.acceptedLog, h)
		s.frontier[h] = true
	}
	s.logger.WithField("cells", len(cells)).Debug("bootstrapped frontier")
}

func (s *Sleet) registerOutputs(c *cell.Cell) {
	h := c.Hash()
	for i := range c.Outputs {
		s.outputs[cell.NewID(h, uint8(i))] = c.Outputs[i]
	}
}

func (s *Sleet) dropOutputs(c *cell.Cell) {
	h := c.Hash()
	for i := range c.Outputs {
		delete(s.outputs, cell.NewID(h, uint8(i)))
	}
}

// Known reports whether the transaction has been seen in any state.
func (s *Sleet) Known(h crypto.Hash) bool {
	_, ok := s.status[h]
	return ok
}

// Get returns a known transaction.
func (s *Sleet) Get(h crypto.Hash) (*Tx, bool) {
	tx, ok := s.txs[h]
	return tx, ok
}

// Status returns the lifecycle state of a transaction.
func (s *Sleet) Status(h crypto.Hash) (Status, bool) {
	st, ok := s.status[h]
	return st, ok
}

// IsAccepted reports whether the transaction is accepted.
func (s *Sleet) IsAccepted(h crypto.Hash) bool {
	return s.status[h] == StatusAccepted
}

// OnReceiveTx validates and inserts a transaction. It returns true if the
// transaction was fresh. Re-delivering a known transaction is a no-op.
func (s *Sleet) OnReceiveTx(tx *Tx) (bool, error) {
	h := tx.Hash()
	if st, ok := s.status[h]; ok && st != StatusRemoved {
		return false, nil
	}

	c := tx.Cell
	if err := c.Verify(); err != nil {
		return false, err
	}
	if c.IsCoinbase() {
		return false, ErrCoinbaseCell
	}

	var consumedCapacity cell.Capacity
	for i := range c.Inputs {
		in := c.Inputs[i]
		out, ok := s.outputs[in.ID()]
		if !ok {
			return false, ErrMissingAncestry
		}
		if out.Lock != in.OwnerHash() {
			return false, ErrBadUnlock
		}
		consumedCapacity += out.Capacity
	}
	if c.Sum() > consumedCapacity {
		return false, ErrCapacityExceeded
	}

	parents := make([]crypto.Hash, 0, len(tx.Parents))
	for _, p := range tx.Parents {
		if s.dag.Has(p) {
			parents = append(parents, p)
			continue
		}
		if s.status[p] != StatusAccepted {
			return false, ErrMissingAncestry
		}
		// accepted and pruned parents drop out of the edge set
	}

	if err := s.dag.Insert(h, parents); err != nil {
		return false, err
	}
	s.conflicts.Insert(h, c.ConsumedIDs())
	s.registerOutputs(c)
	s.txs[h] = tx
	s.status[h] = StatusPending
	s.enqueue(h)
	return true, nil
}

// HasParents reports whether the transaction's ancestry is fully known.
func (s *Sleet) HasParents(tx *Tx) bool {
	for _, p := range tx.Parents {
		if !s.dag.Has(p) && s.status[p] != StatusAccepted {
			return false
		}
	}
	for i := range tx.Cell.Inputs {
		if _, ok := s.outputs[tx.Cell.Inputs[i].ID()]; !ok {
			return false
		}
	}
	return true
}

func (s *Sleet) enqueue(h crypto.Hash) {
	if !s.inQueue[h] {
		s.unqueried = append(s.unqueried, h)
		s.inQueue[h] = true
	}
}

// NextUnqueried pops the next transaction awaiting a sampling query.
func (s *Sleet) NextUnqueried() (*Tx, bool) {
	for len(s.unqueried) > 0 {
		h := s.unqueried[0]
		s.unqueried = s.unqueried[1:]
		delete(s.inQueue, h)
		if s.status[h] == StatusPending {
			return s.txs[h], true
		}
	}
	return nil, false
}

// SelectParents picks up to n strongly-preferred vertices to attach a fresh
// transaction to, favouring the live edge of the DAG.
func (s *Sleet) SelectParents(n int) []crypto.Hash {
	var parents []crypto.Hash
	accessible := make(map[crypto.Hash]bool)

	leaves := s.dag.Leaves()
	for _, leaf := range leaves {
		if len(parents) >= n {
			break
		}
		if s.IsStronglyPreferred(leaf) {
			parents = append(parents, leaf)
			_ = s.dag.Ancestry(leaf, func(v crypto.Hash) bool {
				accessible[v] = true
				return true
			})
		}
	}
	if len(parents) > 0 {
		return parents
	}

	// no preferred leaves; fall back to their preferred ancestors
	for _, leaf := range leaves {
		if len(parents) >= n {
			break
		}
		_ = s.dag.Ancestry(leaf, func(v crypto.Hash) bool {
			if len(parents) >= n {
				return false
			}
			if !accessible[v] && s.IsStronglyPreferred(v) {
				parents = append(parents, v)
				accessible[v] = true
				return false
			}
			return true
		})
	}
	return parents
}

// GenerateTx attaches a client-submitted cell to the DAG.
func (s *Sleet) GenerateTx(c *cell.Cell) (*Tx, error) {
	tx := NewTx(c, s.SelectParents(NParents))
	fresh, err := s.OnReceiveTx(tx)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, nil
	}
	return tx, nil
}

// IsStronglyPreferred reports whether every vertex in the transaction's
// ancestry is the preference of all conflict sets it participates in.
func (s *Sleet) IsStronglyPreferred(h crypto.Hash) bool {
	result := true
	err := s.dag.Ancestry(h, func(v crypto.Hash) bool {
		switch s.status[v] {
		case StatusAccepted:
			return true
		case StatusRejected, StatusRemoved:
			result = false
			return false
		}
		pref, err := s.conflicts.IsPreferred(v)
		if err != nil || !pref {
			result = false
			return false
		}
		return true
	})
	if err != nil {
		return false
	}
	return result
}

// RecordQuerySuccess folds a successful quorum for h into the DAG: the chit
// is set (first success only), conviction propagates through the ancestry's
// conflict sets, and any vertices that reached the acceptance rules are
// finalised. It returns the newly accepted cells in topological order.
func (s *Sleet) RecordQuerySuccess(h crypto.Hash) ([]*cell.Cell, error) {
	if _, ok := s.txs[h]; !ok {
		return nil, ErrUnknownTx
	}
	if err := s.dag.SetChit(h); err != nil {
		return nil, err
	}

	conviction := func(v crypto.Hash) int {
		c, err := s.dag.Conviction(v)
		if err != nil {
			return 0
		}
		return c
	}

	ancestry, err := s.dag.AncestrySlice(h)
	if err != nil {
		return nil, err
	}
	for _, v := range ancestry {
		if s.status[v] == StatusAccepted {
			continue
		}
		if err := s.conflicts.Update(v, conviction, s.params.Beta2); err != nil {
			return nil, err
		}
	}
	if s.status[h] == StatusPending {
		s.status[h] = StatusQueried
	}

	return s.computeAccepted(ancestry)
}

// acceptedTxRule checks the two acceptance conditions for a single vertex,
// ancestry aside.
func (s *Sleet) acceptedTxRule(v crypto.Hash) bool {
	switch s.status[v] {
	case StatusAccepted:
		return true
	case StatusRejected, StatusRemoved:
		return false
	}
	conf, err := s.conflicts.Confidence(v)
	if err != nil {
		return false
	}
	singleton, err := s.conflicts.IsSingleton(v)
	if err != nil {
		return false
	}
	if singleton && conf >= s.params.Beta1 {
		return true
	}
	return conf >= s.params.Beta2
}

// computeAccepted walks the ancestry bottom-up, finalising every vertex
// whose rule holds and whose parents are all accepted.
func (s *Sleet) computeAccepted(ancestry []crypto.Hash) ([]*cell.Cell, error) {
	var newlyAccepted []*cell.Cell
	for i := len(ancestry) - 1; i >= 0; i-- {
		v := ancestry[i]
		if s.status[v] == StatusAccepted || !s.acceptedTxRule(v) {
			continue
		}
		parents, err := s.dag.Parents(v)
		if err != nil {
			return newlyAccepted, err
		}
		parentsAccepted := true
		for _, p := range parents {
			if s.status[p] != StatusAccepted {
				parentsAccepted = false
				break
			}
		}
		if !parentsAccepted {
			continue
		}
		if err := s.accept(v); err != nil {
			return newlyAccepted, err
		}
		newlyAccepted = append(newlyAccepted, s.txs[v].Cell)
	}
	return newlyAccepted, nil
}

func (s *Sleet) accept(v crypto.Hash) error {
	rejected, err := s.conflicts.Accept(v)
	if err != nil {
		return err
	}
	s.status[v] = StatusAccepted
	s.acceptedLog = append(s.acceptedLog, v)

	// the accepted vertex joins the frontier, displacing accepted parents
	s.frontier[v] = true
	if parents, err := s.dag.Parents(v); err == nil {
		for _, p := range parents {
			delete(s.frontier, p)
		}
	}

	s.logger.WithField("tx", v).Debug("accepted")

	// competitors are implicitly rejected, their progeny removed
	for _, loser := range rejected {
		s.reject(loser, StatusRejected)
	}
	return nil
}

// reject marks a transaction and cascades removal through its progeny. The
// transactions themselves are retained to resolve late-arriving descendants'
// ancestry checks.
func (s *Sleet) reject(v crypto.Hash, st Status) {
	if s.status[v] == StatusAccepted {
		// a conflict set can never reject an accepted member
		return
	}
	s.status[v] = st
	if tx, ok := s.txs[v]; ok {
		s.dropOutputs(tx.Cell)
	}
	s.conflicts.Remove(v)
	children, err := s.dag.Remove(v)
	if err != nil {
		return
	}
	for _, child := range children {
		s.reject(child, StatusRemoved)
	}
}

// RecordQueryFailure handles a query that did not reach quorum: the
// stability counters of the whole ancestry reset, and the members of the
// affected conflict sets are reissued so their confidence can recover.
func (s *Sleet) RecordQueryFailure(h crypto.Hash) error {
	ancestry, err := s.dag.AncestrySlice(h)
	if err != nil {
		return err
	}
	for _, v := range ancestry {
		if s.status[v] == StatusAccepted {
			continue
		}
		if err := s.conflicts.ResetCount(v); err != nil {
			return err
		}
		members, err := s.conflicts.Conflicts(v)
		if err != nil {
			return err
		}
		for _, member := range append(members, v) {
			if s.status[member] == StatusQueried {
				s.status[member] = StatusPending
				s.enqueue(member)
			}
		}
	}
	if s.status[h] == StatusPending {
		s.enqueue(h)
	}
	return nil
}

// Requeue marks an undecided transaction unqueried again so the main loop
// keeps sampling it until a verdict is reached.
func (s *Sleet) Requeue(h crypto.Hash) {
	if st, ok := s.status[h]; ok && (st == StatusQueried || st == StatusPending) {
		s.status[h] = StatusPending
		s.enqueue(h)
	}
}

// HandleQuery answers an inbound "is strongly preferred?" query. The
// transaction must already have been inserted via OnReceiveTx.
func (s *Sleet) HandleQuery(h crypto.Hash) bool {
	switch s.status[h] {
	case StatusAccepted:
		return true
	case StatusRejected, StatusRemoved:
		return false
	}
	return s.IsStronglyPreferred(h)
}

// AcceptedLog returns the accepted cells in acceptance order.
func (s *Sleet) AcceptedLog() []crypto.Hash {
	return append([]crypto.Hash{}, s.acceptedLog...)
}

// Frontier returns the accepted frontier: accepted vertices that no other
// accepted vertex builds on.
func (s *Sleet) Frontier() []crypto.Hash {
	out := make([]crypto.Hash, 0, len(s.frontier))
	for v := range s.frontier {
		out = append(out, v)
	}
	return out
}

// Ancestors collects up to max transactions from h's ancestry, h excluded,
// for answering gap-fill requests.
func (s *Sleet) Ancestors(h crypto.Hash, max int) []*Tx {
	var out []*Tx
	_ = s.dag.Ancestry(h, func(v crypto.Hash) bool {
		if v != h {
			if tx, ok := s.txs[v]; ok {
				out = append(out, tx)
			}
		}
		return len(out) < max
	})
	return out
}

// Confidence exposes a transaction's lowest stability counter, for the
// status service.
func (s *Sleet) Confidence(h crypto.Hash) int {
	conf, err := s.conflicts.Confidence(h)
	if err != nil {
		return 0
	}
	return conf
}
