package hail

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/crypto/vrf"
	"github.com/frostnetworks/frost/src/graph"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sampling"
)

var (
	// ErrUnknownParent is returned when a block's parent is not known; the
	// caller may gap-fill and retry.
	ErrUnknownParent = errors.New("unknown parent block")
	// ErrUnknownProducer is returned when a block's producer is not in the
	// validator set at its height.
	ErrUnknownProducer = errors.New("producer not in validator set")
	// ErrSortition is returned when a block's VRF output does not meet the
	// sortition threshold.
	ErrSortition = errors.New("vrf output above sortition threshold")
	// ErrStaleHeight is returned for a block at an already decided height.
	ErrStaleHeight = errors.New("height already decided")
	// ErrNoCommittee is returned when no validator snapshot is installed.
	ErrNoCommittee = errors.New("no validator committee")
)

// ErrMissingCells is returned when a block references cells sleet has not
// accepted; the node holds the block until sleet decides or a stall timeout
// fires.
type ErrMissingCells struct {
	Block *alpha.Block
	Cells []crypto.Hash
}

func (e *ErrMissingCells) Error() string {
	return fmt.Sprintf("%s references %d undecided cells", e.Block, len(e.Cells))
}

// Status is a block's position in its lifecycle.
type Status uint8

const (
	// StatusPending means received but not yet queried
	StatusPending Status = iota
	// StatusQueried means at least one sampling query ran
	StatusQueried
	// StatusAccepted is terminal
	StatusAccepted
	// StatusRejected means a competing block at the height was accepted
	StatusRejected
)

// Hail is the block consensus engine. It is driven by the node's hail loop;
// all methods must be called under the node's hail lock.
type Hail struct {
	params sampling.Params
	selfID peers.ID
	key    *keys.KeyPair

	dag       *graph.DAG[Vertex]
	conflicts *ConflictMap
	blocks    map[crypto.Hash]*alpha.Block
	status    map[crypto.Hash]Status

	// the decided chain: accepted block hash and sortition seed per height
	accepted map[alpha.Height]crypto.Hash
	seeds    map[alpha.Height][vrf.OutputLength]byte

	// height is the next undecided height
	height   alpha.Height
	proposed map[alpha.Height]bool

	unqueried []crypto.Hash
	inQueue   map[crypto.Hash]bool

	validators *alpha.ValidatorSet

	logger *logrus.Entry
}

// NewHail creates the block consensus engine.
func NewHail(params sampling.Params, selfID peers.ID, key *keys.KeyPair, logger *logrus.Entry) *Hail {
	return &Hail{
		params:    params,
		selfID:    selfID,
		key:       key,
		dag:       graph.New[Vertex](),
		conflicts: NewConflictMap(),
		blocks:    make(map[crypto.Hash]*alpha.Block),
		status:    make(map[crypto.Hash]Status),
		accepted:  make(map[alpha.Height]crypto.Hash),
		seeds:     make(map[alpha.Height][vrf.OutputLength]byte),
		proposed:  make(map[alpha.Height]bool),
		inQueue:   make(map[crypto.Hash]bool),
		logger:    logger,
	}
}

// Bootstrap seeds the chain with the genesis block (or the last persisted
// accepted block on restart).
func (h *Hail) Bootstrap(b *alpha.Block) {
	hash := b.Hash()
	h.blocks[hash] = b
	h.status[hash] = StatusAccepted
	h.accepted[b.Height] = hash
	h.seeds[b.Height] = b.VRFOutput
	h.height = b.Height + 1
	if err := h.dag.Insert(NewVertex(b), nil); err == nil {
		_ = h.dag.SetChit(NewVertex(b))
	}
	h.logger.WithField("block", b.String()).Debug("bootstrapped chain")
}

// SetValidators installs a new validator snapshot.
func (h *Hail) SetValidators(vs *alpha.ValidatorSet) {
	h.validators = vs
}

// Validators returns the current validator snapshot.
func (h *Hail) Validators() *alpha.ValidatorSet {
	return h.validators
}

// Height returns the next undecided height.
func (h *Hail) Height() alpha.Height {
	return h.height
}

// LastAccepted returns the most recently accepted block.
func (h *Hail) LastAccepted() *alpha.Block {
	return h.blocks[h.accepted[h.height-1]]
}

// AcceptedAt returns the accepted block at a height, if decided.
func (h *Hail) AcceptedAt(height alpha.Height) (*alpha.Block, bool) {
	hash, ok := h.accepted[height]
	if !ok {
		return nil, false
	}
	return h.blocks[hash], true
}

// Get returns a known block.
func (h *Hail) Get(hash crypto.Hash) (*alpha.Block, bool) {
	b, ok := h.blocks[hash]
	return b, ok
}

// Sample draws up to k validators, stake-weighted without replacement,
// excluding self.
func (h *Hail) Sample(rng *rand.Rand) []*alpha.Validator {
	if h.validators == nil {
		return nil
	}
	pool := make([]*alpha.Validator, 0, h.validators.Len())
	for _, v := range h.validators.List() {
		if v.ID != h.selfID {
			pool = append(pool, v)
		}
	}
	return sampling.Weighted(rng, pool, func(v *alpha.Validator) float64 {
		return float64(v.Stake)
	}, h.params.K)
}

// ProductionSlot evaluates this node's VRF for the next undecided height and
// reports whether the sortition makes it an eligible producer. Each height
// is proposed at most once.
func (h *Hail) ProductionSlot() (proof []byte, output [vrf.OutputLength]byte, ok bool) {
	if h.validators == nil || h.proposed[h.height] || !h.validators.Contains(h.selfID) {
		return nil, output, false
	}
	seed, have := h.seeds[h.height-1]
	if !have {
		return nil, output, false
	}
	proof, output, err := vrf.Prove(h.key.Public, h.key.Private, alpha.SortitionAlpha(seed, h.height))
	if err != nil {
		h.logger.WithField("error", err).Error("vrf evaluation failed")
		return nil, output, false
	}
	if !Eligible(output, h.validators.Weight(h.selfID), h.validators.Len()) {
		return nil, output, false
	}
	return proof, output, true
}

// GenerateBlock assembles a block for the next undecided height from the
// accepted frontier, signs it and marks the height proposed. The caller
// inserts it via OnReceiveBlock and broadcasts it.
func (h *Hail) GenerateBlock(cells []crypto.Hash, proof []byte, output [vrf.OutputLength]byte) *alpha.Block {
	b := &alpha.Block{
		Height:    h.height,
		Parent:    h.accepted[h.height-1],
		VRFOutput: output,
		VRFProof:  proof,
		Cells:     cells,
		Producer:  h.selfID,
	}
	b.Sign(h.key)
	h.proposed[h.height] = true
	return b
}

// ValidateBlock runs the full admission checks for an inbound block.
// cellAccepted reports sleet's verdict per referenced cell; cells not (yet)
// accepted are collected into ErrMissingCells so the caller can hold the
// block while sleet catches up.
func (h *Hail) ValidateBlock(b *alpha.Block, cellAccepted func(crypto.Hash) bool) error {
	if h.validators == nil {
		return ErrNoCommittee
	}
	if b.Height < h.height {
		return ErrStaleHeight
	}
	v, ok := h.validators.Validators[b.Producer]
	if !ok {
		return ErrUnknownProducer
	}
	if err := b.VerifySignature(v.PubKey); err != nil {
		return err
	}
	seed, have := h.seeds[b.Height-1]
	if !have {
		return ErrUnknownParent
	}
	if err := b.VerifyVRF(v.PubKey, seed); err != nil {
		return err
	}
	if !Eligible(b.VRFOutput, h.validators.Weight(b.Producer), h.validators.Len()) {
		return ErrSortition
	}
	if !h.dag.Has(ParentVertex(b)) {
		return ErrUnknownParent
	}
	var missing []crypto.Hash
	for _, c := range b.Cells {
		if !cellAccepted(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &ErrMissingCells{Block: b, Cells: missing}
	}
	return nil
}

// OnReceiveBlock inserts a validated block. It returns true if the block was
// fresh; re-delivery is a no-op.
func (h *Hail) OnReceiveBlock(b *alpha.Block) (bool, error) {
	hash := b.Hash()
	if _, ok := h.status[hash]; ok {
		return false, nil
	}
	if err := h.dag.Insert(NewVertex(b), []Vertex{ParentVertex(b)}); err != nil {
		return false, err
	}
	h.conflicts.Insert(b)
	h.blocks[hash] = b
	h.status[hash] = StatusPending
	h.enqueue(hash)
	return true, nil
}

func (h *Hail) enqueue(hash crypto.Hash) {
	if !h.inQueue[hash] {
		h.unqueried = append(h.unqueried, hash)
		h.inQueue[hash] = true
	}
}

// NextUnqueried pops the next block awaiting a sampling query.
func (h *Hail) NextUnqueried() (*alpha.Block, bool) {
	for len(h.unqueried) > 0 {
		hash := h.unqueried[0]
		h.unqueried = h.unqueried[1:]
		delete(h.inQueue, hash)
		if h.status[hash] == StatusPending {
			return h.blocks[hash], true
		}
	}
	return nil, false
}

// Requeue marks an undecided block unqueried again.
func (h *Hail) Requeue(hash crypto.Hash) {
	if st, ok := h.status[hash]; ok && (st == StatusQueried || st == StatusPending) {
		h.status[hash] = StatusPending
		h.enqueue(hash)
	}
}

// IsStronglyPreferred reports whether the block and its whole chain of
// ancestors are preferred at their heights.
func (h *Hail) IsStronglyPreferred(hash crypto.Hash) bool {
	b, ok := h.blocks[hash]
	if !ok {
		return false
	}
	result := true
	err := h.dag.Ancestry(NewVertex(b), func(v Vertex) bool {
		if h.status[v.Block] == StatusAccepted {
			return true
		}
		if h.status[v.Block] == StatusRejected {
			result = false
			return false
		}
		pref, err := h.conflicts.IsPreferred(v.Height, v.Block)
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

// HandleQuery answers an inbound "is strongly preferred?" query for an
// already inserted block.
func (h *Hail) HandleQuery(hash crypto.Hash) bool {
	switch h.status[hash] {
	case StatusAccepted:
		return true
	case StatusRejected:
		return false
	}
	return h.IsStronglyPreferred(hash)
}

// RecordQuerySuccess folds a successful quorum for a block into the chain
// and returns the newly accepted blocks in height order.
func (h *Hail) RecordQuerySuccess(hash crypto.Hash) ([]*alpha.Block, error) {
	b, ok := h.blocks[hash]
	if !ok {
		return nil, ErrUnknownParent
	}
	vx := NewVertex(b)
	if err := h.dag.SetChit(vx); err != nil {
		return nil, err
	}

	ancestry, err := h.dag.AncestrySlice(vx)
	if err != nil {
		return nil, err
	}
	for _, v := range ancestry {
		if h.status[v.Block] == StatusAccepted {
			continue
		}
		cs, err := h.conflicts.Get(v.Height)
		if err != nil {
			return nil, err
		}
		d1, err := h.dag.Conviction(v)
		if err != nil {
			return nil, err
		}
		d2 := 0
		if cs.Pref != v.Block {
			if pb, ok := h.blocks[cs.Pref]; ok {
				if c, err := h.dag.Conviction(NewVertex(pb)); err == nil {
					d2 = c
				}
			}
		}
		if err := h.conflicts.Update(v.Height, v.Block, d1, d2, h.params.Beta2); err != nil {
			return nil, err
		}
	}
	if h.status[hash] == StatusPending {
		h.status[hash] = StatusQueried
	}

	// finalise from the lowest undecided height upwards
	var newlyAccepted []*alpha.Block
	for i := len(ancestry) - 1; i >= 0; i-- {
		v := ancestry[i]
		if h.status[v.Block] == StatusAccepted {
			continue
		}
		if v.Height != h.height {
			break
		}
		if !h.acceptedBlockRule(v) {
			break
		}
		accepted, err := h.accept(v)
		if err != nil {
			return newlyAccepted, err
		}
		newlyAccepted = append(newlyAccepted, accepted)
	}
	return newlyAccepted, nil
}

func (h *Hail) acceptedBlockRule(v Vertex) bool {
	cs, err := h.conflicts.Get(v.Height)
	if err != nil {
		return false
	}
	conf, err := h.conflicts.Confidence(v.Height, v.Block)
	if err != nil {
		return false
	}
	if cs.IsSingleton() && conf >= h.params.Beta1 {
		return true
	}
	return conf >= h.params.Beta2
}

func (h *Hail) accept(v Vertex) (*alpha.Block, error) {
	rejected, err := h.conflicts.Accept(v.Height, v.Block)
	if err != nil {
		return nil, err
	}
	for _, loser := range rejected {
		h.rejectCascade(loser)
	}

	b := h.blocks[v.Block]
	h.status[v.Block] = StatusAccepted
	h.accepted[v.Height] = v.Block
	h.seeds[v.Height] = b.VRFOutput
	h.height = v.Height + 1

	h.logger.WithFields(logrus.Fields{
		"block":  b.String(),
		"height": v.Height,
	}).Info("block accepted")
	return b, nil
}

// rejectCascade marks a block rejected and removes it and its descendants
// from the DAG. The blocks themselves are retained for late queries.
func (h *Hail) rejectCascade(hash crypto.Hash) {
	h.status[hash] = StatusRejected
	b, ok := h.blocks[hash]
	if !ok {
		return
	}
	children, err := h.dag.Remove(NewVertex(b))
	if err != nil {
		return
	}
	for _, child := range children {
		h.rejectCascade(child.Block)
	}
}

// RecordQueryFailure resets the stability counters for every height in the
// block's ancestry and reissues the pending blocks there. It returns the
// cells referenced by the affected blocks so the caller can reissue them to
// sleet, keeping the frontier honest.
func (h *Hail) RecordQueryFailure(hash crypto.Hash) ([]crypto.Hash, error) {
	b, ok := h.blocks[hash]
	if !ok {
		return nil, ErrUnknownParent
	}
	ancestry, err := h.dag.AncestrySlice(NewVertex(b))
	if err != nil {
		return nil, err
	}
	var cells []crypto.Hash
	for _, v := range ancestry {
		if h.status[v.Block] == StatusAccepted {
			continue
		}
		if err := h.conflicts.ResetCount(v.Height); err != nil {
			return nil, err
		}
		cs, err := h.conflicts.Get(v.Height)
		if err != nil {
			return nil, err
		}
		for _, member := range cs.Members() {
			if h.status[member] == StatusQueried {
				h.status[member] = StatusPending
				h.enqueue(member)
			}
			if mb, ok := h.blocks[member]; ok {
				cells = append(cells, mb.Cells...)
			}
		}
	}
	if h.status[hash] == StatusPending {
		h.enqueue(hash)
	}
	return cells, nil
}
