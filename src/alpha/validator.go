package alpha

import (
	"sort"

	"github.com/frostnetworks/frost/src/peers"
)

// Validator is a staked consensus participant.
type Validator struct {
	ID      peers.ID
	NetAddr string
	PubKey  []byte
	Stake   uint64
	Uptime  float64
}

// ValidatorSet is an epoch-tagged, immutable snapshot of the validators that
// sleet and hail sample against. A new LiveCommittee produces a new snapshot;
// snapshots are never mutated in place.
type ValidatorSet struct {
	Epoch      uint64
	Validators map[peers.ID]*Validator
	TotalStake uint64
}

// NewValidatorSet builds a snapshot from a list of validators. TotalStake is
// the stake of the listed validators plus extraStake (the stake of absent
// validators still counted in weight normalisation).
func NewValidatorSet(epoch uint64, list []*Validator, extraStake uint64) *ValidatorSet {
	vs := &ValidatorSet{
		Epoch:      epoch,
		Validators: make(map[peers.ID]*Validator, len(list)),
		TotalStake: extraStake,
	}
	for _, v := range list {
		vs.Validators[v.ID] = v
		vs.TotalStake += v.Stake
	}
	return vs
}

// Contains reports whether id is in the snapshot.
func (vs *ValidatorSet) Contains(id peers.ID) bool {
	_, ok := vs.Validators[id]
	return ok
}

// Weight returns the stake fraction of a validator, or 0 if absent.
func (vs *ValidatorSet) Weight(id peers.ID) float64 {
	v, ok := vs.Validators[id]
	if !ok || vs.TotalStake == 0 {
		return 0
	}
	return float64(v.Stake) / float64(vs.TotalStake)
}

// LiveWeight returns the combined stake fraction of the snapshot's members.
func (vs *ValidatorSet) LiveWeight() float64 {
	if vs.TotalStake == 0 {
		return 0
	}
	var live uint64
	for _, v := range vs.Validators {
		live += v.Stake
	}
	return float64(live) / float64(vs.TotalStake)
}

// List returns the validators ordered by ID, for deterministic iteration.
func (vs *ValidatorSet) List() []*Validator {
	list := make([]*Validator, 0, len(vs.Validators))
	for _, v := range vs.Validators {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i].ID, list[j].ID
		for x := range a {
			if a[x] != b[x] {
				return a[x] < b[x]
			}
		}
		return false
	})
	return list
}

// Len returns the number of validators in the snapshot.
func (vs *ValidatorSet) Len() int {
	return len(vs.Validators)
}
