package alpha

import (
	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/peers"
)

// Alpha derives consensus inputs from the client chain's genesis state. It
// receives LiveCommittee events from ice and turns each into an epoch-tagged
// ValidatorSet snapshot for sleet and hail. The frontier of spendable genesis
// cells is not part of the snapshot; GenesisCells returns it.
type Alpha struct {
	stakers      []*InitialStaker
	genesisBlock *Block
	genesisCells []*cell.Cell
	totalStake   uint64

	bootstrapped bool

	logger *logrus.Entry
}

// New builds the alpha bridge from the genesis staker list.
func New(stakers []*InitialStaker, logger *logrus.Entry) *Alpha {
	a := &Alpha{
		stakers:      stakers,
		genesisBlock: GenesisBlock(stakers),
		genesisCells: GenesisCells(stakers),
		logger:       logger,
	}
	for _, s := range stakers {
		a.totalStake += s.Allocation
	}
	return a
}

// GenesisBlock returns the deterministic height-0 block.
func (a *Alpha) GenesisBlock() *Block {
	return a.genesisBlock
}

// GenesisCells returns the genesis frontier of spendable cells.
func (a *Alpha) GenesisCells() []*cell.Cell {
	return a.genesisCells
}

// Stakers returns the genesis staker list.
func (a *Alpha) Stakers() []*InitialStaker {
	return a.stakers
}

// Bootstrapped reports whether a LiveCommittee has been observed.
func (a *Alpha) Bootstrapped() bool {
	return a.bootstrapped
}

// StakeOf returns the genesis allocation of a peer, or 0 for non-stakers.
func (a *Alpha) StakeOf(id peers.ID) uint64 {
	for _, s := range a.stakers {
		if s.ID == id {
			return s.Allocation
		}
	}
	return 0
}

// OnLiveCommittee folds an ice LiveCommittee into a new ValidatorSet
// snapshot. The snapshot contains the live stakers; weights stay normalised
// over the full genesis stake so that losing validators shrinks the live
// weight instead of inflating the survivors.
func (a *Alpha) OnLiveCommittee(epoch uint64, live map[peers.ID]string) *ValidatorSet {
	var members []*Validator
	var absentStake uint64
	for _, s := range a.stakers {
		addr, ok := live[s.ID]
		if !ok {
			absentStake += s.Allocation
			continue
		}
		if addr == "" {
			addr = s.NetAddr
		}
		members = append(members, &Validator{
			ID:      s.ID,
			NetAddr: addr,
			PubKey:  s.PubKey,
			Stake:   s.Allocation,
			Uptime:  1,
		})
	}
	vs := NewValidatorSet(epoch, members, absentStake)
	if !a.bootstrapped {
		a.bootstrapped = true
		a.logger.WithFields(logrus.Fields{
			"epoch":      epoch,
			"validators": vs.Len(),
			"live_cells": len(a.genesisCells),
		}).Info("alpha bootstrapped")
	}
	return vs
}
