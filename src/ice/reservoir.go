package ice

import (
	"math/rand"

	"github.com/frostnetworks/frost/src/common"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sampling"
)

type entry struct {
	addr     string
	outcomes []common.Choice

	tentative common.Choice
	streak    int

	decision common.Choice
	// epochs in which the entry last flipped towards Live / Faulty; a
	// decision transitions at most once per direction per epoch
	liveEpoch   uint64
	faultyEpoch uint64
}

// Reservoir holds the last k observed outcomes per candidate peer and
// promotes streaks of identical majorities into decisions.
type Reservoir struct {
	k     int
	beta1 int

	epoch   uint64
	entries map[peers.ID]*entry

	// stakers get a higher effective streak requirement for Faulty
	stakers map[peers.ID]uint64
}

// NewReservoir creates a reservoir with window size k and decision streak
// beta1.
func NewReservoir(k, beta1 int) *Reservoir {
	return &Reservoir{
		k:       k,
		beta1:   beta1,
		entries: make(map[peers.ID]*entry),
		stakers: make(map[peers.ID]uint64),
	}
}

// Len returns the number of candidate peers tracked.
func (r *Reservoir) Len() int {
	return len(r.entries)
}

// SetEpoch moves the reservoir to a new epoch, unlocking one decision flip
// per direction.
func (r *Reservoir) SetEpoch(epoch uint64) {
	r.epoch = epoch
}

// SetStakers installs the stake table used to harden Faulty decisions
// against validators.
func (r *Reservoir) SetStakers(stakers map[peers.ID]uint64) {
	r.stakers = stakers
}

// InsertNew starts tracking a candidate peer if it is not tracked yet.
func (r *Reservoir) InsertNew(id peers.ID, addr string) {
	if _, ok := r.entries[id]; ok {
		return
	}
	r.entries[id] = &entry{
		addr:      addr,
		tentative: common.Unknown,
		decision:  common.Unknown,
	}
}

// Addr returns the tracked endpoint of a peer.
func (r *Reservoir) Addr(id peers.ID) (string, bool) {
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.addr, true
}

// Decision returns the current verdict for a peer.
func (r *Reservoir) Decision(id peers.ID) common.Choice {
	e, ok := r.entries[id]
	if !ok {
		return common.Unknown
	}
	return e.decision
}

func (r *Reservoir) effectiveBeta1(id peers.ID, verdict common.Choice) int {
	// Faulty verdicts against stakers need stronger evidence.
	if verdict == common.Faulty && r.stakers[id] > 0 {
		return 2 * r.beta1
	}
	return r.beta1
}

// Observe appends an outcome to the subject's reservoir and re-evaluates the
// decision. Unknown outcomes carry no evidence and are dropped.
func (r *Reservoir) Observe(id peers.ID, outcome common.Choice) {
	if outcome == common.Unknown {
		return
	}
	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.outcomes = append(e.outcomes, outcome)
	if len(e.outcomes) > r.k {
		e.outcomes = e.outcomes[len(e.outcomes)-r.k:]
	}
	if len(e.outcomes) < r.k {
		return
	}

	tentative := majority(e.outcomes)
	if tentative == e.tentative {
		e.streak++
	} else {
		e.tentative = tentative
		e.streak = 1
	}
	if e.streak < r.effectiveBeta1(id, tentative) || tentative == e.decision {
		return
	}

	// promote, at most one flip per direction per epoch
	switch tentative {
	case common.Live:
		if e.decision == common.Faulty && e.liveEpoch == r.epoch {
			return
		}
		e.liveEpoch = r.epoch
	case common.Faulty:
		if e.decision == common.Live && e.faultyEpoch == r.epoch {
			return
		}
		e.faultyEpoch = r.epoch
	}
	e.decision = tentative
}

func majority(outcomes []common.Choice) common.Choice {
	live := 0
	for _, o := range outcomes {
		if o == common.Live {
			live++
		}
	}
	if 2*live > len(outcomes) {
		return common.Live
	}
	return common.Faulty
}

// Subjects samples up to k tracked peers to ask about in the next Ping.
func (r *Reservoir) Subjects(rng *rand.Rand, k int) []peers.ID {
	ids := make([]peers.ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return sampling.Uniform(rng, ids, k)
}

// Live returns the peers currently decided Live, with their endpoints.
func (r *Reservoir) Live() map[peers.ID]string {
	live := make(map[peers.ID]string)
	for id, e := range r.entries {
		if e.decision == common.Live {
			live[id] = e.addr
		}
	}
	return live
}
