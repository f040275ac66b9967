package sleet

import (
	"bytes"

	"github.com/frostnetworks/frost/src/crypto"
)

// ConflictSet tracks the transactions competing to spend one output,
// together with the snowball counters over them.
type ConflictSet struct {
	members map[crypto.Hash]struct{}

	// Pref is the currently preferred spender, Last the previously
	// counted one, Cnt the streak of rounds the preference was stable.
	Pref crypto.Hash
	Last crypto.Hash
	Cnt  int
}

func newConflictSet(tx crypto.Hash) *ConflictSet {
	return &ConflictSet{
		members: map[crypto.Hash]struct{}{tx: {}},
		Pref:    tx,
		Last:    tx,
	}
}

// Len returns the number of competing transactions.
func (cs *ConflictSet) Len() int {
	return len(cs.members)
}

// IsSingleton reports whether the set has exactly one member.
func (cs *ConflictSet) IsSingleton() bool {
	return len(cs.members) == 1
}

// Contains reports whether tx is a member.
func (cs *ConflictSet) Contains(tx crypto.Hash) bool {
	_, ok := cs.members[tx]
	return ok
}

// Members returns the competing transactions.
func (cs *ConflictSet) Members() []crypto.Hash {
	out := make([]crypto.Hash, 0, len(cs.members))
	for m := range cs.members {
		out = append(out, m)
	}
	return out
}

// add inserts a new member. While no member has accumulated conviction
// (Cnt == 0) the preference falls to the lowest hash, so that every node
// starts from the same preference regardless of arrival order.
func (cs *ConflictSet) add(tx crypto.Hash) {
	cs.members[tx] = struct{}{}
	switch {
	case len(cs.members) == 1:
		cs.Pref, cs.Last, cs.Cnt = tx, tx, 0
	case cs.Cnt == 0:
		low := cs.lowest()
		cs.Pref = low
		cs.Last = low
	}
}

func (cs *ConflictSet) lowest() crypto.Hash {
	var low crypto.Hash
	first := true
	for m := range cs.members {
		if first || bytes.Compare(m[:], low[:]) < 0 {
			low = m
			first = false
		}
	}
	return low
}

// remove drops a member, leaving the counters untouched.
func (cs *ConflictSet) remove(tx crypto.Hash) {
	delete(cs.members, tx)
}
