package ice

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostnetworks/frost/src/common"
	"github.com/frostnetworks/frost/src/peers"
)

func testPeers(n int) []*peers.Peer {
	list := make([]*peers.Peer, 0, n)
	for i := 0; i < n; i++ {
		id := peers.NewID([]byte{byte(i)})
		list = append(list, peers.NewPeer(id, "127.0.0.1:0"))
	}
	return list
}

func fill(r *Reservoir, id peers.ID, outcome common.Choice, n int) {
	for x := 0; x < n; x++ {
		r.Observe(id, outcome)
	}
}

func TestReservoirDecision(t *testing.T) {
	r := NewReservoir(3, 2)
	id := peers.NewID([]byte("p"))
	r.InsertNew(id, "127.0.0.1:0")

	require.Equal(t, common.Unknown, r.Decision(id))

	// not enough outcomes yet
	fill(r, id, common.Live, 2)
	require.Equal(t, common.Unknown, r.Decision(id))

	// full reservoir, first majority: streak 1 of 2
	r.Observe(id, common.Live)
	require.Equal(t, common.Unknown, r.Decision(id))

	// second identical majority promotes the decision
	r.Observe(id, common.Live)
	require.Equal(t, common.Live, r.Decision(id))
}

func TestReservoirFaultyOnTimeouts(t *testing.T) {
	r := NewReservoir(3, 2)
	id := peers.NewID([]byte("p"))
	r.InsertNew(id, "127.0.0.1:0")

	fill(r, id, common.Faulty, 4)
	require.Equal(t, common.Faulty, r.Decision(id))
}

func TestReservoirNoOscillationWithinEpoch(t *testing.T) {
	r := NewReservoir(3, 1)
	id := peers.NewID([]byte("p"))
	r.InsertNew(id, "127.0.0.1:0")
	r.SetEpoch(1)

	fill(r, id, common.Live, 3)
	require.Equal(t, common.Live, r.Decision(id))

	fill(r, id, common.Faulty, 3)
	require.Equal(t, common.Faulty, r.Decision(id))

	// flipping back to Live within the same epoch is blocked
	fill(r, id, common.Live, 3)
	require.Equal(t, common.Faulty, r.Decision(id))

	// a new epoch unlocks the flip
	r.SetEpoch(2)
	fill(r, id, common.Live, 3)
	require.Equal(t, common.Live, r.Decision(id))
}

func TestReservoirStakerHardening(t *testing.T) {
	r := NewReservoir(3, 2)
	staker := peers.NewID([]byte("staker"))
	outsider := peers.NewID([]byte("outsider"))
	r.InsertNew(staker, "127.0.0.1:0")
	r.InsertNew(outsider, "127.0.0.1:0")
	r.SetStakers(map[peers.ID]uint64{staker: 1000})

	// beta1 faulty majorities condemn the outsider
	fill(r, outsider, common.Faulty, 4)
	require.Equal(t, common.Faulty, r.Decision(outsider))

	// the same evidence is not enough against a staker
	fill(r, staker, common.Faulty, 4)
	require.Equal(t, common.Unknown, r.Decision(staker))

	// twice the streak is
	fill(r, staker, common.Faulty, 2)
	require.Equal(t, common.Faulty, r.Decision(staker))
}

func TestIceCommitteeCrossing(t *testing.T) {
	list := testPeers(3)
	self := list[0]
	conf := Config{KIce: 3, Beta1: 1, LiveThreshold: 2.0 / 3.0}
	ice := NewIce(conf, self.ID, self.NetAddr, peers.NewPeerSet(list), common.NewTestEntry(t, "ice"))

	require.Nil(t, ice.CheckCommittee()) // 1 of 3 < 2f+1

	subjects := []peers.ID{list[1].ID, list[2].ID}
	for x := 0; x < 4; x++ {
		ice.RecordOutcomes(subjects, []common.Choice{common.Live, common.Live})
	}
	ev := ice.CheckCommittee()
	require.NotNil(t, ev)
	require.True(t, ev.Live)
	require.Equal(t, uint64(1), ev.Epoch)
	require.Len(t, ev.Members, 2)

	// stable committee emits nothing
	require.Nil(t, ice.CheckCommittee())

	// one peer crashes: ping failures count as Faulty for its subjects
	for x := 0; x < 6; x++ {
		ice.RecordPingFailure([]peers.ID{list[2].ID})
	}
	ev = ice.CheckCommittee()
	require.NotNil(t, ev)
	require.False(t, ev.Live)

	// it returns: live committee again with a higher epoch
	for x := 0; x < 8; x++ {
		ice.RecordOutcomes([]peers.ID{list[2].ID}, []common.Choice{common.Live})
	}
	ev = ice.CheckCommittee()
	require.NotNil(t, ev)
	require.True(t, ev.Live)
	require.Equal(t, uint64(2), ev.Epoch)
}

func TestHandlePing(t *testing.T) {
	list := testPeers(3)
	self := list[0]
	conf := DefaultConfig()
	ice := NewIce(conf, self.ID, self.NetAddr, peers.NewPeerSet(list), common.NewTestEntry(t, "ice"))

	outcomes := ice.HandlePing(list[1].ID, list[1].NetAddr, []peers.ID{self.ID, list[2].ID})
	require.Equal(t, common.Live, outcomes[0])    // self is always Live
	require.Equal(t, common.Unknown, outcomes[1]) // no verdict yet
}

func TestPickTargetExcludesSelf(t *testing.T) {
	list := testPeers(2)
	self := list[0]
	ice := NewIce(DefaultConfig(), self.ID, self.NetAddr, peers.NewPeerSet(list), common.NewTestEntry(t, "ice"))

	rng := rand.New(rand.NewSource(1))
	id, addr, ok := ice.PickTarget(rng)
	require.True(t, ok)
	require.Equal(t, list[1].ID, id)
	require.NotEmpty(t, addr)
}
