package alpha

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostnetworks/frost/src/common"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/crypto/vrf"
	"github.com/frostnetworks/frost/src/peers"
)

func testStakers(t *testing.T, n int) ([]*InitialStaker, []*keys.KeyPair) {
	t.Helper()
	stakers := make([]*InitialStaker, 0, n)
	kps := make([]*keys.KeyPair, 0, n)
	for i := 0; i < n; i++ {
		kp, err := keys.GenerateKeyPair()
		require.NoError(t, err)
		stakers = append(stakers, &InitialStaker{
			ID:         peers.NewID(kp.Public),
			NetAddr:    "127.0.0.1:0",
			PubKey:     kp.Public,
			Allocation: 1000,
		})
		kps = append(kps, kp)
	}
	return stakers, kps
}

func TestGenesisDeterminism(t *testing.T) {
	stakers, _ := testStakers(t, 3)

	b1 := GenesisBlock(stakers)
	// same stakers in a different order produce the same genesis
	reordered := []*InitialStaker{stakers[2], stakers[0], stakers[1]}
	b2 := GenesisBlock(reordered)

	require.Equal(t, b1.Hash(), b2.Hash())
	require.Equal(t, uint64(0), b1.Height)
	require.Len(t, b1.Cells, 3)
}

func TestBlockSignature(t *testing.T) {
	stakers, kps := testStakers(t, 1)
	genesis := GenesisBlock(stakers)

	proof, out, err := vrf.Prove(kps[0].Public, kps[0].Private, SortitionAlpha(genesis.VRFOutput, 1))
	require.NoError(t, err)

	b := &Block{
		Height:    1,
		Parent:    genesis.Hash(),
		VRFOutput: out,
		VRFProof:  proof,
		Producer:  stakers[0].ID,
	}
	b.Sign(kps[0])

	require.NoError(t, b.VerifySignature(kps[0].Public))
	require.NoError(t, b.VerifyVRF(kps[0].Public, genesis.VRFOutput))

	// a different seed must not verify
	require.Error(t, b.VerifyVRF(kps[0].Public, [vrf.OutputLength]byte{}))

	// tampering breaks the signature
	b.Cells = append(b.Cells, genesis.Hash())
	b.hash = nil
	require.ErrorIs(t, b.VerifySignature(kps[0].Public), ErrBadSignature)
}

func TestOnLiveCommittee(t *testing.T) {
	stakers, _ := testStakers(t, 3)
	a := New(stakers, common.NewTestEntry(t, "alpha"))

	live := map[peers.ID]string{
		stakers[0].ID: "",
		stakers[1].ID: "",
	}
	vs := a.OnLiveCommittee(1, live)

	require.Equal(t, uint64(1), vs.Epoch)
	require.Equal(t, 2, vs.Len())
	require.True(t, a.Bootstrapped())

	// weights normalise over the full genesis stake
	require.InDelta(t, 1.0/3, vs.Weight(stakers[0].ID), 1e-9)
	require.InDelta(t, 2.0/3, vs.LiveWeight(), 1e-9)
	require.Equal(t, 0.0, vs.Weight(stakers[2].ID))
}
