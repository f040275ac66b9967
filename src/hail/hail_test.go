package hail

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/common"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/crypto/vrf"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sampling"
)

type fixture struct {
	hail    *Hail
	key     *keys.KeyPair
	self    peers.ID
	genesis *alpha.Block
	stakers []*alpha.InitialStaker
}

func newFixture(t *testing.T, beta1, beta2 int) *fixture {
	t.Helper()
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	self := peers.NewID(key.Public)
	stakers := []*alpha.InitialStaker{{
		ID:         self,
		NetAddr:    "127.0.0.1:0",
		PubKey:     key.Public,
		Allocation: 1000,
	}}
	genesis := alpha.GenesisBlock(stakers)

	params := sampling.Params{K: 1, Alpha: 0.5, Beta1: beta1, Beta2: beta2}
	h := NewHail(params, self, key, common.NewTestEntry(t, "hail"))
	h.Bootstrap(genesis)
	h.SetValidators(alpha.NewValidatorSet(1, []*alpha.Validator{{
		ID:      self,
		NetAddr: "127.0.0.1:0",
		PubKey:  key.Public,
		Stake:   1000,
		Uptime:  1,
	}}, 0))
	return &fixture{hail: h, key: key, self: self, genesis: genesis, stakers: stakers}
}

func TestSingleProducerHappyPath(t *testing.T) {
	f := newFixture(t, 2, 4)

	// sole validator: always eligible
	proof, output, ok := f.hail.ProductionSlot()
	require.True(t, ok)

	b := f.hail.GenerateBlock(nil, proof, output)
	require.Equal(t, uint64(1), b.Height)
	require.Equal(t, f.genesis.Hash(), b.Parent)

	// a height is proposed at most once
	_, _, ok = f.hail.ProductionSlot()
	require.False(t, ok)

	require.NoError(t, f.hail.ValidateBlock(b, func(crypto.Hash) bool { return true }))

	fresh, err := f.hail.OnReceiveBlock(b)
	require.NoError(t, err)
	require.True(t, fresh)

	// re-delivery is a no-op
	fresh, err = f.hail.OnReceiveBlock(b)
	require.NoError(t, err)
	require.False(t, fresh)

	// uncontested height: beta1 rounds accept
	accepted, err := f.hail.RecordQuerySuccess(b.Hash())
	require.NoError(t, err)
	require.Empty(t, accepted)

	accepted, err = f.hail.RecordQuerySuccess(b.Hash())
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	require.Equal(t, b.Hash(), accepted[0].Hash())

	require.Equal(t, uint64(2), f.hail.Height())
	got, ok := f.hail.AcceptedAt(1)
	require.True(t, ok)
	require.Equal(t, b.Hash(), got.Hash())
	require.Equal(t, b.Hash(), f.hail.LastAccepted().Hash())
}

// fabricate an unvalidated block with a chosen VRF output, for exercising
// the tie-break without sortition randomness.
func rawBlock(parent *alpha.Block, producer peers.ID, key *keys.KeyPair, firstByte byte) *alpha.Block {
	var out [vrf.OutputLength]byte
	out[0] = firstByte
	b := &alpha.Block{
		Height:    parent.Height + 1,
		Parent:    parent.Hash(),
		VRFOutput: out,
		Producer:  producer,
	}
	b.Sign(key)
	return b
}

func TestHeightTieBreak(t *testing.T) {
	f := newFixture(t, 2, 3)

	ba := rawBlock(f.genesis, f.self, f.key, 0x01)
	bb := rawBlock(f.genesis, f.self, f.key, 0x02)

	_, err := f.hail.OnReceiveBlock(bb)
	require.NoError(t, err)
	_, err = f.hail.OnReceiveBlock(ba)
	require.NoError(t, err)

	// the lower VRF output is preferred from the outset, regardless of
	// arrival order
	require.True(t, f.hail.IsStronglyPreferred(ba.Hash()))
	require.False(t, f.hail.IsStronglyPreferred(bb.Hash()))

	// contested height: beta2 rounds are needed
	for i := 0; i < 2; i++ {
		accepted, err := f.hail.RecordQuerySuccess(ba.Hash())
		require.NoError(t, err)
		require.Empty(t, accepted)
	}
	accepted, err := f.hail.RecordQuerySuccess(ba.Hash())
	require.NoError(t, err)
	require.Len(t, accepted, 1)

	require.Equal(t, StatusAccepted, f.hail.status[ba.Hash()])
	require.Equal(t, StatusRejected, f.hail.status[bb.Hash()])

	// the rejected block's height is decided; late queries answer no
	require.False(t, f.hail.HandleQuery(bb.Hash()))
	require.True(t, f.hail.HandleQuery(ba.Hash()))
}

func TestValidateBlock(t *testing.T) {
	f := newFixture(t, 2, 4)

	proof, output, ok := f.hail.ProductionSlot()
	require.True(t, ok)
	cells := []crypto.Hash{crypto.Blake3([]byte("t3"))}
	b := f.hail.GenerateBlock(cells, proof, output)

	// block referencing a cell sleet has not accepted is held
	err := f.hail.ValidateBlock(b, func(crypto.Hash) bool { return false })
	var missing *ErrMissingCells
	require.ErrorAs(t, err, &missing)
	require.Equal(t, cells, missing.Cells)

	// once sleet accepts the cell, validation passes
	require.NoError(t, f.hail.ValidateBlock(b, func(crypto.Hash) bool { return true }))

	// unknown producer
	intruder, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	bad := rawBlock(f.genesis, peers.NewID(intruder.Public), intruder, 0x01)
	require.ErrorIs(t, f.hail.ValidateBlock(bad, func(crypto.Hash) bool { return true }), ErrUnknownProducer)

	// tampered proof
	forged := *b
	forged.VRFProof = append([]byte{}, b.VRFProof...)
	if len(forged.VRFProof) > 0 {
		forged.VRFProof[0] ^= 0xff
	}
	require.Error(t, f.hail.ValidateBlock(&forged, func(crypto.Hash) bool { return true }))
}

func TestStaleHeightRejected(t *testing.T) {
	f := newFixture(t, 1, 2)

	proof, output, ok := f.hail.ProductionSlot()
	require.True(t, ok)
	b := f.hail.GenerateBlock(nil, proof, output)
	_, err := f.hail.OnReceiveBlock(b)
	require.NoError(t, err)
	_, err = f.hail.RecordQuerySuccess(b.Hash())
	require.NoError(t, err)
	require.Equal(t, uint64(2), f.hail.Height())

	late := rawBlock(f.genesis, f.self, f.key, 0x09)
	require.ErrorIs(t, f.hail.ValidateBlock(late, func(crypto.Hash) bool { return true }), ErrStaleHeight)
}

func TestQueryFailureResetsAndReissues(t *testing.T) {
	f := newFixture(t, 3, 6)

	cells := []crypto.Hash{crypto.Blake3([]byte("c1"))}
	proof, output, ok := f.hail.ProductionSlot()
	require.True(t, ok)
	b := f.hail.GenerateBlock(cells, proof, output)
	_, err := f.hail.OnReceiveBlock(b)
	require.NoError(t, err)

	_, err = f.hail.RecordQuerySuccess(b.Hash())
	require.NoError(t, err)
	conf, err := f.hail.conflicts.Confidence(1, b.Hash())
	require.NoError(t, err)
	require.Equal(t, 1, conf)

	reissue, err := f.hail.RecordQueryFailure(b.Hash())
	require.NoError(t, err)
	require.Equal(t, cells, reissue)

	conf, err = f.hail.conflicts.Confidence(1, b.Hash())
	require.NoError(t, err)
	require.Equal(t, 0, conf)

	// the block is queried again
	next, ok := f.hail.NextUnqueried()
	require.True(t, ok)
	require.Equal(t, b.Hash(), next.Hash())
}
