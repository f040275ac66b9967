package sleet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/common"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sampling"
)

type fixture struct {
	sleet   *Sleet
	key     *keys.KeyPair
	genesis *cell.Cell
}

func newFixture(t *testing.T, beta1, beta2 int) *fixture {
	t.Helper()
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	genesis := cell.New(nil, []cell.Output{
		{Capacity: 1000, Type: cell.Coinbase, Lock: crypto.Blake3(key.Public)},
		{Capacity: 1000, Type: cell.Coinbase, Lock: crypto.Blake3(key.Public)},
	})

	params := sampling.Params{K: 2, Alpha: 0.5, Beta1: beta1, Beta2: beta2}
	s := NewSleet(params, peers.NewID([]byte("self")), common.NewTestEntry(t, "sleet"))
	s.Bootstrap([]*cell.Cell{genesis})

	return &fixture{sleet: s, key: key, genesis: genesis}
}

// spend builds a transfer cell consuming output `index` of the genesis cell.
func (f *fixture) spend(index uint8, amount cell.Capacity, lock [32]byte) *cell.Cell {
	in := cell.NewInput(f.key, f.genesis.Hash(), index)
	return cell.New([]cell.Input{in}, []cell.Output{
		{Capacity: amount, Type: cell.Transfer, Lock: lock},
	})
}

func TestSingleCellHappyPath(t *testing.T) {
	f := newFixture(t, 2, 4)

	c := f.spend(0, 100, crypto.Blake3([]byte("n1")))
	tx, err := f.sleet.GenerateTx(c)
	require.NoError(t, err)
	require.NotNil(t, tx)

	next, ok := f.sleet.NextUnqueried()
	require.True(t, ok)
	require.Equal(t, tx.Hash(), next.Hash())

	// beta1 consecutive successful queries accept a conflict-free cell
	accepted, err := f.sleet.RecordQuerySuccess(tx.Hash())
	require.NoError(t, err)
	require.Empty(t, accepted)

	accepted, err = f.sleet.RecordQuerySuccess(tx.Hash())
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	require.Equal(t, c.Hash(), accepted[0].Hash())
	require.True(t, f.sleet.IsAccepted(tx.Hash()))
}

func TestAcceptedNeverReverts(t *testing.T) {
	f := newFixture(t, 2, 4)

	c := f.spend(0, 100, crypto.Blake3([]byte("n1")))
	tx, err := f.sleet.GenerateTx(c)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.sleet.RecordQuerySuccess(tx.Hash())
		require.NoError(t, err)
	}
	require.True(t, f.sleet.IsAccepted(tx.Hash()))

	// a late failed query cannot un-accept
	require.NoError(t, f.sleet.RecordQueryFailure(tx.Hash()))
	require.True(t, f.sleet.IsAccepted(tx.Hash()))
}

func TestDoubleSpend(t *testing.T) {
	f := newFixture(t, 2, 4)

	t1 := f.spend(0, 100, crypto.Blake3([]byte("n1")))
	t2 := f.spend(0, 100, crypto.Blake3([]byte("n2")))
	require.NotEqual(t, t1.Hash(), t2.Hash())

	_, err := f.sleet.OnReceiveTx(NewTx(t1, nil))
	require.NoError(t, err)
	_, err = f.sleet.OnReceiveTx(NewTx(t2, nil))
	require.NoError(t, err)

	// exactly one of the two is strongly preferred: the lowest hash
	p1 := f.sleet.IsStronglyPreferred(t1.Hash())
	p2 := f.sleet.IsStronglyPreferred(t2.Hash())
	require.NotEqual(t, p1, p2)

	winner, loser := t1, t2
	if p2 {
		winner, loser = t2, t1
	}

	// conflicted: beta1 is not enough, beta2 is required
	for i := 0; i < 3; i++ {
		accepted, err := f.sleet.RecordQuerySuccess(winner.Hash())
		require.NoError(t, err)
		require.Empty(t, accepted)
	}
	accepted, err := f.sleet.RecordQuerySuccess(winner.Hash())
	require.NoError(t, err)
	require.Len(t, accepted, 1)

	require.True(t, f.sleet.IsAccepted(winner.Hash()))
	st, ok := f.sleet.Status(loser.Hash())
	require.True(t, ok)
	require.Equal(t, StatusRejected, st)

	// the loser's confidence can never recover
	require.Equal(t, 0, f.sleet.Confidence(loser.Hash()))
}

func TestNoTwoAcceptedCellsShareAnInput(t *testing.T) {
	f := newFixture(t, 1, 2)

	t1 := f.spend(0, 100, crypto.Blake3([]byte("n1")))
	t2 := f.spend(0, 100, crypto.Blake3([]byte("n2")))

	_, err := f.sleet.OnReceiveTx(NewTx(t1, nil))
	require.NoError(t, err)
	_, err = f.sleet.OnReceiveTx(NewTx(t2, nil))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.sleet.RecordQuerySuccess(t1.Hash())
		require.NoError(t, err)
	}

	require.True(t, f.sleet.IsAccepted(t1.Hash()))
	require.False(t, f.sleet.IsAccepted(t2.Hash()))
}

func TestReissueRecovery(t *testing.T) {
	f := newFixture(t, 2, 4)

	c := f.spend(0, 100, crypto.Blake3([]byte("n1")))
	tx, err := f.sleet.GenerateTx(c)
	require.NoError(t, err)
	_, ok := f.sleet.NextUnqueried()
	require.True(t, ok)

	// one success, then a failed quorum resets the streak
	_, err = f.sleet.RecordQuerySuccess(tx.Hash())
	require.NoError(t, err)
	require.Equal(t, 1, f.sleet.Confidence(tx.Hash()))

	require.NoError(t, f.sleet.RecordQueryFailure(tx.Hash()))
	require.Equal(t, 0, f.sleet.Confidence(tx.Hash()))

	// the transaction is reissued
	next, ok := f.sleet.NextUnqueried()
	require.True(t, ok)
	require.Equal(t, tx.Hash(), next.Hash())

	// subsequent successes restore progress
	for i := 0; i < 2; i++ {
		_, err = f.sleet.RecordQuerySuccess(tx.Hash())
		require.NoError(t, err)
	}
	require.True(t, f.sleet.IsAccepted(tx.Hash()))
}

func TestRedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t, 2, 4)

	c := f.spend(0, 100, crypto.Blake3([]byte("n1")))
	tx := NewTx(c, nil)

	fresh, err := f.sleet.OnReceiveTx(tx)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = f.sleet.OnReceiveTx(tx)
	require.NoError(t, err)
	require.False(t, fresh)

	require.Equal(t, 1, len(f.sleet.unqueried))
}

func TestRejectsBadCells(t *testing.T) {
	f := newFixture(t, 2, 4)

	// unknown input
	other, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	unknown := cell.New(
		[]cell.Input{cell.NewInput(other, crypto.Blake3([]byte("nowhere")), 0)},
		[]cell.Output{{Capacity: 1, Type: cell.Transfer}},
	)
	_, err = f.sleet.OnReceiveTx(NewTx(unknown, nil))
	require.Error(t, err)

	// wrong owner
	stolen := cell.New(
		[]cell.Input{cell.NewInput(other, f.genesis.Hash(), 0)},
		[]cell.Output{{Capacity: 1, Type: cell.Transfer, Lock: crypto.Blake3(other.Public)}},
	)
	_, err = f.sleet.OnReceiveTx(NewTx(stolen, nil))
	require.ErrorIs(t, err, ErrBadUnlock)

	// over-spend
	greedy := f.spend(0, 5000, crypto.Blake3([]byte("n1")))
	_, err = f.sleet.OnReceiveTx(NewTx(greedy, nil))
	require.ErrorIs(t, err, ErrCapacityExceeded)

	// coinbase
	mint := cell.New(nil, []cell.Output{{Capacity: 1, Type: cell.Coinbase}})
	_, err = f.sleet.OnReceiveTx(NewTx(mint, nil))
	require.ErrorIs(t, err, ErrCoinbaseCell)
}

func TestHandleQuery(t *testing.T) {
	f := newFixture(t, 2, 4)

	c := f.spend(0, 100, crypto.Blake3([]byte("n1")))
	tx := NewTx(c, nil)
	_, err := f.sleet.OnReceiveTx(tx)
	require.NoError(t, err)

	require.True(t, f.sleet.HandleQuery(tx.Hash()))

	// a conflicting arrival with a lower hash can steal the preference
	c2 := f.spend(0, 100, crypto.Blake3([]byte("n2")))
	_, err = f.sleet.OnReceiveTx(NewTx(c2, nil))
	require.NoError(t, err)

	require.NotEqual(t, f.sleet.HandleQuery(c.Hash()), f.sleet.HandleQuery(c2.Hash()))
}

func TestChildSpendingParentOutput(t *testing.T) {
	f := newFixture(t, 2, 4)

	c1 := f.spend(0, 100, crypto.Blake3(f.key.Public))
	tx1, err := f.sleet.GenerateTx(c1)
	require.NoError(t, err)

	// spend the output produced by c1
	c2 := cell.New(
		[]cell.Input{cell.NewInput(f.key, c1.Hash(), 0)},
		[]cell.Output{{Capacity: 50, Type: cell.Transfer, Lock: crypto.Blake3([]byte("n2"))}},
	)
	tx2, err := f.sleet.GenerateTx(c2)
	require.NoError(t, err)
	require.Contains(t, tx2.Parents, tx1.Hash())

	// accepting the child requires the parent accepted first
	_, err = f.sleet.RecordQuerySuccess(tx2.Hash())
	require.NoError(t, err)
	accepted, err := f.sleet.RecordQuerySuccess(tx2.Hash())
	require.NoError(t, err)

	// both the parent and the child become final, parent first
	require.Len(t, accepted, 2)
	require.Equal(t, c1.Hash(), accepted[0].Hash())
	require.Equal(t, c2.Hash(), accepted[1].Hash())
}
