package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/peers"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "frost-store")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	badgerStore, err := NewBadgerStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { badgerStore.Close() })

	return map[string]Store{
		"inmem":  NewInmemStore(),
		"badger": badgerStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	c := cell.New(nil, []cell.Output{
		{Capacity: 10, Type: cell.Coinbase, Lock: crypto.Blake3(key.Public)},
	})
	b := &alpha.Block{
		Height:   3,
		Parent:   crypto.Blake3([]byte("parent")),
		Cells:    []crypto.Hash{c.Hash()},
		Producer: peers.NewID(key.Public),
	}
	b.Sign(key)
	vs := alpha.NewValidatorSet(2, []*alpha.Validator{{
		ID:     peers.NewID(key.Public),
		PubKey: key.Public,
		Stake:  100,
	}}, 50)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			// cells
			_, err := store.GetCell(c.Hash())
			require.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, store.SetCell(c))
			got, err := store.GetCell(c.Hash())
			require.NoError(t, err)
			require.Equal(t, c.Hash(), got.Hash())

			// blocks
			require.NoError(t, store.SetBlock(b))
			gotB, err := store.GetBlock(b.Hash())
			require.NoError(t, err)
			require.Equal(t, b.Hash(), gotB.Hash())

			byHeight, err := store.GetBlockByHeight(3)
			require.NoError(t, err)
			require.Equal(t, b.Hash(), byHeight.Hash())

			last, err := store.LastAcceptedBlock()
			require.NoError(t, err)
			require.Equal(t, b.Hash(), last.Hash())

			// frontier
			frontier := []crypto.Hash{c.Hash()}
			require.NoError(t, store.SetFrontier(frontier))
			gotF, err := store.Frontier()
			require.NoError(t, err)
			require.Equal(t, frontier, gotF)

			// validator snapshot
			require.NoError(t, store.SetValidatorSet(vs))
			gotV, err := store.ValidatorSet()
			require.NoError(t, err)
			require.Equal(t, vs.Epoch, gotV.Epoch)
			require.Equal(t, vs.TotalStake, gotV.TotalStake)
			require.Equal(t, 1, gotV.Len())
		})
	}
}
