package cell

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
)

func genesisHash() crypto.Hash {
	return crypto.Blake3([]byte("genesis"))
}

func transferCell(t *testing.T, key *keys.KeyPair, spent crypto.Hash, index uint8, amount Capacity) *Cell {
	t.Helper()
	in := NewInput(key, spent, index)
	out := Output{
		Capacity: amount,
		Type:     Transfer,
		Lock:     crypto.Blake3(key.Public),
	}
	return New([]Input{in}, []Output{out})
}

func TestCellRoundTrip(t *testing.T) {
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	c := transferCell(t, key, genesisHash(), 0, 100)

	enc, err := c.Marshal()
	require.NoError(t, err)

	dec, err := UnmarshalCell(enc)
	require.NoError(t, err)

	enc2, err := dec.Marshal()
	require.NoError(t, err)

	if !bytes.Equal(enc, enc2) {
		t.Fatal("canonical encoding does not round-trip")
	}
	require.Equal(t, c.Hash(), dec.Hash())
}

func TestCellContentAddressing(t *testing.T) {
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	c1 := transferCell(t, key, genesisHash(), 0, 100)
	c2 := transferCell(t, key, genesisHash(), 0, 100)
	c3 := transferCell(t, key, genesisHash(), 0, 101)

	require.Equal(t, c1.Hash(), c2.Hash())
	require.NotEqual(t, c1.Hash(), c3.Hash())
}

func TestCellVerify(t *testing.T) {
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	c := transferCell(t, key, genesisHash(), 0, 100)
	require.NoError(t, c.Verify())

	// tampering with the input invalidates the unlock signature
	bad := transferCell(t, key, genesisHash(), 0, 100)
	bad.Inputs[0].Index = 1
	require.Error(t, bad.Verify())
}

func TestCellDuplicateInput(t *testing.T) {
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	in := NewInput(key, genesisHash(), 0)
	out := Output{Capacity: 10, Type: Transfer, Lock: crypto.Blake3(key.Public)}
	c := New([]Input{in, in}, []Output{out})
	require.ErrorIs(t, c.Verify(), ErrDuplicateInput)
}

func TestCellZeroCapacityOutput(t *testing.T) {
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	// capacity is non-negative by construction; zero is legal
	in := NewInput(key, genesisHash(), 0)
	c := New([]Input{in}, []Output{{Capacity: 0, Type: Transfer}})
	require.NoError(t, c.Verify())
}

func TestValidatorHook(t *testing.T) {
	called := false
	RegisterValidator(Stake, func(o *Output) error {
		called = true
		return nil
	})
	defer RegisterValidator(Stake, nil)

	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	in := NewInput(key, genesisHash(), 0)
	c := New([]Input{in}, []Output{{Capacity: 5, Type: Stake, Data: []byte{1}}})
	require.NoError(t, c.Verify())
	require.True(t, called)
}

func TestCellIDSets(t *testing.T) {
	key, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	c := transferCell(t, key, genesisHash(), 0, 100)
	produced := c.ProducedIDs()
	consumed := c.ConsumedIDs()

	require.Len(t, produced, 1)
	require.Len(t, consumed, 1)
	require.False(t, produced.Intersects(consumed))
	require.True(t, consumed.Contains(NewID(genesisHash(), 0)))
}
