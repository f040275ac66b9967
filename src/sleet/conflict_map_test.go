package sleet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
)

func hashOf(s string) crypto.Hash {
	return crypto.Blake3([]byte(s))
}

func idOf(s string) cell.ID {
	return cell.NewID(hashOf(s), 0)
}

func TestMultiInputMembership(t *testing.T) {
	m := NewConflictMap()

	// tx spends two outputs; it participates in two conflict sets
	tx := hashOf("tx")
	m.Insert(tx, cell.IDs{idOf("a"), idOf("b")})

	sets, err := m.SetsOf(tx)
	require.NoError(t, err)
	require.Len(t, sets, 2)

	singleton, err := m.IsSingleton(tx)
	require.NoError(t, err)
	require.True(t, singleton)

	// a second spender of just one input contests only that set
	rival := hashOf("rival")
	m.Insert(rival, cell.IDs{idOf("b")})

	singleton, err = m.IsSingleton(tx)
	require.NoError(t, err)
	require.False(t, singleton)
}

func TestPreferenceFollowsConviction(t *testing.T) {
	m := NewConflictMap()
	a, b := hashOf("a"), hashOf("b")
	m.Insert(a, cell.IDs{idOf("x")})
	m.Insert(b, cell.IDs{idOf("x")})

	conviction := map[crypto.Hash]int{a: 1, b: 3}
	convOf := func(h crypto.Hash) int { return conviction[h] }

	require.NoError(t, m.Update(b, convOf, 20))

	pref, err := m.IsPreferred(b)
	require.NoError(t, err)
	require.True(t, pref)

	// a's conviction is lower, so updating a cannot steal the preference,
	// and counting restarts when the counted member changes
	require.NoError(t, m.Update(a, convOf, 20))
	pref, err = m.IsPreferred(b)
	require.NoError(t, err)
	require.True(t, pref)

	conf, err := m.Confidence(a)
	require.NoError(t, err)
	require.Equal(t, 0, conf) // not preferred
}

func TestConfidenceIsMinimumAcrossSets(t *testing.T) {
	m := NewConflictMap()
	tx := hashOf("tx")
	m.Insert(tx, cell.IDs{idOf("a"), idOf("b")})

	convOf := func(crypto.Hash) int { return 1 }
	require.NoError(t, m.Update(tx, convOf, 20))
	require.NoError(t, m.Update(tx, convOf, 20))

	conf, err := m.Confidence(tx)
	require.NoError(t, err)
	require.Equal(t, 2, conf)

	require.NoError(t, m.ResetCount(tx))
	conf, err = m.Confidence(tx)
	require.NoError(t, err)
	require.Equal(t, 0, conf)
}

func TestAcceptRejectsCompetitors(t *testing.T) {
	m := NewConflictMap()
	a, b, c := hashOf("a"), hashOf("b"), hashOf("c")
	m.Insert(a, cell.IDs{idOf("x"), idOf("y")})
	m.Insert(b, cell.IDs{idOf("x")})
	m.Insert(c, cell.IDs{idOf("y")})

	rejected, err := m.Accept(a)
	require.NoError(t, err)
	require.ElementsMatch(t, []crypto.Hash{b, c}, rejected)

	// the losers are gone from the map
	_, err = m.SetsOf(b)
	require.ErrorIs(t, err, ErrUnknownTx)

	singleton, err := m.IsSingleton(a)
	require.NoError(t, err)
	require.True(t, singleton)
}
