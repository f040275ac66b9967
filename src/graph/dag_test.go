package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// a diamond: d -> b -> a, d -> c -> a
func diamond(t *testing.T) *DAG[string] {
	t.Helper()
	d := New[string]()
	require.NoError(t, d.Insert("a", nil))
	require.NoError(t, d.Insert("b", []string{"a"}))
	require.NoError(t, d.Insert("c", []string{"a"}))
	require.NoError(t, d.Insert("d", []string{"b", "c"}))
	return d
}

func TestInsert(t *testing.T) {
	d := diamond(t)
	require.Equal(t, 4, d.Len())
	require.ErrorIs(t, d.Insert("a", nil), ErrVertexExists)
	require.ErrorIs(t, d.Insert("e", []string{"zz"}), ErrMissingParent)
}

func TestChitNeverReverts(t *testing.T) {
	d := diamond(t)

	c, err := d.Chit("a")
	require.NoError(t, err)
	require.False(t, c)

	require.NoError(t, d.SetChit("a"))
	require.NoError(t, d.SetChit("a")) // idempotent

	c, err = d.Chit("a")
	require.NoError(t, err)
	require.True(t, c)

	_, err = d.Chit("zz")
	require.ErrorIs(t, err, ErrUndefinedVertex)
}

func TestConviction(t *testing.T) {
	d := diamond(t)
	require.NoError(t, d.SetChit("b"))
	require.NoError(t, d.SetChit("d"))

	// conviction of a vertex sums chits over its progeny, itself included
	for vx, want := range map[string]int{"a": 2, "b": 2, "c": 1, "d": 1} {
		got, err := d.Conviction(vx)
		require.NoError(t, err)
		require.Equal(t, want, got, "conviction(%s)", vx)
	}
}

func TestAncestry(t *testing.T) {
	d := diamond(t)
	anc, err := d.AncestrySlice("d")
	require.NoError(t, err)
	require.Equal(t, "d", anc[0])
	require.Len(t, anc, 4) // d, b, c, a with no duplicates

	seen := map[string]bool{}
	for _, v := range anc {
		require.False(t, seen[v])
		seen[v] = true
	}
}

func TestLeavesAndRemove(t *testing.T) {
	d := diamond(t)
	require.Equal(t, []string{"d"}, d.Leaves())

	children, err := d.Remove("b")
	require.NoError(t, err)
	require.Equal(t, []string{"d"}, children)

	anc, err := d.AncestrySlice("d")
	require.NoError(t, err)
	require.Len(t, anc, 3) // d, c, a

	_, err = d.Remove("zz")
	require.ErrorIs(t, err, ErrUndefinedVertex)
}

func TestMissing(t *testing.T) {
	d := diamond(t)
	require.Empty(t, d.Missing([]string{"a", "b"}))
	require.Equal(t, []string{"x"}, d.Missing([]string{"a", "x"}))
}
