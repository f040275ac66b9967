package sampling

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUniformNoReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	items := []int{1, 2, 3, 4, 5}

	for trial := 0; trial < 100; trial++ {
		sample := Uniform(rng, items, 3)
		require.Len(t, sample, 3)
		seen := map[int]bool{}
		for _, s := range sample {
			require.False(t, seen[s], "item sampled twice")
			seen[s] = true
		}
	}

	// k larger than the population returns the whole population
	require.Len(t, Uniform(rng, items, 10), 5)
}

func TestWeightedNoReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	items := []string{"a", "b", "c"}
	w := map[string]float64{"a": 10, "b": 1, "c": 0}

	for trial := 0; trial < 100; trial++ {
		sample := Weighted(rng, items, func(s string) float64 { return w[s] }, 2)
		require.Len(t, sample, 2)
		require.NotEqual(t, sample[0], sample[1])
		for _, s := range sample {
			require.NotEqual(t, "c", s, "zero-weight item sampled")
		}
	}
}

func TestWeightedBias(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	items := []string{"heavy", "light"}
	w := map[string]float64{"heavy": 9, "light": 1}

	heavyFirst := 0
	for trial := 0; trial < 1000; trial++ {
		sample := Weighted(rng, items, func(s string) float64 { return w[s] }, 1)
		if sample[0] == "heavy" {
			heavyFirst++
		}
	}
	require.Greater(t, heavyFirst, 800)
}

func TestQuorum(t *testing.T) {
	require.True(t, Quorum(0.6, 1.0, 0.5))
	require.True(t, Quorum(0.5, 1.0, 0.5))
	require.False(t, Quorum(0.4, 1.0, 0.5))
	require.False(t, Quorum(0, 0, 0.5))
}
