// Package sampling provides the uniform and stake-weighted
// without-replacement sampling primitive shared by the ice, sleet and hail
// engines, along with the consensus parameters that govern a query.
package sampling

import (
	"math/rand"
)

// Default consensus parameters.
const (
	// DefaultK is the number of distinct peers sampled per query
	DefaultK = 8
	// DefaultAlpha is the fraction of sampled weight that must answer yes
	// for a query to succeed
	DefaultAlpha = 0.5
	// DefaultBeta1 is the early-commitment streak
	DefaultBeta1 = 11
	// DefaultBeta2 is the safety streak
	DefaultBeta2 = 20
)

// Params are the consensus parameters of a sampling engine.
type Params struct {
	// K is the sample size.
	K int `mapstructure:"k"`
	// Alpha is the quorum threshold, as a fraction of the sampled weight.
	Alpha float64 `mapstructure:"alpha"`
	// Beta1 is the early-commitment streak.
	Beta1 int `mapstructure:"beta1"`
	// Beta2 is the safety streak.
	Beta2 int `mapstructure:"beta2"`
}

// DefaultParams returns the default consensus parameters.
func DefaultParams() Params {
	return Params{
		K:     DefaultK,
		Alpha: DefaultAlpha,
		Beta1: DefaultBeta1,
		Beta2: DefaultBeta2,
	}
}

// Uniform samples up to k distinct items uniformly without replacement.
func Uniform[T any](rng *rand.Rand, items []T, k int) []T {
	if k > len(items) {
		k = len(items)
	}
	idx := rng.Perm(len(items))[:k]
	out := make([]T, 0, k)
	for _, i := range idx {
		out = append(out, items[i])
	}
	return out
}

// Weighted samples up to k distinct items without replacement, each draw
// proportional to weight. Items with non-positive weight are never drawn.
func Weighted[T any](rng *rand.Rand, items []T, weight func(T) float64, k int) []T {
	pool := make([]T, 0, len(items))
	weights := make([]float64, 0, len(items))
	total := 0.0
	for _, item := range items {
		w := weight(item)
		if w <= 0 {
			continue
		}
		pool = append(pool, item)
		weights = append(weights, w)
		total += w
	}
	if k > len(pool) {
		k = len(pool)
	}
	out := make([]T, 0, k)
	for len(out) < k {
		r := rng.Float64() * total
		picked := len(pool) - 1
		for i, w := range weights {
			if r < w {
				picked = i
				break
			}
			r -= w
		}
		out = append(out, pool[picked])
		total -= weights[picked]
		pool[picked] = pool[len(pool)-1]
		weights[picked] = weights[len(weights)-1]
		pool = pool[:len(pool)-1]
		weights = weights[:len(weights)-1]
	}
	return out
}

// Quorum reports whether the yes-weight among the sampled weight meets the
// alpha threshold.
func Quorum(yes, sampled, alpha float64) bool {
	return sampled > 0 && yes/sampled >= alpha
}
