package hail

import (
	"encoding/binary"
	"math"

	"github.com/frostnetworks/frost/src/crypto/vrf"
)

// ExpectedProducers is the target number of eligible block producers per
// height, bounding concurrent conflicts to O(√N).
func ExpectedProducers(validators int) float64 {
	if validators <= 1 {
		return 1
	}
	return math.Ceil(math.Sqrt(float64(validators)))
}

// sortitionRatio maps a VRF output onto [0, 1).
func sortitionRatio(output [vrf.OutputLength]byte) float64 {
	return float64(binary.BigEndian.Uint64(output[:8])) / float64(math.MaxUint64)
}

// Eligible reports whether a VRF output wins the sortition for a validator
// with the given stake weight, in a set of the given size. The threshold is
// proportional to stake, scaled so the expected committee is
// ExpectedProducers.
func Eligible(output [vrf.OutputLength]byte, weight float64, validators int) bool {
	if weight <= 0 {
		return false
	}
	threshold := ExpectedProducers(validators) * weight
	if threshold > 1 {
		threshold = 1
	}
	return sortitionRatio(output) < threshold
}
