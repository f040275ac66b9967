// Package hail implements the per-height block consensus. VRF sortition
// bounds the set of eligible producers per height to roughly the square root
// of the validator count; competing blocks at a height form a conflict set
// whose initial preference is the lowest VRF output, and the same sampling,
// chit and streak machinery as sleet decides one block per height.
package hail
