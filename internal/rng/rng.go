// Package rng provides the deterministic random streams used by fill,
// latency, and queue-position models. Every stream is derived from the
// run's master seed by a pure function, so parallel sweeps that derive
// child seeds the same way are reproducible.
package rng

import (
	"math/rand/v2"
)

// Child derives a child seed from a master seed and a label. The
// derivation is FNV-1a over the label folded into the master via
// splitmix64; it depends only on its inputs.
func Child(master uint64, label string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(label); i++ {
		h ^= uint64(label[i])
		h *= prime64
	}
	return splitmix64(master ^ h)
}

// New returns a PCG stream seeded from the given value.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, splitmix64(seed)))
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
