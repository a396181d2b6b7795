package core

import (
	"math/rand"
	"time"
)

// Range is a closed interval of durations drawn from uniformly.
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Draw returns a uniformly distributed duration in [Min, Max].
// A range with Max <= Min always yields Min.
func (r Range) Draw(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)+1))
}

// Valid reports whether the range is non-negative and ordered.
func (r Range) Valid() bool {
	return r.Min >= 0 && r.Max >= r.Min
}

// WeightedIndex draws an index from weights after normalizing them, so the
// weights need not sum to one. Non-positive weights are never drawn.
// It returns -1 when no weight is positive.
func WeightedIndex(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}

	target := rng.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		target -= w
		if target < 0 {
			return i
		}
	}
	// float rounding can leave target at ~0 after the final subtraction
	return last
}

// IntBetween returns a uniformly distributed int in [lo, hi].
func IntBetween(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// Pick returns a uniformly chosen element of items. items must not be empty.
func Pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.Intn(len(items))]
}
