package utils

import (
	"math"
	"math/rand"
	"sort"
)

// Reservoir picks up to k items from a stream with Algorithm R. The same
// stream and seed always yield the same sample.
func Reservoir(items []string, k int, seed int64) []string {
	if k <= 0 {
		return []string{}
	}
	out := make([]string, 0, k)
	r := rand.New(rand.NewSource(seed))
	for i, it := range items {
		if i < k {
			out = append(out, it)
			continue
		}
		if j := r.Intn(i + 1); j < k {
			out[j] = it
		}
	}
	return out
}

// SortedKeys returns the keys of a set in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NearestRank returns the p-th percentile (0 < p <= 100) of sorted values
// using the nearest-rank method. Empty input yields 0.
func NearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Interpolated returns the p-th percentile of sorted values with linear
// interpolation between closest ranks.
func Interpolated(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
