// Package dataset generates deterministic per-trial workloads for the
// benchmark sweep. Every sequence a trial consumes (keys, values, search
// queries, mutation targets, range bounds) is derived from a single
// sub-seed, so regenerating a dataset from the same (base seed, size, run)
// coordinates reproduces it byte for byte.
package dataset

import (
	"fmt"
	"math"
	mrand "math/rand"
)

// Params controls generation of one dataset.
type Params struct {
	// Size is the number of unique keys to generate.
	Size int
	// SearchVolume is the number of search queries to derive.
	SearchVolume int
	// MissRatio is the fraction of search queries guaranteed absent
	// from the key set, in [0, 1].
	MissRatio float64
}

func (p Params) validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", p.Size)
	}
	if p.SearchVolume < 0 {
		return fmt.Errorf("search volume must be non-negative, got %d", p.SearchVolume)
	}
	if p.MissRatio < 0 || p.MissRatio > 1 {
		return fmt.Errorf("miss ratio must be in [0,1], got %g", p.MissRatio)
	}

	return nil
}

// Dataset holds the full generated universe for one trial.
//
// Keys is a seeded permutation of the dense range [0, Size), which makes
// uniqueness a property of the construction rather than a rejection loop.
// Values are uniform draws from [0, Size), aligned with Keys.
//
// SearchKeys mixes hits (sampled from Keys) and misses (drawn from the
// disjoint range [Size, 2·Size), so absence is guaranteed) and is shuffled
// under the same seeded stream. InsertKeys come from a third disjoint range
// [2·Size, 3·Size) so that exercising insert never turns a planned miss
// into a hit. Delete and update targets are sampled from Keys.
type Dataset struct {
	Size int
	Seed int64

	Keys   []int64
	Values []int64

	SearchKeys []int64
	// SearchMisses is the exact number of entries in SearchKeys that are
	// absent from Keys: round(SearchVolume × MissRatio).
	SearchMisses int

	InsertKeys   []int64
	InsertValues []int64
	DeleteKeys   []int64
	UpdateKeys   []int64
	UpdateValues []int64

	// RangeLow and RangeHigh are two independent draws from Keys,
	// returned as a sorted pair.
	RangeLow  int64
	RangeHigh int64

	// MinKey and MaxKey are reference answers for the min/max operations.
	MinKey int64
	MaxKey int64
}

// Generate produces the Dataset for the given sub-seed and parameters.
// Two calls with identical arguments yield identical datasets.
func Generate(seed int64, p Params) (*Dataset, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset params: %w", err)
	}

	rng := mrand.New(mrand.NewSource(seed))

	d := &Dataset{
		Size: p.Size,
		Seed: seed,
	}

	// Key universe: a permutation of [0, Size).
	d.Keys = make([]int64, p.Size)
	for i, k := range rng.Perm(p.Size) {
		d.Keys[i] = int64(k)
	}

	d.Values = make([]int64, p.Size)
	for i := range d.Values {
		d.Values[i] = rng.Int63n(int64(p.Size))
	}

	d.generateSearchKeys(rng, p)

	// Mutation targets: a quarter of the dataset size, at least one.
	targets := p.Size / 4
	if targets == 0 {
		targets = 1
	}

	// Inserts use the range [2·Size, 3·Size), disjoint from both the key
	// universe and the search-miss range.
	d.InsertKeys = make([]int64, targets)
	d.InsertValues = make([]int64, targets)
	for i := range d.InsertKeys {
		d.InsertKeys[i] = int64(2*p.Size) + rng.Int63n(int64(p.Size))
		d.InsertValues[i] = rng.Int63n(int64(p.Size))
	}

	d.DeleteKeys = sampleKeys(rng, d.Keys, targets)
	d.UpdateKeys = sampleKeys(rng, d.Keys, targets)

	d.UpdateValues = make([]int64, targets)
	for i := range d.UpdateValues {
		d.UpdateValues[i] = rng.Int63n(int64(p.Size))
	}

	lo := d.Keys[rng.Intn(p.Size)]
	hi := d.Keys[rng.Intn(p.Size)]
	if lo > hi {
		lo, hi = hi, lo
	}

	d.RangeLow, d.RangeHigh = lo, hi
	d.MinKey, d.MaxKey = minMax(d.Keys)

	return d, nil
}

// generateSearchKeys derives the hit/miss query mix. The miss count is
// exact: round(volume × ratio) queries come from [Size, 2·Size). Hits are
// sampled from Keys without replacement while the requested count fits,
// and with replacement beyond that, so an oversized volume produces
// duplicate hits rather than a diluted miss ratio.
func (d *Dataset) generateSearchKeys(rng *mrand.Rand, p Params) {
	misses := int(math.Round(float64(p.SearchVolume) * p.MissRatio))
	hits := p.SearchVolume - misses

	queries := make([]int64, 0, p.SearchVolume)

	if hits <= p.Size {
		queries = append(queries, sampleKeys(rng, d.Keys, hits)...)
	} else {
		queries = append(queries, sampleKeys(rng, d.Keys, p.Size)...)
		for i := p.Size; i < hits; i++ {
			queries = append(queries, d.Keys[rng.Intn(p.Size)])
		}
	}

	if misses <= p.Size {
		for _, idx := range rng.Perm(p.Size)[:misses] {
			queries = append(queries, int64(p.Size+idx))
		}
	} else {
		for i := 0; i < misses; i++ {
			queries = append(queries, int64(p.Size) + rng.Int63n(int64(p.Size)))
		}
	}

	rng.Shuffle(len(queries), func(i, j int) {
		queries[i], queries[j] = queries[j], queries[i]
	})

	d.SearchKeys = queries
	d.SearchMisses = misses
}

// sampleKeys draws n keys without replacement, via a permutation of the
// index space. n must not exceed len(keys).
func sampleKeys(rng *mrand.Rand, keys []int64, n int) []int64 {
	out := make([]int64, n)
	for i, idx := range rng.Perm(len(keys))[:n] {
		out[i] = keys[idx]
	}

	return out
}

func minMax(keys []int64) (lo, hi int64) {
	lo, hi = keys[0], keys[0]
	for _, k := range keys[1:] {
		if k < lo {
			lo = k
		}
		if k > hi {
			hi = k
		}
	}

	return lo, hi
}
