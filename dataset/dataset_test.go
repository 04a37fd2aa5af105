package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubSeedDeterministic(t *testing.T) {
	a := SubSeed(1121, 100000, 3)
	b := SubSeed(1121, 100000, 3)
	assert.Equal(t, a, b)
}

func TestSubSeedDistinguishesCoordinates(t *testing.T) {
	base := SubSeed(42, 1000, 1)

	assert.NotEqual(t, base, SubSeed(43, 1000, 1), "base seed must perturb")
	assert.NotEqual(t, base, SubSeed(42, 1001, 1), "size must perturb")
	assert.NotEqual(t, base, SubSeed(42, 1000, 2), "run index must perturb")
}

func TestGenerateDeterministic(t *testing.T) {
	p := Params{Size: 500, SearchVolume: 100, MissRatio: 0.3}
	seed := SubSeed(42, p.Size, 1)

	d1, err := Generate(seed, p)
	require.NoError(t, err)

	d2, err := Generate(seed, p)
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "same seed must reproduce the dataset byte for byte")
}

func TestGenerateSeedSensitive(t *testing.T) {
	p := Params{Size: 500, SearchVolume: 100, MissRatio: 0.3}

	d1, err := Generate(1, p)
	require.NoError(t, err)

	d2, err := Generate(2, p)
	require.NoError(t, err)

	assert.NotEqual(t, d1.Keys, d2.Keys)
}

func TestGenerateKeyUniqueness(t *testing.T) {
	for _, size := range []int{1, 10, 1000, 10000} {
		d, err := Generate(7, Params{Size: size, SearchVolume: 10, MissRatio: 0.5})
		require.NoError(t, err)
		require.Len(t, d.Keys, size)

		seen := make(map[int64]struct{}, size)
		for _, k := range d.Keys {
			seen[k] = struct{}{}
		}

		assert.Len(t, seen, size, "size %d: keys must be distinct", size)
	}
}

func TestGenerateHitMissExactness(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		volume     int
		missRatio  float64
		wantMisses int
	}{
		{"thirty percent", 1000, 100, 0.3, 30},
		{"all hits", 1000, 100, 0.0, 0},
		{"all misses", 1000, 100, 1.0, 100},
		{"rounds half up", 1000, 5, 0.5, 3},
		{"volume exceeds size", 100, 500, 0.2, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Generate(99, Params{
				Size:         tt.size,
				SearchVolume: tt.volume,
				MissRatio:    tt.missRatio,
			})
			require.NoError(t, err)
			require.Len(t, d.SearchKeys, tt.volume)

			present := make(map[int64]struct{}, tt.size)
			for _, k := range d.Keys {
				present[k] = struct{}{}
			}

			misses := 0
			for _, q := range d.SearchKeys {
				if _, ok := present[q]; !ok {
					misses++
				}
			}

			assert.Equal(t, tt.wantMisses, misses)
			assert.Equal(t, tt.wantMisses, d.SearchMisses)
		})
	}
}

func TestGenerateDisjointTargetRanges(t *testing.T) {
	d, err := Generate(5, Params{Size: 200, SearchVolume: 50, MissRatio: 0.5})
	require.NoError(t, err)

	present := make(map[int64]struct{}, d.Size)
	for _, k := range d.Keys {
		present[k] = struct{}{}
	}

	// Insert keys must be absent from the key universe and from the
	// search-miss range, so inserting cannot turn a miss into a hit.
	for _, k := range d.InsertKeys {
		_, ok := present[k]
		assert.False(t, ok, "insert key %d collides with key universe", k)
		assert.GreaterOrEqual(t, k, int64(2*d.Size))
	}

	// Delete and update targets come from the key universe.
	for _, k := range d.DeleteKeys {
		_, ok := present[k]
		assert.True(t, ok, "delete key %d not in key universe", k)
	}
	for _, k := range d.UpdateKeys {
		_, ok := present[k]
		assert.True(t, ok, "update key %d not in key universe", k)
	}
}

func TestGenerateRangeBoundsSorted(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		d, err := Generate(seed, Params{Size: 50, SearchVolume: 10, MissRatio: 0.5})
		require.NoError(t, err)

		assert.LessOrEqual(t, d.RangeLow, d.RangeHigh)
	}
}

func TestGenerateMinMaxReference(t *testing.T) {
	d, err := Generate(11, Params{Size: 300, SearchVolume: 10, MissRatio: 0.1})
	require.NoError(t, err)

	// Keys are a permutation of [0, Size).
	assert.Equal(t, int64(0), d.MinKey)
	assert.Equal(t, int64(299), d.MaxKey)
}

func TestGenerateTargetVolumes(t *testing.T) {
	d, err := Generate(3, Params{Size: 400, SearchVolume: 10, MissRatio: 0.1})
	require.NoError(t, err)

	assert.Len(t, d.InsertKeys, 100)
	assert.Len(t, d.InsertValues, 100)
	assert.Len(t, d.DeleteKeys, 100)
	assert.Len(t, d.UpdateKeys, 100)
	assert.Len(t, d.UpdateValues, 100)

	// Tiny datasets still get one target of each kind.
	d, err = Generate(3, Params{Size: 2, SearchVolume: 1, MissRatio: 0})
	require.NoError(t, err)
	assert.Len(t, d.InsertKeys, 1)
	assert.Len(t, d.DeleteKeys, 1)
}

func TestGenerateRejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name string
		p    Params
	}{
		{"zero size", Params{Size: 0, SearchVolume: 1, MissRatio: 0.5}},
		{"negative size", Params{Size: -5, SearchVolume: 1, MissRatio: 0.5}},
		{"negative volume", Params{Size: 10, SearchVolume: -1, MissRatio: 0.5}},
		{"ratio below zero", Params{Size: 10, SearchVolume: 1, MissRatio: -0.1}},
		{"ratio above one", Params{Size: 10, SearchVolume: 1, MissRatio: 1.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(1, tt.p)
			assert.Error(t, err)
		})
	}
}
