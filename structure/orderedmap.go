package structure

import (
	"fmt"

	"github.com/google/btree"
)

const btreeDegree = 32

type entry struct {
	key   int64
	value int64
}

// OrderedMap is a B-tree backed ordered map implementing the full
// capability set. It serves as the reference structure for tests and as a
// registered default in the CLI.
type OrderedMap struct {
	tree *btree.BTreeG[entry]
}

// NewOrderedMap builds an OrderedMap from aligned key/value sequences.
func NewOrderedMap(keys, values []int64) (Structure, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("keys/values length mismatch: %d vs %d",
			len(keys), len(values))
	}

	m := &OrderedMap{
		tree: btree.NewG(btreeDegree, func(a, b entry) bool {
			return a.key < b.key
		}),
	}

	for i, k := range keys {
		m.tree.ReplaceOrInsert(entry{key: k, value: values[i]})
	}

	return m, nil
}

// Search reports the value stored under key.
func (m *OrderedMap) Search(key int64) (int64, bool) {
	e, ok := m.tree.Get(entry{key: key})
	if !ok {
		return 0, false
	}

	return e.value, true
}

// Insert stores value under key, replacing any existing entry.
func (m *OrderedMap) Insert(key, value int64) {
	m.tree.ReplaceOrInsert(entry{key: key, value: value})
}

// Delete removes key, reporting whether it was present.
func (m *OrderedMap) Delete(key int64) bool {
	_, ok := m.tree.Delete(entry{key: key})

	return ok
}

// Update replaces the value of an existing key. It never creates an entry.
func (m *OrderedMap) Update(key, value int64) bool {
	if !m.tree.Has(entry{key: key}) {
		return false
	}

	m.tree.ReplaceOrInsert(entry{key: key, value: value})

	return true
}

// MinKey reports the smallest key.
func (m *OrderedMap) MinKey() (int64, bool) {
	e, ok := m.tree.Min()

	return e.key, ok
}

// MaxKey reports the largest key.
func (m *OrderedMap) MaxKey() (int64, bool) {
	e, ok := m.tree.Max()

	return e.key, ok
}

// Range returns the values of all keys in [low, high], ascending.
func (m *OrderedMap) Range(low, high int64) []int64 {
	var out []int64

	m.tree.AscendGreaterOrEqual(entry{key: low}, func(e entry) bool {
		if e.key > high {
			return false
		}
		out = append(out, e.value)

		return true
	})

	return out
}
