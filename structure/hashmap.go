package structure

import "fmt"

// HashMap is an unordered map over Go's builtin map. It deliberately
// implements only the point-access capabilities (search, insert, delete,
// update); min, max, and range trials skip it.
type HashMap struct {
	m map[int64]int64
}

// NewHashMap builds a HashMap from aligned key/value sequences.
func NewHashMap(keys, values []int64) (Structure, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("keys/values length mismatch: %d vs %d",
			len(keys), len(values))
	}

	m := make(map[int64]int64, len(keys))
	for i, k := range keys {
		m[k] = values[i]
	}

	return &HashMap{m: m}, nil
}

// Search reports the value stored under key.
func (h *HashMap) Search(key int64) (int64, bool) {
	v, ok := h.m[key]

	return v, ok
}

// Insert stores value under key, replacing any existing entry.
func (h *HashMap) Insert(key, value int64) {
	h.m[key] = value
}

// Delete removes key, reporting whether it was present.
func (h *HashMap) Delete(key int64) bool {
	_, ok := h.m[key]
	delete(h.m, key)

	return ok
}

// Update replaces the value of an existing key. It never creates an entry.
func (h *HashMap) Update(key, value int64) bool {
	if _, ok := h.m[key]; !ok {
		return false
	}
	h.m[key] = value

	return true
}
