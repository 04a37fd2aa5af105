// Package structure defines the pluggable data-structure contract and the
// adapter registry that binds logical operation names to calls on a
// concrete instance.
//
// The harness never depends on a concrete structure type. A structure is
// "whatever value exposes the capability interfaces below": each operation
// has its own single-method interface, any subset may be implemented, and
// a structure missing a capability simply does not participate in trials
// for that operation.
package structure

// Structure is a live instance of one pluggable data structure. Capability
// is discovered by asserting the per-operation interfaces against it.
type Structure any

// Constructor builds a structure from two aligned sequences of keys and
// values. Construction itself is a timed operation, so constructors must
// do all their work eagerly. A constructor that cannot allocate for the
// requested size returns an error.
type Constructor func(keys, values []int64) (Structure, error)

// Registration pairs a structure name with its constructor for the sweep.
type Registration struct {
	Name string
	New  Constructor
}

// Searcher looks up a key, reporting its value and whether it was present.
type Searcher interface {
	Search(key int64) (int64, bool)
}

// Inserter adds a key/value pair, overwriting any existing entry.
type Inserter interface {
	Insert(key, value int64)
}

// Deleter removes a key, reporting whether it was present.
type Deleter interface {
	Delete(key int64) bool
}

// Updater replaces the value of an existing key, reporting whether the key
// was present. Unlike Insert it never creates an entry.
type Updater interface {
	Update(key, value int64) bool
}

// MinKeyer reports the smallest key, if the structure is non-empty.
type MinKeyer interface {
	MinKey() (int64, bool)
}

// MaxKeyer reports the largest key, if the structure is non-empty.
type MaxKeyer interface {
	MaxKey() (int64, bool)
}

// Ranger returns the values of all keys in [low, high], inclusive.
type Ranger interface {
	Range(low, high int64) []int64
}
