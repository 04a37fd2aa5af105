package structure

import (
	"errors"
	"fmt"

	"github.com/dsweep/dsweep/dataset"
)

// ErrUnsupported reports that a structure does not implement the capability
// a configured method name requires. The scheduler skips the
// (structure, operation) pair for every size and run.
var ErrUnsupported = errors.New("operation not supported by structure")

// ErrUnknownMethod reports a method name in the operation mapping that does
// not correspond to any known capability. This is a configuration error.
var ErrUnknownMethod = errors.New("unknown method name")

// Binding is a resolved zero-argument invocation of one operation against
// one structure instance with its trial data already bound. Resolution and
// argument binding happen before the clock starts, so the timed window
// contains nothing but the operation itself.
type Binding func()

// benchSink keeps operation results observable so the calls cannot be
// optimized away.
var benchSink int64

// capability checks whether a structure implements the interface a method
// name maps to, and binds a call against trial data.
type capability struct {
	supports func(Structure) bool
	bind     func(Structure, *dataset.Dataset) Binding
}

// methodTable maps the configurable method names of the operation mapping
// (logical operation name → method name) onto capability checks and
// binders. Bulk operations (search, insert, delete, update) sweep their
// whole target sequence per invocation; min, max, and range are single
// calls.
var methodTable = map[string]capability{
	"Search": {
		supports: func(s Structure) bool { _, ok := s.(Searcher); return ok },
		bind: func(s Structure, d *dataset.Dataset) Binding {
			sr := s.(Searcher)
			keys := d.SearchKeys

			return func() {
				var found int64
				for _, k := range keys {
					if _, ok := sr.Search(k); ok {
						found++
					}
				}
				benchSink = found
			}
		},
	},
	"Insert": {
		supports: func(s Structure) bool { _, ok := s.(Inserter); return ok },
		bind: func(s Structure, d *dataset.Dataset) Binding {
			in := s.(Inserter)
			keys, values := d.InsertKeys, d.InsertValues

			return func() {
				for i, k := range keys {
					in.Insert(k, values[i])
				}
			}
		},
	},
	"Delete": {
		supports: func(s Structure) bool { _, ok := s.(Deleter); return ok },
		bind: func(s Structure, d *dataset.Dataset) Binding {
			del := s.(Deleter)
			keys := d.DeleteKeys

			return func() {
				var removed int64
				for _, k := range keys {
					if del.Delete(k) {
						removed++
					}
				}
				benchSink = removed
			}
		},
	},
	"Update": {
		supports: func(s Structure) bool { _, ok := s.(Updater); return ok },
		bind: func(s Structure, d *dataset.Dataset) Binding {
			up := s.(Updater)
			keys, values := d.UpdateKeys, d.UpdateValues

			return func() {
				var hit int64
				for i, k := range keys {
					if up.Update(k, values[i]) {
						hit++
					}
				}
				benchSink = hit
			}
		},
	},
	"MinKey": {
		supports: func(s Structure) bool { _, ok := s.(MinKeyer); return ok },
		bind: func(s Structure, _ *dataset.Dataset) Binding {
			m := s.(MinKeyer)

			return func() {
				k, _ := m.MinKey()
				benchSink = k
			}
		},
	},
	"MaxKey": {
		supports: func(s Structure) bool { _, ok := s.(MaxKeyer); return ok },
		bind: func(s Structure, _ *dataset.Dataset) Binding {
			m := s.(MaxKeyer)

			return func() {
				k, _ := m.MaxKey()
				benchSink = k
			}
		},
	},
	"Range": {
		supports: func(s Structure) bool { _, ok := s.(Ranger); return ok },
		bind: func(s Structure, d *dataset.Dataset) Binding {
			r := s.(Ranger)
			low, high := d.RangeLow, d.RangeHigh

			return func() {
				benchSink = int64(len(r.Range(low, high)))
			}
		},
	},
}

// Supports reports whether a structure implements the capability behind the
// given method name. An unknown method name is a configuration error.
func Supports(method string, s Structure) (bool, error) {
	c, ok := methodTable[method]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	return c.supports(s), nil
}

// Bind resolves the method name against the structure and returns a thunk
// with the trial data bound, ready for the measurement instrument. It fails
// with ErrUnsupported before any clock reading if the structure lacks the
// capability.
func Bind(method string, s Structure, d *dataset.Dataset) (Binding, error) {
	c, ok := methodTable[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	if !c.supports(s) {
		return nil, fmt.Errorf("%w: method %q", ErrUnsupported, method)
	}

	return c.bind(s, d), nil
}

// MethodNames returns the method names the registry understands, for
// configuration validation messages.
func MethodNames() []string {
	names := make([]string, 0, len(methodTable))
	for name := range methodTable {
		names = append(names, name)
	}

	return names
}
