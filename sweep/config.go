// Package sweep drives the full experiment grid: for every configured
// (size, structure, run) it derives a seed, generates a dataset, times the
// structure's construction and each configured operation, and emits one
// record per trial to the sink. Trials run strictly sequentially on one
// goroutine; concurrent trials would contend for CPU cache and memory
// bandwidth and corrupt the measurements.
package sweep

import (
	"fmt"
	"math"
	"slices"

	"github.com/dsweep/dsweep/structure"
)

// CreationOp is the implicit operation name under which every trial's
// structure construction is recorded. It cannot be used as a configured
// operation name.
const CreationOp = "creation"

// Operation maps a logical operation name (as it appears in records) to
// the capability method name the adapter registry resolves.
type Operation struct {
	Name   string
	Method string
}

// Config is the immutable experiment specification. It is constructed once
// at startup, validated, and read-only thereafter.
type Config struct {
	// Sizes is the ordered sequence of dataset sizes to sweep.
	Sizes []int
	// Runs is the number of repetitions per (structure, operation, size).
	Runs int
	// BaseSeed is combined with trial coordinates to derive sub-seeds.
	BaseSeed int64
	// Operations are executed in order after construction, per run.
	Operations []Operation
	// Structures are the registered constructors to benchmark.
	Structures []structure.Registration
	// SearchTotal is the absolute search-query volume per trial.
	// When zero, SearchFraction applies instead.
	SearchTotal int
	// SearchFraction is the query volume as a fraction of the dataset
	// size, in (0, 1]. Used only when SearchTotal is zero.
	SearchFraction float64
	// SearchMissRatio is the fraction of search queries guaranteed
	// absent, in [0, 1].
	SearchMissRatio float64
}

// Validate reports configuration errors. These are fatal and surface
// before any trial runs.
func (c Config) Validate() error {
	if len(c.Sizes) == 0 {
		return fmt.Errorf("no dataset sizes configured")
	}
	for _, size := range c.Sizes {
		if size <= 0 {
			return fmt.Errorf("dataset size must be positive, got %d", size)
		}
	}

	if c.Runs < 1 {
		return fmt.Errorf("runs must be at least 1, got %d", c.Runs)
	}

	if c.SearchTotal < 0 {
		return fmt.Errorf("search total must be non-negative, got %d", c.SearchTotal)
	}
	if c.SearchTotal == 0 && (c.SearchFraction <= 0 || c.SearchFraction > 1) {
		return fmt.Errorf("search fraction must be in (0,1], got %g", c.SearchFraction)
	}
	if c.SearchMissRatio < 0 || c.SearchMissRatio > 1 {
		return fmt.Errorf("search miss ratio must be in [0,1], got %g", c.SearchMissRatio)
	}

	if len(c.Structures) == 0 {
		return fmt.Errorf("no structures registered")
	}

	seen := make(map[string]struct{}, len(c.Structures))
	for _, reg := range c.Structures {
		if reg.Name == "" {
			return fmt.Errorf("structure with empty name")
		}
		if reg.New == nil {
			return fmt.Errorf("structure %q has no constructor", reg.Name)
		}
		if _, dup := seen[reg.Name]; dup {
			return fmt.Errorf("duplicate structure name %q", reg.Name)
		}
		seen[reg.Name] = struct{}{}
	}

	methods := structure.MethodNames()
	opNames := make(map[string]struct{}, len(c.Operations))

	for _, op := range c.Operations {
		if op.Name == "" {
			return fmt.Errorf("operation with empty name")
		}
		if op.Name == CreationOp {
			return fmt.Errorf("operation name %q is reserved", CreationOp)
		}
		if _, dup := opNames[op.Name]; dup {
			return fmt.Errorf("duplicate operation name %q", op.Name)
		}
		opNames[op.Name] = struct{}{}

		if !slices.Contains(methods, op.Method) {
			return fmt.Errorf("operation %q maps to unknown method %q (known: %v)",
				op.Name, op.Method, methods)
		}
	}

	return nil
}

// TotalSteps is the precomputed progress denominator: every
// (structure, size, run) contributes one creation trial plus one step per
// configured operation, whether measured or skipped.
func (c Config) TotalSteps() int {
	return len(c.Structures) * len(c.Sizes) * c.Runs * (1 + len(c.Operations))
}

// searchVolume resolves the per-trial query volume for a dataset size.
func (c Config) searchVolume(size int) int {
	if c.SearchTotal > 0 {
		return c.SearchTotal
	}

	v := int(math.Round(float64(size) * c.SearchFraction))
	if v < 1 {
		v = 1
	}

	return v
}
