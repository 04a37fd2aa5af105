package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/dsweep/dsweep/dataset"
	"github.com/dsweep/dsweep/sink"
	"github.com/dsweep/dsweep/structure"
)

// memSink captures records in memory for assertions.
type memSink struct {
	records   []sink.Record
	flushes   int
	failWrite bool
}

func (m *memSink) Write(r sink.Record) error {
	if m.failWrite {
		return errors.New("disk full")
	}
	m.records = append(m.records, r)

	return nil
}

func (m *memSink) Flush() error { m.flushes++; return nil }
func (m *memSink) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func orderedMapReg() structure.Registration {
	return structure.Registration{Name: "ordered_map", New: structure.NewOrderedMap}
}

func hashMapReg() structure.Registration {
	return structure.Registration{Name: "hash_map", New: structure.NewHashMap}
}

// failAbove returns a constructor that fails for sizes at or above limit.
func failAbove(limit int) structure.Constructor {
	return func(keys, values []int64) (structure.Structure, error) {
		if len(keys) >= limit {
			return nil, fmt.Errorf("allocation of %d entries refused", len(keys))
		}

		return structure.NewOrderedMap(keys, values)
	}
}

func countOps(records []sink.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Operation]++
	}

	return counts
}

func TestRunScenario(t *testing.T) {
	// sizes=[1000], runs=2, seed=42, one ordered map, operations
	// {creation, search}, volume=100, miss ratio=0.3.
	cfg := Config{
		Sizes:           []int{1000},
		Runs:            2,
		BaseSeed:        42,
		Operations:      []Operation{{Name: "search", Method: "Search"}},
		Structures:      []structure.Registration{orderedMapReg()},
		SearchTotal:     100,
		SearchMissRatio: 0.3,
	}

	out := &memSink{}

	s, err := New(cfg, out, testLogger(), Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.records) != 4 {
		t.Fatalf("got %d records, want 4 (creation x2, search x2)", len(out.records))
	}

	counts := countOps(out.records)
	if counts[CreationOp] != 2 || counts["search"] != 2 {
		t.Errorf("operation counts = %v, want creation:2 search:2", counts)
	}

	for _, r := range out.records {
		if r.Structure != "ordered_map" {
			t.Errorf("structure = %q, want ordered_map", r.Structure)
		}
		if r.Size != 1000 {
			t.Errorf("size = %d, want 1000", r.Size)
		}
		if r.RunIndex != 1 && r.RunIndex != 2 {
			t.Errorf("run index = %d, want 1 or 2", r.RunIndex)
		}
		if want := dataset.SubSeed(42, 1000, r.RunIndex); r.Seed != want {
			t.Errorf("seed = %d, want %d", r.Seed, want)
		}
		if r.TimeNS < 0 {
			t.Errorf("time_ns = %d, want non-negative", r.TimeNS)
		}
		if r.RunID == "" || r.Timestamp.IsZero() {
			t.Error("record missing run id or timestamp")
		}
	}

	// The query data behind each search trial carries the exact hit/miss
	// split the configuration asked for.
	for run := 1; run <= 2; run++ {
		ds, err := dataset.Generate(
			dataset.SubSeed(42, 1000, run),
			dataset.Params{Size: 1000, SearchVolume: 100, MissRatio: 0.3},
		)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if ds.SearchMisses != 30 {
			t.Errorf("run %d: misses = %d, want 30", run, ds.SearchMisses)
		}
	}
}

func TestRunSkipsUnsupportedOperations(t *testing.T) {
	cfg := Config{
		Sizes:    []int{50},
		Runs:     2,
		BaseSeed: 7,
		Operations: []Operation{
			{Name: "search", Method: "Search"},
			{Name: "min", Method: "MinKey"},
		},
		Structures:      []structure.Registration{orderedMapReg(), hashMapReg()},
		SearchTotal:     10,
		SearchMissRatio: 0.5,
	}

	out := &memSink{}

	var lastDone, lastTotal int
	opts := Options{Progress: func(done, total int) {
		if done < lastDone {
			t.Errorf("progress went backwards: %d after %d", done, lastDone)
		}
		lastDone, lastTotal = done, total
	}}

	s, err := New(cfg, out, testLogger(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// hash_map lacks MinKey, so its min trials are skipped but still
	// counted in the progress total.
	if lastTotal != cfg.TotalSteps() {
		t.Errorf("progress total = %d, want %d", lastTotal, cfg.TotalSteps())
	}
	if lastDone != lastTotal {
		t.Errorf("progress ended at %d of %d", lastDone, lastTotal)
	}

	for _, r := range out.records {
		if r.Structure == "hash_map" && r.Operation == "min" {
			t.Error("hash_map produced a min record despite lacking MinKey")
		}
	}

	counts := countOps(out.records)
	if counts["min"] != 2 {
		t.Errorf("min records = %d, want 2 (ordered_map only)", counts["min"])
	}
	if counts["search"] != 4 {
		t.Errorf("search records = %d, want 4", counts["search"])
	}
}

func TestRunSkipsFailingStructureAtLargerSizes(t *testing.T) {
	cfg := Config{
		Sizes:    []int{10, 100, 200},
		Runs:     2,
		BaseSeed: 3,
		Operations: []Operation{
			{Name: "search", Method: "Search"},
		},
		Structures: []structure.Registration{
			{Name: "fragile", New: failAbove(100)},
			orderedMapReg(),
		},
		SearchTotal:     5,
		SearchMissRatio: 0.5,
	}

	out := &memSink{}

	var lastDone int
	s, err := New(cfg, out, testLogger(), Options{
		Progress: func(done, _ int) { lastDone = done },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, r := range out.records {
		if r.Structure == "fragile" && r.Size >= 100 {
			t.Errorf("fragile produced a record at size %d after failing", r.Size)
		}
	}

	var fragile, ordered int
	for _, r := range out.records {
		switch r.Structure {
		case "fragile":
			fragile++
		case "ordered_map":
			ordered++
		}
	}

	// fragile: size 10 only, 2 runs x (creation + search).
	if fragile != 4 {
		t.Errorf("fragile records = %d, want 4", fragile)
	}
	// ordered_map is unaffected: 3 sizes x 2 runs x 2 records.
	if ordered != 12 {
		t.Errorf("ordered_map records = %d, want 12", ordered)
	}

	// Skipped trials still count toward progress.
	if lastDone != cfg.TotalSteps() {
		t.Errorf("progress ended at %d, want %d", lastDone, cfg.TotalSteps())
	}
}

func TestRunSinkErrorIsFatal(t *testing.T) {
	cfg := Config{
		Sizes:           []int{10},
		Runs:            1,
		BaseSeed:        1,
		Structures:      []structure.Registration{orderedMapReg()},
		SearchTotal:     5,
		SearchMissRatio: 0,
	}

	s, err := New(cfg, &memSink{failWrite: true}, testLogger(), Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Run(context.Background()); err == nil {
		t.Error("Run succeeded despite sink write failures")
	}
}

func TestRunCancellation(t *testing.T) {
	cfg := Config{
		Sizes:           []int{10, 20},
		Runs:            5,
		BaseSeed:        1,
		Structures:      []structure.Registration{orderedMapReg()},
		SearchTotal:     5,
		SearchMissRatio: 0,
	}

	out := &memSink{}

	s, err := New(cfg, out, testLogger(), Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}

	// Cancellation happens between trials, never mid-record, and the
	// sink is flushed on the way out.
	if out.flushes == 0 {
		t.Error("no flush on cancellation")
	}
}

func TestRunFlushCadence(t *testing.T) {
	cfg := Config{
		Sizes:           []int{10},
		Runs:            3,
		BaseSeed:        1,
		Structures:      []structure.Registration{orderedMapReg()},
		SearchTotal:     2,
		SearchMissRatio: 0,
	}

	out := &memSink{}

	s, err := New(cfg, out, testLogger(), Options{FlushEvery: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// One flush per record plus the final flush.
	if out.flushes < len(out.records) {
		t.Errorf("flushes = %d for %d records with FlushEvery=1",
			out.flushes, len(out.records))
	}
}

func TestRunDeterministicSeeds(t *testing.T) {
	cfg := Config{
		Sizes:           []int{10, 20},
		Runs:            2,
		BaseSeed:        1121,
		Structures:      []structure.Registration{orderedMapReg()},
		SearchTotal:     5,
		SearchMissRatio: 0.2,
	}

	runOnce := func() []sink.Record {
		out := &memSink{}
		s, err := New(cfg, out, testLogger(), Options{})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := s.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		return out.records
	}

	first := runOnce()
	second := runOnce()

	if len(first) != len(second) {
		t.Fatalf("record counts differ: %d vs %d", len(first), len(second))
	}

	for i := range first {
		if first[i].Seed != second[i].Seed {
			t.Errorf("record %d: seeds differ across sweeps: %d vs %d",
				i, first[i].Seed, second[i].Seed)
		}
		if first[i].Operation != second[i].Operation ||
			first[i].Size != second[i].Size ||
			first[i].RunIndex != second[i].RunIndex {
			t.Errorf("record %d: grid order differs across sweeps", i)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Sizes:           []int{10},
		Runs:            1,
		BaseSeed:        1,
		Operations:      []Operation{{Name: "search", Method: "Search"}},
		Structures:      []structure.Registration{orderedMapReg()},
		SearchTotal:     5,
		SearchMissRatio: 0.5,
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no sizes", func(c *Config) { c.Sizes = nil }},
		{"zero size", func(c *Config) { c.Sizes = []int{0} }},
		{"zero runs", func(c *Config) { c.Runs = 0 }},
		{"no structures", func(c *Config) { c.Structures = nil }},
		{"duplicate structure", func(c *Config) {
			c.Structures = append(c.Structures, orderedMapReg())
		}},
		{"nil constructor", func(c *Config) {
			c.Structures = []structure.Registration{{Name: "x"}}
		}},
		{"unknown method", func(c *Config) {
			c.Operations = []Operation{{Name: "warp", Method: "Warp"}}
		}},
		{"reserved name", func(c *Config) {
			c.Operations = []Operation{{Name: CreationOp, Method: "Search"}}
		}},
		{"duplicate operation", func(c *Config) {
			c.Operations = append(c.Operations, c.Operations[0])
		}},
		{"bad miss ratio", func(c *Config) { c.SearchMissRatio = 1.5 }},
		{"no volume", func(c *Config) { c.SearchTotal = 0; c.SearchFraction = 0 }},
		{"bad fraction", func(c *Config) { c.SearchTotal = 0; c.SearchFraction = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			cfg.Operations = append([]Operation(nil), valid.Operations...)
			cfg.Structures = append([]structure.Registration(nil), valid.Structures...)
			tt.mutate(&cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSearchVolumeResolution(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		fraction float64
		size     int
		want     int
	}{
		{"absolute wins", 100, 0.5, 1000, 100},
		{"fraction of size", 0, 0.1, 1000, 100},
		{"fraction rounds", 0, 0.25, 10, 3},
		{"at least one", 0, 0.01, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{SearchTotal: tt.total, SearchFraction: tt.fraction}
			if got := c.searchVolume(tt.size); got != tt.want {
				t.Errorf("searchVolume(%d) = %d, want %d", tt.size, got, tt.want)
			}
		})
	}
}
