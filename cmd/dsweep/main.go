// Package main provides the CLI entry point for dsweep, a data-structure
// benchmarking harness.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dsweep/dsweep/sink"
	"github.com/dsweep/dsweep/structure"
	"github.com/dsweep/dsweep/sweep"
)

// builtins are the structures bundled with the CLI. External structures
// are registered through the sweep package API instead.
var builtins = map[string]structure.Constructor{
	"ordered_map": structure.NewOrderedMap,
	"hash_map":    structure.NewHashMap,
}

// defaultOperations is the logical-name → method-name mapping exercised
// when no --op flags are given.
var defaultOperations = []sweep.Operation{
	{Name: "search", Method: "Search"},
	{Name: "insert", Method: "Insert"},
	{Name: "delete", Method: "Delete"},
	{Name: "update", Method: "Update"},
	{Name: "min", Method: "MinKey"},
	{Name: "max", Method: "MaxKey"},
	{Name: "range", Method: "Range"},
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("dsweep failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "dsweep",
		Short: "Data-structure benchmarking harness",
		Long: `Dsweep drives a fixed grid of (structure x operation x size x run) trials,
feeds each trial deterministic seeded data, times every operation at nanosecond
resolution, samples process memory around it, and appends one record per trial
to a durable tabular store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))

	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		sizes      []int
		runs       int
		seed       int64
		searchN    int
		searchFrac float64
		missRatio  float64
		structs    []string
		ops        []string
		outDir     string
		formats    []string
		codecName  string
		flushEvery int
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one benchmark sweep",
		Long: `Enumerate the full trial grid for the configured structures and operations
and append one record per trial to the output table(s). The sweep is
deterministic for a fixed seed; interrupting it leaves a valid partial table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), logger, runFlags{
				sizes:      sizes,
				runs:       runs,
				seed:       seed,
				searchN:    searchN,
				searchFrac: searchFrac,
				missRatio:  missRatio,
				structs:    structs,
				ops:        ops,
				outDir:     outDir,
				formats:    formats,
				codecName:  codecName,
				flushEvery: flushEvery,
				quiet:      quiet,
			})
		},
	}

	flags := cmd.Flags()
	flags.IntSliceVar(&sizes, "sizes", []int{1000, 10000, 100000},
		"Dataset sizes to sweep, in order")
	flags.IntVar(&runs, "runs", 5,
		"Repetitions per (structure, operation, size)")
	flags.Int64Var(&seed, "seed", 1121,
		"Base seed for deterministic data generation")
	flags.IntVar(&searchN, "search-total", 0,
		"Absolute search-query volume per trial (0 = use --search-fraction)")
	flags.Float64Var(&searchFrac, "search-fraction", 0.1,
		"Search-query volume as a fraction of dataset size")
	flags.Float64Var(&missRatio, "miss-ratio", 0.3,
		"Fraction of search queries guaranteed absent")
	flags.StringSliceVar(&structs, "structures", []string{"ordered_map", "hash_map"},
		"Structures to benchmark")
	flags.StringSliceVar(&ops, "op", nil,
		"Operation mapping as logical=Method (e.g. search=Search); default: full set")
	flags.StringVar(&outDir, "out-dir", "benchmark_results",
		"Directory for output tables")
	flags.StringSliceVar(&formats, "format", []string{"csv"},
		"Output formats: csv, columnar")
	flags.StringVar(&codecName, "codec", "zstd",
		"Columnar compression codec: zstd, lz4")
	flags.IntVar(&flushEvery, "flush-every", 64,
		"Records between sink flushes")
	flags.BoolVar(&quiet, "quiet", false,
		"Suppress the progress counter")

	return cmd
}

type runFlags struct {
	sizes      []int
	runs       int
	seed       int64
	searchN    int
	searchFrac float64
	missRatio  float64
	structs    []string
	ops        []string
	outDir     string
	formats    []string
	codecName  string
	flushEvery int
	quiet      bool
}

func runSweep(ctx context.Context, logger *slog.Logger, f runFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	regs, err := resolveStructures(f.structs)
	if err != nil {
		return err
	}

	operations, err := resolveOperations(f.ops)
	if err != nil {
		return err
	}

	cfg := sweep.Config{
		Sizes:           f.sizes,
		Runs:            f.runs,
		BaseSeed:        f.seed,
		Operations:      operations,
		Structures:      regs,
		SearchTotal:     f.searchN,
		SearchFraction:  f.searchFrac,
		SearchMissRatio: f.missRatio,
	}

	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	runID := sweep.NewRunID()

	out, paths, err := openSinks(f, runID)
	if err != nil {
		return err
	}

	logger.Info("starting sweep",
		slog.String("run_id", runID),
		slog.Any("sizes", f.sizes),
		slog.Int("runs", f.runs),
		slog.Int64("seed", f.seed),
		slog.Any("structures", f.structs),
		slog.Any("outputs", paths),
	)

	opts := sweep.Options{
		RunID:      runID,
		FlushEvery: f.flushEvery,
	}
	if !f.quiet {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\r%d/%d trials", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	s, err := sweep.New(cfg, out, logger, opts)
	if err != nil {
		out.Close()

		return err
	}

	runErr := s.Run(ctx)

	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}

	if runErr != nil {
		return runErr
	}

	logger.Info("sweep complete", slog.Any("outputs", paths))

	return nil
}

func resolveStructures(names []string) ([]structure.Registration, error) {
	regs := make([]structure.Registration, 0, len(names))

	for _, name := range names {
		ctor, ok := builtins[name]
		if !ok {
			known := make([]string, 0, len(builtins))
			for k := range builtins {
				known = append(known, k)
			}

			return nil, fmt.Errorf("unknown structure %q (known: %s)",
				name, strings.Join(known, ", "))
		}

		regs = append(regs, structure.Registration{Name: name, New: ctor})
	}

	return regs, nil
}

func resolveOperations(specs []string) ([]sweep.Operation, error) {
	if len(specs) == 0 {
		return defaultOperations, nil
	}

	ops := make([]sweep.Operation, 0, len(specs))

	for _, spec := range specs {
		name, method, ok := strings.Cut(spec, "=")
		if !ok || name == "" || method == "" {
			return nil, fmt.Errorf("malformed --op %q, want logical=Method", spec)
		}

		ops = append(ops, sweep.Operation{Name: name, Method: method})
	}

	return ops, nil
}

func openSinks(f runFlags, runID string) (sink.Sink, []string, error) {
	var (
		sinks []sink.Sink
		paths []string
	)

	for _, format := range f.formats {
		switch format {
		case "csv":
			path := filepath.Join(f.outDir, runID+".csv")

			s, err := sink.NewCSV(path)
			if err != nil {
				return nil, nil, err
			}

			sinks = append(sinks, s)
			paths = append(paths, path)

		case "columnar":
			codec, err := sink.ParseCodec(f.codecName)
			if err != nil {
				return nil, nil, err
			}

			path := filepath.Join(f.outDir, runID+".dscol")

			s, err := sink.NewColumnar(path, codec)
			if err != nil {
				return nil, nil, err
			}

			sinks = append(sinks, s)
			paths = append(paths, path)

		default:
			return nil, nil, fmt.Errorf("unknown format %q (want csv or columnar)", format)
		}
	}

	if len(sinks) == 0 {
		return nil, nil, fmt.Errorf("no output format selected")
	}
	if len(sinks) == 1 {
		return sinks[0], paths, nil
	}

	return sink.NewMulti(sinks...), paths, nil
}
