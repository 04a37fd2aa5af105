package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/dsweep/dsweep/dataset"
	"github.com/dsweep/dsweep/measure"
	"github.com/dsweep/dsweep/sink"
	"github.com/dsweep/dsweep/structure"
)

const defaultFlushEvery = 64

// ProgressFunc observes sweep progress as a monotonically increasing step
// count against a precomputed total. It is purely observational: skipped
// trials are counted too, so a partial run's completion percentage stays
// meaningful.
type ProgressFunc func(done, total int)

// Options tunes scheduler behavior outside the experiment specification.
type Options struct {
	// RunID identifies this sweep in every record. Defaults to NewRunID().
	RunID string
	// Progress, when set, is called after every step.
	Progress ProgressFunc
	// FlushEvery is the number of records between sink flushes.
	// Defaults to 64; a crash loses at most the in-flight batch.
	FlushEvery int
}

// Scheduler enumerates the experiment grid and drives one trial at a time.
type Scheduler struct {
	cfg        Config
	out        sink.Sink
	inst       *measure.Instrument
	logger     *slog.Logger
	runID      string
	progress   ProgressFunc
	flushEvery int
}

// New validates the configuration and creates a Scheduler writing to out.
func New(cfg Config, out sink.Sink, logger *slog.Logger, opts Options) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment config: %w", err)
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}

	runID := opts.RunID
	if runID == "" {
		runID = NewRunID()
	}

	return &Scheduler{
		cfg:        cfg,
		out:        out,
		inst:       measure.New(logger),
		logger:     logger.With(slog.String("component", "sweep")),
		runID:      runID,
		progress:   opts.Progress,
		flushEvery: flushEvery,
	}, nil
}

// NewRunID produces a sweep identifier: UTC timestamp plus a short random
// suffix, so concurrent sweeps on different machines cannot collide.
func NewRunID() string {
	u := uuid.New()

	return fmt.Sprintf("%s-%x",
		time.Now().UTC().Format("2006-01-02T150405Z"), u[:3])
}

// capabilities records, per structure, which configured operations it
// supports, discovered once from a probe instance before any trial runs.
type capabilities struct {
	supported map[string]bool
	// deadFrom is the smallest size at which construction failed; trials
	// at that size and larger are skipped. math.MaxInt means alive.
	deadFrom int
}

// Run executes the full sweep. The grid order is fixed: size outer (so
// memory pressure grows monotonically), then structure, then run. Within a
// run the construction is timed as the creation record, followed by each
// configured operation against the same handle and freshly derived query
// data. Sink errors are fatal; the last flush is the recovery point.
func (s *Scheduler) Run(ctx context.Context) error {
	runID := s.runID
	total := s.cfg.TotalSteps()
	done := 0
	written := 0

	step := func(n int) {
		done += n
		if s.progress != nil {
			s.progress(done, total)
		}
	}

	caps, err := s.probeCapabilities()
	if err != nil {
		return err
	}

	s.logger.Info("starting sweep",
		slog.String("run_id", runID),
		slog.Int("total_steps", total),
		slog.Int("structures", len(s.cfg.Structures)),
		slog.Int("sizes", len(s.cfg.Sizes)),
		slog.Int("runs", s.cfg.Runs),
	)

	perRun := 1 + len(s.cfg.Operations)

	for _, size := range s.cfg.Sizes {
		for _, reg := range s.cfg.Structures {
			c := caps[reg.Name]

			if size >= c.deadFrom {
				step(s.cfg.Runs * perRun)

				continue
			}

			for run := 1; run <= s.cfg.Runs; run++ {
				if err := ctx.Err(); err != nil {
					if ferr := s.out.Flush(); ferr != nil {
						s.logger.Error("flush on cancellation failed",
							slog.String("error", ferr.Error()))
					}

					return fmt.Errorf("sweep cancelled: %w", err)
				}

				ok, err := s.runTrial(runID, reg, c, size, run, step, &written)
				if err != nil {
					return err
				}
				if !ok {
					// Construction failed: skip this structure at
					// this size and all larger configured sizes.
					c.deadFrom = size
					step((s.cfg.Runs - run + 1) * perRun)

					break
				}
			}
		}
	}

	if err := s.out.Flush(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}

	s.logger.Info("sweep complete",
		slog.String("run_id", runID),
		slog.Int("steps", done),
	)

	return nil
}

// runTrial executes one (structure, size, run) cell: creation plus every
// configured operation. It reports ok=false when construction fails.
func (s *Scheduler) runTrial(
	runID string,
	reg structure.Registration,
	c *capabilities,
	size, run int,
	step func(int),
	written *int,
) (bool, error) {
	seed := dataset.SubSeed(s.cfg.BaseSeed, size, run)

	ds, err := dataset.Generate(seed, dataset.Params{
		Size:         size,
		SearchVolume: s.cfg.searchVolume(size),
		MissRatio:    s.cfg.SearchMissRatio,
	})
	if err != nil {
		return false, fmt.Errorf("generate dataset for size %d: %w", size, err)
	}

	// Settle the heap so one trial's garbage is not charged to the next.
	runtime.GC()

	var (
		handle  structure.Structure
		ctorErr error
	)

	sample := s.inst.Measure(func() {
		handle, ctorErr = reg.New(ds.Keys, ds.Values)
	})

	if ctorErr != nil {
		s.logger.Error("construction failed, skipping structure at this size and larger",
			slog.String("structure", reg.Name),
			slog.Int("size", size),
			slog.Int("run", run),
			slog.String("error", ctorErr.Error()),
		)

		return false, nil
	}

	if err := s.emit(makeRecord(runID, CreationOp, reg.Name, size, run, seed, sample), written); err != nil {
		return false, err
	}
	step(1)

	for _, op := range s.cfg.Operations {
		if !c.supported[op.Name] {
			step(1)

			continue
		}

		binding, err := structure.Bind(op.Method, handle, ds)
		if err != nil {
			// The probe said this operation was supported; a failure
			// here means the constructor returned a different type.
			s.logger.Warn("binding failed, skipping trial",
				slog.String("structure", reg.Name),
				slog.String("operation", op.Name),
				slog.String("error", err.Error()),
			)
			step(1)

			continue
		}

		runtime.GC()
		sample := s.inst.Measure(binding)

		if err := s.emit(makeRecord(runID, op.Name, reg.Name, size, run, seed, sample), written); err != nil {
			return false, err
		}
		step(1)
	}

	// The handle is owned by this trial alone; it is dropped here and
	// never reused, so state mutated by one run cannot contaminate the
	// next.
	return true, nil
}

// probeCapabilities builds a tiny instance of every structure and checks
// each configured operation against it exactly once, before any timed
// work. Unsupported pairs are reported once and excluded from trials;
// their steps still count toward the progress total.
func (s *Scheduler) probeCapabilities() (map[string]*capabilities, error) {
	caps := make(map[string]*capabilities, len(s.cfg.Structures))

	for _, reg := range s.cfg.Structures {
		c := &capabilities{
			supported: make(map[string]bool, len(s.cfg.Operations)),
			deadFrom:  math.MaxInt,
		}
		caps[reg.Name] = c

		probe, err := reg.New([]int64{0}, []int64{0})
		if err != nil {
			s.logger.Error("capability probe failed, skipping structure",
				slog.String("structure", reg.Name),
				slog.String("error", err.Error()),
			)
			c.deadFrom = 0

			continue
		}

		for _, op := range s.cfg.Operations {
			ok, err := structure.Supports(op.Method, probe)
			if err != nil {
				return nil, fmt.Errorf("operation %q: %w", op.Name, err)
			}

			c.supported[op.Name] = ok

			if !ok {
				s.logger.Warn("unsupported operation, pair skipped for all sizes and runs",
					slog.String("structure", reg.Name),
					slog.String("operation", op.Name),
					slog.String("method", op.Method),
				)
			}
		}
	}

	return caps, nil
}

func (s *Scheduler) emit(r sink.Record, written *int) error {
	if err := s.out.Write(r); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	*written++
	if *written >= s.flushEvery {
		if err := s.out.Flush(); err != nil {
			return fmt.Errorf("flush records: %w", err)
		}
		*written = 0
	}

	return nil
}

func makeRecord(
	runID, op, structName string,
	size, run int,
	seed int64,
	sample measure.Sample,
) sink.Record {
	return sink.Record{
		RunID:       runID,
		RunIndex:    run,
		Operation:   op,
		Structure:   structName,
		Size:        size,
		Seed:        seed,
		Timestamp:   time.Now().UTC(),
		TimeNS:      sample.Elapsed.Nanoseconds(),
		RSSBaseline: sample.RSSBaseline,
		RSSDelta:    sample.RSSDelta,
		MemPeak:     sample.AllocPeak,
	}
}
