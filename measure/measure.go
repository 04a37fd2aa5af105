// Package measure wraps a single bound operation invocation and captures
// elapsed wall time plus memory readings around it.
//
// The timed window is exactly the invocation: the clock is read immediately
// before and after the call with nothing interposed. Memory readings
// (process RSS via gopsutil, allocation counters via runtime.ReadMemStats)
// are taken outside the window. A trial is executed exactly once; outliers
// are a data-analysis concern, not a harness concern.
package measure

import (
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample holds the raw measurements of one trial.
type Sample struct {
	// Elapsed is the monotonic wall time of the invocation.
	Elapsed time.Duration
	// RSSBaseline is the process resident set size in bytes immediately
	// before the invocation. Zero when RSS sampling is unavailable.
	RSSBaseline uint64
	// RSSDelta is the change in resident set size across the invocation.
	RSSDelta int64
	// AllocPeak is the number of heap bytes allocated during the
	// invocation, including scratch space that was freed again before it
	// returned. It can therefore exceed the net RSS delta.
	AllocPeak uint64
}

// Instrument performs measurements for the current process. RSS sampling
// degrades gracefully: if the process handle cannot be obtained, RSS
// fields stay zero and a warning is logged once.
type Instrument struct {
	proc   *process.Process
	logger *slog.Logger
}

// New creates an Instrument for the current process.
func New(logger *slog.Logger) *Instrument {
	in := &Instrument{logger: logger}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("rss sampling unavailable",
			slog.String("error", err.Error()),
		)

		return in
	}

	in.proc = proc

	return in
}

// Measure executes fn exactly once and returns its measurements.
func (in *Instrument) Measure(fn func()) Sample {
	rssBefore := in.rss()

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	start := time.Now()
	fn()
	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	rssAfter := in.rss()

	return Sample{
		Elapsed:     elapsed,
		RSSBaseline: rssBefore,
		RSSDelta:    int64(rssAfter) - int64(rssBefore),
		AllocPeak:   after.TotalAlloc - before.TotalAlloc,
	}
}

func (in *Instrument) rss() uint64 {
	if in.proc == nil {
		return 0
	}

	mi, err := in.proc.MemoryInfo()
	if err != nil {
		return 0
	}

	return mi.RSS
}
