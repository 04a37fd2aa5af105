// Package sink persists measured trial records to durable tabular storage.
//
// Two formats are provided: a row-oriented CSV table and a compressed
// columnar table (the dscol format, see columnar.go). Both carry the same
// logical schema; downstream consumers address columns by name, so adding
// a column is safe while renaming or removing one is a breaking change.
package sink

import (
	"strconv"
	"time"
)

// Record is one measured trial. It is immutable once produced and
// append-only into a sink.
type Record struct {
	RunID       string
	RunIndex    int
	Operation   string
	Structure   string
	Size        int
	Seed        int64
	Timestamp   time.Time
	TimeNS      int64
	RSSBaseline uint64
	RSSDelta    int64
	MemPeak     uint64
}

// Columns is the stable output schema, in column order.
var Columns = []string{
	"run_id",
	"run_index",
	"operation",
	"structure",
	"size",
	"seed",
	"timestamp",
	"time_ns",
	"time_s",
	"rss_baseline_b",
	"rss_delta_b",
	"mem_peak_b",
}

// TimeS returns the elapsed time in seconds, derived from TimeNS.
func (r Record) TimeS() float64 {
	return float64(r.TimeNS) / 1e9
}

// row renders the record as CSV fields in schema order.
func (r Record) row() []string {
	return []string{
		r.RunID,
		strconv.Itoa(r.RunIndex),
		r.Operation,
		r.Structure,
		strconv.Itoa(r.Size),
		strconv.FormatInt(r.Seed, 10),
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(r.TimeNS, 10),
		strconv.FormatFloat(r.TimeS(), 'g', -1, 64),
		strconv.FormatUint(r.RSSBaseline, 10),
		strconv.FormatInt(r.RSSDelta, 10),
		strconv.FormatUint(r.MemPeak, 10),
	}
}
