package sink

import (
	"encoding/csv"
	"fmt"
	"os"
)

// CSV writes records as a row-oriented CSV table with a header row.
//
// Every complete row is a complete line, so an interrupted sweep leaves a
// valid, readable partial table. Flush drains the encoder and fsyncs, which
// makes the flushed rows the crash-recovery point.
type CSV struct {
	f *os.File
	w *csv.Writer
}

// NewCSV creates the file at path and writes the header row.
func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close()

		return nil, fmt.Errorf("write csv header: %w", err)
	}

	return &CSV{f: f, w: w}, nil
}

// Write appends one record.
func (c *CSV) Write(r Record) error {
	if err := c.w.Write(r.row()); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}

	return nil
}

// Flush drains buffered rows to disk and fsyncs.
func (c *CSV) Flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("sync csv: %w", err)
	}

	return nil
}

// Close flushes and closes the file.
func (c *CSV) Close() error {
	if err := c.Flush(); err != nil {
		c.f.Close()

		return err
	}

	return c.f.Close()
}
