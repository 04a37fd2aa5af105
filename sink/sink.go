package sink

// Sink accepts records as they are produced and persists them. Writes may
// buffer; Flush establishes a durable recovery point. Sinks are owned by
// the scheduler's single thread and are not safe for concurrent use.
type Sink interface {
	Write(Record) error
	Flush() error
	Close() error
}

// Multi fans records out to several sinks, e.g. CSV and columnar for the
// same sweep. The first error from any sub-sink is returned.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Write appends the record to every sub-sink.
func (m *Multi) Write(r Record) error {
	for _, s := range m.sinks {
		if err := s.Write(r); err != nil {
			return err
		}
	}

	return nil
}

// Flush flushes every sub-sink.
func (m *Multi) Flush() error {
	for _, s := range m.sinks {
		if err := s.Flush(); err != nil {
			return err
		}
	}

	return nil
}

// Close closes every sub-sink, returning the first error but attempting
// all of them.
func (m *Multi) Close() error {
	var first error

	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
