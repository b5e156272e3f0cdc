package mock

import (
	"sync"

	"github.com/pilosa/canopy"
)

// Sink is an in-memory canopy.Sink. If Err is set, Write returns it.
type Sink struct {
	mu     sync.Mutex
	Err    error
	Recs   []canopy.Record
	Closed bool
}

// Write implements canopy.Sink.
func (s *Sink) Write(rec canopy.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Recs = append(s.Recs, rec)
	return nil
}

// Close implements canopy.Sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Records returns what has been written.
func (s *Sink) Records() []canopy.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]canopy.Record(nil), s.Recs...)
}

// Opener returns a func which hands out s, resetting what it holds, so the
// same Sink can be reused across runs.
func (s *Sink) Opener() func() (canopy.Sink, error) {
	return func() (canopy.Sink, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.Recs, s.Closed = nil, false
		return s, nil
	}
}
