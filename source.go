package canopy

import (
	"io"
)

// Source is the interface for getting records one at a time. Record returns
// io.EOF once the source is exhausted.
type Source interface {
	Record() (Record, error)
}

// Sink is the interface for writing records to durable storage.
type Sink interface {
	Write(rec Record) error
	Close() error
}

// NamedReadCloser is a ReadCloser which also knows where its data came from.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
	Meta() map[string]interface{}
}

// RawSource hands out the underlying readers (files, objects) of a dataset
// one at a time. NextReader returns io.EOF when there are no more.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}

// SliceSource is a Source over records held in memory.
type SliceSource struct {
	recs []Record
	idx  int
}

// NewSliceSource returns a Source which yields recs in order.
func NewSliceSource(recs []Record) *SliceSource {
	return &SliceSource{recs: recs}
}

// Record implements Source.
func (s *SliceSource) Record() (Record, error) {
	if s.idx >= len(s.recs) {
		return Record{}, io.EOF
	}
	s.idx++
	return s.recs[s.idx-1], nil
}

// ReadAll drains a Source.
func ReadAll(src Source) ([]Record, error) {
	ret := make([]Record, 0)
	for {
		rec, err := src.Record()
		if err == io.EOF {
			return ret, nil
		} else if err != nil {
			return ret, err
		}
		ret = append(ret, rec)
	}
}
