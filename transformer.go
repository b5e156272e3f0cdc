package canopy

import (
	"github.com/pkg/errors"
)

// Operation is applied to each record flowing through a stage. It may emit
// zero or more records. A returned error is a failure of that one record;
// the scheduler sends the input record to the stage's trap.
type Operation interface {
	Operate(rec Record, emit func(Record)) error
}

// OperationFunc can be wrapped around a function to make it implement the
// Operation interface. Similar to http.HandlerFunc.
type OperationFunc func(rec Record, emit func(Record)) error

// Operate implements Operation for OperationFunc
func (o OperationFunc) Operate(rec Record, emit func(Record)) error {
	return o(rec, emit)
}

// Predicate decides whether a record is kept by a Filter.
type Predicate interface {
	Keep(rec Record) (bool, error)
}

// PredicateFunc makes a bare func a Predicate.
type PredicateFunc func(rec Record) (bool, error)

// Keep implements Predicate.
func (p PredicateFunc) Keep(rec Record) (bool, error) { return p(rec) }

// FloatAtMost keeps records whose Field is <= Max.
type FloatAtMost struct {
	Field string
	Max   float64
}

// Keep implements Predicate.
func (p FloatAtMost) Keep(rec Record) (bool, error) {
	f, err := rec.Float(p.Field)
	if err != nil {
		return false, err
	}
	return f <= p.Max, nil
}

// Filter is an Operation which emits only the records its Predicate keeps.
type Filter struct {
	Predicate Predicate
}

// Operate implements Operation.
func (f Filter) Operate(rec Record, emit func(Record)) error {
	keep, err := f.Predicate.Keep(rec)
	if err != nil {
		return errors.Wrap(err, "evaluating predicate")
	}
	if keep {
		emit(rec)
	}
	return nil
}

// Rename is an Operation which renames fields. Keys are old names.
type Rename map[string]string

// Operate implements Operation.
func (r Rename) Operate(rec Record, emit func(Record)) (err error) {
	for from, to := range r {
		rec, err = rec.Rename(from, to)
		if err != nil {
			return err
		}
	}
	emit(rec)
	return nil
}

// Retain is an Operation which projects records onto Fields.
type Retain []string

// Operate implements Operation.
func (r Retain) Operate(rec Record, emit func(Record)) error {
	out, err := rec.Retain(r...)
	if err != nil {
		return err
	}
	emit(out)
	return nil
}
