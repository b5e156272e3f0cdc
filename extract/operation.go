package extract

import (
	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// Mismatch says what a Parser does with text that doesn't match.
type Mismatch int

const (
	// Drop filters the record out of the stage.
	Drop Mismatch = iota
	// Trap fails the record with ErrNoMatch so that it lands in the trap.
	Trap
)

// Filter emits records whose Field matches Pattern unchanged and drops the
// rest. It is used to sort records into categories before parsing them.
type Filter struct {
	Field   string
	Pattern *Pattern
}

// Operate implements canopy.Operation.
func (f Filter) Operate(rec canopy.Record, emit func(canopy.Record)) error {
	s, err := rec.String(f.Field)
	if err != nil {
		return errors.Wrap(err, "getting filter field")
	}
	if f.Pattern.Match(s) {
		emit(rec)
	}
	return nil
}

// Parser appends the fields Pattern extracts from Field.
type Parser struct {
	Field      string
	Pattern    *Pattern
	OnMismatch Mismatch
}

// Operate implements canopy.Operation.
func (p Parser) Operate(rec canopy.Record, emit func(canopy.Record)) error {
	s, err := rec.String(p.Field)
	if err != nil {
		return errors.Wrap(err, "getting parse field")
	}
	ext, err := p.Pattern.Extract(s)
	if err == ErrNoMatch && p.OnMismatch == Drop {
		return nil
	} else if err != nil {
		return err
	}
	out, err := rec.Merge(ext)
	if err != nil {
		return errors.Wrap(err, "appending extracted fields")
	}
	emit(out)
	return nil
}

// Normalize appends To, the NormalizeKey of the string field From.
type Normalize struct {
	From string
	To   string
}

// Operate implements canopy.Operation.
func (n Normalize) Operate(rec canopy.Record, emit func(canopy.Record)) error {
	s, err := rec.String(n.From)
	if err != nil {
		return errors.Wrap(err, "getting field to normalize")
	}
	out, err := rec.Set(n.To, canopy.S(NormalizeKey(s)))
	if err != nil {
		return err
	}
	emit(out)
	return nil
}
