package canopy

import (
	"strconv"

	"github.com/pkg/errors"
)

// Error is a string error type so that sentinel errors can be constants.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrFieldExists is returned when setting a field a record already has.
	// Records only ever grow as they pass through stages.
	ErrFieldExists = Error("field already exists")
	// ErrNoField is returned when reading a field a record doesn't have.
	ErrNoField = Error("no such field")
	// ErrWrongType is returned by the typed accessors.
	ErrWrongType = Error("field has wrong type")
)

// Type is the declared type of a field.
type Type int

const (
	TypeString Type = iota
	TypeInt
	TypeFloat
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	default:
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "string", "":
		return TypeString, nil
	case "int":
		return TypeInt, nil
	case "float":
		return TypeFloat, nil
	}
	return 0, errors.Errorf("unknown field type '%s'", s)
}

// Value is satisfied by the literal types a Record can hold.
type Value interface {
	Type() Type
	String() string
}

// S is a string value.
type S string

// I64 is an integer value.
type I64 int64

// F64 is a floating point value.
type F64 float64

func (S) Type() Type   { return TypeString }
func (I64) Type() Type { return TypeInt }
func (F64) Type() Type { return TypeFloat }

func (s S) String() string   { return string(s) }
func (i I64) String() string { return strconv.FormatInt(int64(i), 10) }

// String formats with the shortest representation that parses back to the
// same float.
func (f F64) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// ParseValue converts s to a Value of type t.
func ParseValue(t Type, s string) (Value, error) {
	switch t {
	case TypeString:
		return S(s), nil
	case TypeInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return I64(i), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return F64(f), nil
	}
	return nil, errors.Errorf("can't parse value of %v", t)
}

// Record is an ordered set of named, typed values. Stages append fields to
// records; fields are only ever removed by an explicit projection.
type Record struct {
	names  []string
	values []Value
}

// NewRecord returns an empty Record.
func NewRecord() Record {
	return Record{}
}

// Len is the number of fields in the record.
func (r Record) Len() int { return len(r.names) }

// Names returns the field names in order.
func (r Record) Names() []string {
	ret := make([]string, len(r.names))
	copy(ret, r.names)
	return ret
}

// Values returns the values in field order.
func (r Record) Values() []Value {
	ret := make([]Value, len(r.values))
	copy(ret, r.values)
	return ret
}

func (r Record) index(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Get returns the value of the named field.
func (r Record) Get(name string) (Value, bool) {
	i := r.index(name)
	if i < 0 {
		return nil, false
	}
	return r.values[i], true
}

// Has reports whether the record has the named field.
func (r Record) Has(name string) bool { return r.index(name) >= 0 }

// Set appends a field. The record returned shares nothing with the receiver
// so records held by other stages are never modified.
func (r Record) Set(name string, v Value) (Record, error) {
	if r.index(name) >= 0 {
		return r, errors.Wrap(ErrFieldExists, name)
	}
	if v == nil {
		return r, errors.Errorf("nil value for '%s'", name)
	}
	ret := Record{
		names:  make([]string, len(r.names), len(r.names)+1),
		values: make([]Value, len(r.values), len(r.values)+1),
	}
	copy(ret.names, r.names)
	copy(ret.values, r.values)
	ret.names = append(ret.names, name)
	ret.values = append(ret.values, v)
	return ret, nil
}

// MustSet is Set for literals in tests and fixed tables. It panics on error.
func (r Record) MustSet(name string, v Value) Record {
	ret, err := r.Set(name, v)
	if err != nil {
		panic(err)
	}
	return ret
}

// String gets a string field.
func (r Record) String(name string) (string, error) {
	v, ok := r.Get(name)
	if !ok {
		return "", errors.Wrap(ErrNoField, name)
	}
	s, ok := v.(S)
	if !ok {
		return "", errors.Wrapf(ErrWrongType, "%s is %v, not string", name, v.Type())
	}
	return string(s), nil
}

// Int gets an integer field.
func (r Record) Int(name string) (int64, error) {
	v, ok := r.Get(name)
	if !ok {
		return 0, errors.Wrap(ErrNoField, name)
	}
	i, ok := v.(I64)
	if !ok {
		return 0, errors.Wrapf(ErrWrongType, "%s is %v, not int", name, v.Type())
	}
	return int64(i), nil
}

// Float gets a float field. Integer fields are widened.
func (r Record) Float(name string) (float64, error) {
	v, ok := r.Get(name)
	if !ok {
		return 0, errors.Wrap(ErrNoField, name)
	}
	switch vt := v.(type) {
	case F64:
		return float64(vt), nil
	case I64:
		return float64(vt), nil
	}
	return 0, errors.Wrapf(ErrWrongType, "%s is %v, not float", name, v.Type())
}

// Retain projects the record onto the given fields, in the given order.
func (r Record) Retain(names ...string) (Record, error) {
	ret := Record{
		names:  make([]string, 0, len(names)),
		values: make([]Value, 0, len(names)),
	}
	for _, name := range names {
		v, ok := r.Get(name)
		if !ok {
			return Record{}, errors.Wrapf(ErrNoField, "retaining %s", name)
		}
		ret.names = append(ret.names, name)
		ret.values = append(ret.values, v)
	}
	return ret, nil
}

// Rename returns a copy of the record with field from called to.
func (r Record) Rename(from, to string) (Record, error) {
	i := r.index(from)
	if i < 0 {
		return r, errors.Wrapf(ErrNoField, "renaming %s", from)
	}
	if from != to && r.index(to) >= 0 {
		return r, errors.Wrapf(ErrFieldExists, "renaming %s to %s", from, to)
	}
	ret := r.Clone()
	ret.names[i] = to
	return ret, nil
}

// Merge concatenates other onto r. Duplicate field names are an error.
func (r Record) Merge(other Record) (Record, error) {
	ret := Record{
		names:  make([]string, 0, len(r.names)+len(other.names)),
		values: make([]Value, 0, len(r.values)+len(other.values)),
	}
	ret.names = append(ret.names, r.names...)
	ret.values = append(ret.values, r.values...)
	for i, name := range other.names {
		if r.index(name) >= 0 {
			return Record{}, errors.Wrapf(ErrFieldExists, "merging %s", name)
		}
		ret.names = append(ret.names, name)
		ret.values = append(ret.values, other.values[i])
	}
	return ret, nil
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	ret := Record{
		names:  make([]string, len(r.names)),
		values: make([]Value, len(r.values)),
	}
	copy(ret.names, r.names)
	copy(ret.values, r.values)
	return ret
}

// Equal returns a descriptive error if the records differ in field order,
// names, types or values.
func (r Record) Equal(r2 Record) error {
	if len(r.names) != len(r2.names) {
		return errors.Errorf("records have different number of fields, %d and %d: %v, %v", len(r.names), len(r2.names), r.names, r2.names)
	}
	for i, name := range r.names {
		if r2.names[i] != name {
			return errors.Errorf("field %d is '%s' and '%s'", i, name, r2.names[i])
		}
		if r.values[i] != r2.values[i] {
			return errors.Errorf("%s: '%v' (%T) != '%v' (%T)", name, r.values[i], r.values[i], r2.values[i], r2.values[i])
		}
	}
	return nil
}
