package canopy

import (
	"strings"

	"github.com/pkg/errors"
)

// Field is a named, typed column of a Schema.
type Field struct {
	Name string
	Type Type
}

// Schema is the ordered list of fields a dataset is declared to have. Sinks
// and checkpoints write exactly these fields.
type Schema []Field

// Strings is a convenience for declaring all-string schemas.
func Strings(names ...string) Schema {
	s := make(Schema, len(names))
	for i, n := range names {
		s[i] = Field{Name: n, Type: TypeString}
	}
	return s
}

// ParseSchema parses a tab separated header of name:type pairs. A bare name
// is a string field.
func ParseSchema(header string) (Schema, error) {
	parts := strings.Split(header, "\t")
	s := make(Schema, 0, len(parts))
	seen := make(map[string]int)
	for i, p := range parts {
		name, typ := p, ""
		if j := strings.LastIndex(p, ":"); j >= 0 {
			name, typ = p[:j], p[j+1:]
		}
		if name == "" {
			return nil, errors.Errorf("header contains empty name at %d: %v", i, parts)
		}
		if pos, ok := seen[name]; ok {
			return nil, errors.Errorf("%s appeared at both %d and %d in header", name, pos, i)
		}
		seen[name] = i
		t, err := ParseType(typ)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing type of %s", name)
		}
		s = append(s, Field{Name: name, Type: t})
	}
	return s, nil
}

// Header is the inverse of ParseSchema.
func (s Schema) Header() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return strings.Join(parts, "\t")
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	ret := make([]string, len(s))
	for i, f := range s {
		ret[i] = f.Name
	}
	return ret
}

// Complete reports whether rec has every field of the schema with a
// non-empty value.
func (s Schema) Complete(rec Record) bool {
	for _, f := range s {
		v, ok := rec.Get(f.Name)
		if !ok {
			return false
		}
		if str, ok := v.(S); ok && str == "" {
			return false
		}
	}
	return true
}

// Coerce projects rec onto the schema and converts each value to the declared
// type. Integer values widen to floats and anything can become a string;
// other conversions go through the value's string form.
func (s Schema) Coerce(rec Record) (Record, error) {
	ret := Record{
		names:  make([]string, 0, len(s)),
		values: make([]Value, 0, len(s)),
	}
	for _, f := range s {
		v, ok := rec.Get(f.Name)
		if !ok {
			return Record{}, errors.Wrapf(ErrNoField, "coercing %s", f.Name)
		}
		if v.Type() != f.Type {
			var err error
			v, err = ParseValue(f.Type, v.String())
			if err != nil {
				return Record{}, errors.Wrapf(err, "converting %s to %v", f.Name, f.Type)
			}
		}
		ret.names = append(ret.names, f.Name)
		ret.values = append(ret.values, v)
	}
	return ret, nil
}
