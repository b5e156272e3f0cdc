// Package extract pulls typed fields out of free text with anchored regular
// expressions.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// ErrNoMatch is returned when text doesn't have the shape a Pattern requires.
const ErrNoMatch = canopy.Error("text does not match pattern")

// ConversionError is returned when a captured value matched the pattern but
// can't be converted to its declared type (e.g. a digit run which overflows
// int64).
type ConversionError struct {
	Field string
	Value string
	Type  canopy.Type
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %s '%s' to %v: %v", e.Field, e.Value, e.Type, e.Err)
}

// Pattern is a compiled, anchored regular expression whose named groups are
// the fields it extracts.
type Pattern struct {
	re     *regexp.Regexp
	fields []canopy.Field
	groups []int
}

// Compile compiles expr, which must begin with ^ and end with $. Each named
// group becomes a field; its type is looked up in types and defaults to
// string. Unnamed groups are not extracted.
func Compile(expr string, types map[string]canopy.Type) (*Pattern, error) {
	if !strings.HasPrefix(expr, "^") || !strings.HasSuffix(expr, "$") {
		return nil, errors.Errorf("pattern must be anchored with ^ and $: %s", expr)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrap(err, "compiling pattern")
	}
	p := &Pattern{re: re}
	seen := make(map[string]struct{})
	for i, name := range re.SubexpNames() {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			return nil, errors.Errorf("group '%s' appears twice in %s", name, expr)
		}
		seen[name] = struct{}{}
		p.fields = append(p.fields, canopy.Field{Name: name, Type: types[name]})
		p.groups = append(p.groups, i)
	}
	for name := range types {
		if _, ok := seen[name]; !ok {
			return nil, errors.Errorf("type given for '%s' which is not a group in %s", name, expr)
		}
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string, types map[string]canopy.Type) *Pattern {
	p, err := Compile(expr, types)
	if err != nil {
		panic(err)
	}
	return p
}

// Fields returns the fields the pattern extracts, in group order.
func (p *Pattern) Fields() canopy.Schema {
	ret := make(canopy.Schema, len(p.fields))
	copy(ret, p.fields)
	return ret
}

// Match reports whether s has the pattern's shape.
func (p *Pattern) Match(s string) bool {
	return p.re.MatchString(s)
}

// Extract returns a record of the typed values captured from s. It returns
// ErrNoMatch if s doesn't match and a *ConversionError if a value won't
// convert.
func (p *Pattern) Extract(s string) (canopy.Record, error) {
	m := p.re.FindStringSubmatch(s)
	if m == nil {
		return canopy.Record{}, ErrNoMatch
	}
	rec := canopy.NewRecord()
	for i, f := range p.fields {
		raw := m[p.groups[i]]
		v, err := canopy.ParseValue(f.Type, raw)
		if err != nil {
			return canopy.Record{}, &ConversionError{Field: f.Name, Value: raw, Type: f.Type, Err: err}
		}
		rec, err = rec.Set(f.Name, v)
		if err != nil {
			return canopy.Record{}, errors.Wrap(err, "setting extracted field")
		}
	}
	return rec, nil
}

// NormalizeKey is applied to extracted values which are later used as join
// keys so that matching ignores case and surrounding whitespace.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
