package canopy_test

import (
	"fmt"
	"testing"

	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

func TestMarshalRecord(t *testing.T) {
	tests := []canopy.Record{
		canopy.NewRecord(),
		canopy.NewRecord().MustSet("a", canopy.S("")),
		canopy.NewRecord().MustSet("a", canopy.S("hel+lorésumé.\t\n")),
		canopy.NewRecord().MustSet("i", canopy.I64(-8446744100000000000)).MustSet("f", canopy.F64(37.4419)),
		canopy.NewRecord().MustSet("f", canopy.F64(0.1)).MustSet("g", canopy.F64(-122.14301)).MustSet("s", canopy.S("x")),
	}

	for i, tst := range tests {
		t.Run(fmt.Sprintf("%d: ", i), func(t *testing.T) {
			bs := canopy.MarshalRecord(tst)
			rec, err := canopy.UnmarshalRecord(bs)
			if err != nil {
				t.Fatalf("unmarshaling: %v", err)
			}
			if err := tst.Equal(rec); err != nil {
				t.Fatalf("round trip: %v", err)
			}
		})
	}
}

func TestUnmarshalRecordTruncated(t *testing.T) {
	bs := canopy.MarshalRecord(canopy.NewRecord().MustSet("name", canopy.S("value")))
	_, err := canopy.UnmarshalRecord(bs[:len(bs)-2])
	if err == nil {
		t.Fatalf("expected error for truncated record")
	}
}

func TestSet(t *testing.T) {
	rec := canopy.NewRecord().MustSet("a", canopy.S("x"))
	rec2, err := rec.Set("b", canopy.I64(1))
	if err != nil {
		t.Fatalf("setting b: %v", err)
	}
	if rec.Has("b") {
		t.Fatalf("Set modified its receiver")
	}
	if names := rec2.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names %v", names)
	}
	_, err = rec2.Set("a", canopy.S("y"))
	if errors.Cause(err) != canopy.ErrFieldExists {
		t.Fatalf("got %v, expected %v", err, canopy.ErrFieldExists)
	}
}

func TestAccessors(t *testing.T) {
	rec := canopy.NewRecord().
		MustSet("s", canopy.S("str")).
		MustSet("i", canopy.I64(7)).
		MustSet("f", canopy.F64(1.5))

	tests := []struct {
		name   string
		get    func() (interface{}, error)
		exp    interface{}
		expErr error
	}{
		{name: "string", get: func() (interface{}, error) { return rec.String("s") }, exp: "str"},
		{name: "int", get: func() (interface{}, error) { return rec.Int("i") }, exp: int64(7)},
		{name: "float", get: func() (interface{}, error) { return rec.Float("f") }, exp: 1.5},
		{name: "int as float", get: func() (interface{}, error) { return rec.Float("i") }, exp: 7.0},
		{name: "missing", get: func() (interface{}, error) { return rec.String("nope") }, exp: "", expErr: canopy.ErrNoField},
		{name: "string as int", get: func() (interface{}, error) { return rec.Int("s") }, exp: int64(0), expErr: canopy.ErrWrongType},
		{name: "string as float", get: func() (interface{}, error) { return rec.Float("s") }, exp: 0.0, expErr: canopy.ErrWrongType},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			val, err := test.get()
			if errors.Cause(err) != test.expErr {
				t.Fatalf("got %v, expected %v", err, test.expErr)
			}
			if val != test.exp {
				t.Fatalf("got %v, expected %v", val, test.exp)
			}
		})
	}
}

func TestRetainRenameMerge(t *testing.T) {
	rec := canopy.NewRecord().
		MustSet("a", canopy.S("1")).
		MustSet("b", canopy.S("2")).
		MustSet("c", canopy.S("3"))

	ret, err := rec.Retain("c", "a")
	if err != nil {
		t.Fatalf("retaining: %v", err)
	}
	exp := canopy.NewRecord().MustSet("c", canopy.S("3")).MustSet("a", canopy.S("1"))
	if err := exp.Equal(ret); err != nil {
		t.Fatalf("unexpected projection: %v", err)
	}
	if _, err := rec.Retain("z"); errors.Cause(err) != canopy.ErrNoField {
		t.Fatalf("got %v, expected %v", err, canopy.ErrNoField)
	}

	ren, err := rec.Rename("b", "bee")
	if err != nil {
		t.Fatalf("renaming: %v", err)
	}
	if !ren.Has("bee") || ren.Has("b") || !rec.Has("b") {
		t.Fatalf("unexpected rename result %v (orig %v)", ren.Names(), rec.Names())
	}
	if _, err := rec.Rename("a", "c"); errors.Cause(err) != canopy.ErrFieldExists {
		t.Fatalf("got %v, expected %v", err, canopy.ErrFieldExists)
	}

	other := canopy.NewRecord().MustSet("d", canopy.I64(4))
	merged, err := rec.Merge(other)
	if err != nil {
		t.Fatalf("merging: %v", err)
	}
	if merged.Len() != 4 {
		t.Fatalf("got %d fields, expected 4", merged.Len())
	}
	if _, err := rec.Merge(rec); errors.Cause(err) != canopy.ErrFieldExists {
		t.Fatalf("got %v, expected %v", err, canopy.ErrFieldExists)
	}
}

func TestSchema(t *testing.T) {
	s, err := canopy.ParseSchema("name:string\tcount:int\tdist:float\tbare")
	if err != nil {
		t.Fatalf("parsing schema: %v", err)
	}
	if s.Header() != "name:string\tcount:int\tdist:float\tbare:string" {
		t.Fatalf("unexpected header %q", s.Header())
	}
	if _, err := canopy.ParseSchema("a\ta"); err == nil {
		t.Fatalf("expected duplicate field error")
	}
	if _, err := canopy.ParseSchema("a:decimal"); err == nil {
		t.Fatalf("expected unknown type error")
	}

	rec := canopy.NewRecord().
		MustSet("dist", canopy.I64(3)).
		MustSet("name", canopy.S("oak")).
		MustSet("count", canopy.S("12")).
		MustSet("bare", canopy.F64(2.5)).
		MustSet("extra", canopy.S("dropped"))
	if !s.Complete(rec) {
		t.Fatalf("record should be complete for %v", s.Names())
	}
	co, err := s.Coerce(rec)
	if err != nil {
		t.Fatalf("coercing: %v", err)
	}
	exp := canopy.NewRecord().
		MustSet("name", canopy.S("oak")).
		MustSet("count", canopy.I64(12)).
		MustSet("dist", canopy.F64(3)).
		MustSet("bare", canopy.S("2.5"))
	if err := exp.Equal(co); err != nil {
		t.Fatalf("unexpected coercion: %v", err)
	}

	incomplete := canopy.NewRecord().MustSet("name", canopy.S(""))
	if s.Complete(incomplete) {
		t.Fatalf("record with empty and missing fields should be incomplete")
	}
}

func TestFilter(t *testing.T) {
	f := canopy.Filter{Predicate: canopy.FloatAtMost{Field: "d", Max: 25}}
	var out []canopy.Record
	emit := func(r canopy.Record) { out = append(out, r) }
	for _, d := range []float64{0, 25, 25.0001, 100} {
		if err := f.Operate(canopy.NewRecord().MustSet("d", canopy.F64(d)), emit); err != nil {
			t.Fatalf("filtering %v: %v", d, err)
		}
	}
	if len(out) != 2 {
		t.Fatalf("got %d records, expected 2", len(out))
	}
	if err := f.Operate(canopy.NewRecord(), emit); err == nil {
		t.Fatalf("expected error for record without field")
	}
}
