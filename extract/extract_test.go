package extract_test

import (
	"testing"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/extract"
	"github.com/pkg/errors"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		types  map[string]canopy.Type
		expErr bool
	}{
		{name: "anchored", expr: `^(?P<a>\d+)$`},
		{name: "no start anchor", expr: `(?P<a>\d+)$`, expErr: true},
		{name: "no end anchor", expr: `^(?P<a>\d+)`, expErr: true},
		{name: "bad regex", expr: `^(?P<a>\d+$`, expErr: true},
		{name: "type for missing group", expr: `^(?P<a>\d+)$`, types: map[string]canopy.Type{"b": canopy.TypeInt}, expErr: true},
		{name: "duplicate group", expr: `^(?P<a>\d+)-(?P<a>\d+)$`, expErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := extract.Compile(test.expr, test.types)
			if (err != nil) != test.expErr {
				t.Fatalf("got %v, expected error: %v", err, test.expErr)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	p := extract.MustCompile(`^(?P<name>\w+)=(?P<count>\d+)(?:/(?P<ratio>[\d.]+))?$`, map[string]canopy.Type{
		"count": canopy.TypeInt,
		"ratio": canopy.TypeString,
	})
	if fields := p.Fields().Names(); len(fields) != 3 {
		t.Fatalf("unexpected fields %v", fields)
	}

	rec, err := p.Extract("oak=12/0.5")
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	exp := canopy.NewRecord().
		MustSet("name", canopy.S("oak")).
		MustSet("count", canopy.I64(12)).
		MustSet("ratio", canopy.S("0.5"))
	if err := exp.Equal(rec); err != nil {
		t.Fatalf("unexpected record: %v", err)
	}

	// partial matches are rejected
	if _, err := p.Extract("xx oak=12"); err != extract.ErrNoMatch {
		t.Fatalf("got %v, expected %v", err, extract.ErrNoMatch)
	}

	_, err = p.Extract("oak=99999999999999999999999")
	cerr, ok := err.(*extract.ConversionError)
	if !ok {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if cerr.Field != "count" || cerr.Type != canopy.TypeInt {
		t.Fatalf("unexpected conversion error %v", cerr)
	}
}

func TestOperations(t *testing.T) {
	shape := extract.MustCompile(`^kind:\s*tree.*$`, nil)
	inner := extract.MustCompile(`^kind:\s*tree\s+id:\s*(?P<id>\d+)\s+species:\s*(?P<species>.+)$`, map[string]canopy.Type{"id": canopy.TypeInt})

	recs := []canopy.Record{
		canopy.NewRecord().MustSet("misc", canopy.S("kind: tree id: 5 species:  Coast Live OAK ")),
		canopy.NewRecord().MustSet("misc", canopy.S("kind: park")),
		canopy.NewRecord().MustSet("misc", canopy.S("kind: tree without an id")),
	}

	var filtered []canopy.Record
	for _, rec := range recs {
		err := extract.Filter{Field: "misc", Pattern: shape}.Operate(rec, func(r canopy.Record) { filtered = append(filtered, r) })
		if err != nil {
			t.Fatalf("filtering: %v", err)
		}
	}
	if len(filtered) != 2 {
		t.Fatalf("got %d records after filter, expected 2", len(filtered))
	}

	var parsed []canopy.Record
	emit := func(r canopy.Record) { parsed = append(parsed, r) }
	drop := extract.Parser{Field: "misc", Pattern: inner}
	for _, rec := range filtered {
		if err := drop.Operate(rec, emit); err != nil {
			t.Fatalf("parsing: %v", err)
		}
	}
	if len(parsed) != 1 {
		t.Fatalf("got %d records after parse, expected 1", len(parsed))
	}
	if id, err := parsed[0].Int("id"); err != nil || id != 5 {
		t.Fatalf("got id %d, err %v", id, err)
	}
	if !parsed[0].Has("misc") {
		t.Fatalf("parser should keep the input fields")
	}

	trap := extract.Parser{Field: "misc", Pattern: inner, OnMismatch: extract.Trap}
	err := trap.Operate(filtered[1], emit)
	if errors.Cause(err) != extract.ErrNoMatch {
		t.Fatalf("got %v, expected %v", err, extract.ErrNoMatch)
	}

	var normalized []canopy.Record
	err = extract.Normalize{From: "species", To: "species_key"}.Operate(parsed[0], func(r canopy.Record) { normalized = append(normalized, r) })
	if err != nil {
		t.Fatalf("normalizing: %v", err)
	}
	if key, _ := normalized[0].String("species_key"); key != "coast live oak" {
		t.Fatalf("got key %q", key)
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"  Asphalt Concrete ": "asphalt concrete",
		"PCC":                 "pcc",
		"":                    "",
		"\tcoast live oak\n":  "coast live oak",
	}
	for in, exp := range tests {
		if got := extract.NormalizeKey(in); got != exp {
			t.Fatalf("NormalizeKey(%q) = %q, expected %q", in, got, exp)
		}
	}
}
