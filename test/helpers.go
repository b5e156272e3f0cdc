// Package test holds helpers shared by the package tests.
package test

import (
	"reflect"
	"sort"
	"testing"

	"github.com/pilosa/canopy"
)

// MustBe uses reflect.DeepEqual to assert that thing1 and thing2 are equal, and
// fails otherwise.
func MustBe(t testing.TB, thing1, thing2 interface{}, context ...string) {
	t.Helper()
	var ctx string
	if len(context) == 0 {
		ctx = ""
	} else {
		ctx = context[0] + ": "
	}
	if !reflect.DeepEqual(thing1, thing2) {
		t.Fatalf("%v'%#v' != '%#v'", ctx, thing1, thing2)
	}
}

// ErrNil asserts that the err is nil and fails otherwise.
func ErrNil(t testing.TB, err error, ctx string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// Multiset returns the sorted encodings of recs so that datasets with no
// defined order can be compared.
func Multiset(recs []canopy.Record) []string {
	ret := make([]string, len(recs))
	for i, r := range recs {
		ret[i] = string(canopy.MarshalRecord(r))
	}
	sort.Strings(ret)
	return ret
}

// SameRecords asserts that got and exp hold the same records, ignoring order.
func SameRecords(t testing.TB, got, exp []canopy.Record, ctx string) {
	t.Helper()
	g, e := Multiset(got), Multiset(exp)
	if len(g) != len(e) {
		t.Fatalf("%v: got %d records, expected %d", ctx, len(g), len(e))
	}
	for i := range g {
		if g[i] != e[i] {
			t.Fatalf("%v: records differ at %d: %q != %q", ctx, i, g[i], e[i])
		}
	}
}
