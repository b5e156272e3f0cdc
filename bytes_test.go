package canopy_test

import (
	"testing"

	"github.com/pilosa/canopy"
)

func TestBytesString(t *testing.T) {
	tests := []struct {
		b   canopy.Bytes
		exp string
	}{
		{0, "0"},
		{1, "1B"},
		{1023, "1023B"},
		{1024, "1K"},
		{1536, "1.5K"},
		{10 << 20, "10M"},
		{3 << 30, "3G"},
		{5 << 40, "5T"},
		{2048 << 40, "2048T"},
	}
	for i, test := range tests {
		if got := test.b.String(); got != test.exp {
			t.Errorf("test %d: got %s, expected %s", i, got, test.exp)
		}
	}
}
