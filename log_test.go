package canopy_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/mock"
)

func TestNewLogger(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		buf := &bytes.Buffer{}
		l := canopy.NewLogger(buf, verbose)
		l.Printf("read %d lines", 3)
		l.Debugf("stage %s", "gis_parse")
		out := buf.String()
		if !strings.Contains(out, "read 3 lines") {
			t.Fatalf("verbose=%v: Printf line missing from %q", verbose, out)
		}
		if got := strings.Contains(out, "DEBUG stage gis_parse"); got != verbose {
			t.Fatalf("verbose=%v: got debug line %v in %q", verbose, got, out)
		}
	}
}

func TestTimed(t *testing.T) {
	stats := &mock.RecordingStatter{}
	done := canopy.Timed(stats, "stage.x")
	if stats.Timings["stage.x"] != 0 {
		t.Fatalf("timing reported before done")
	}
	done()
	done()
	if got := stats.Timings["stage.x"]; got != 2 {
		t.Fatalf("got %d timings, expected 2", got)
	}
}
