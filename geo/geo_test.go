package geo_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/geo"
	"github.com/pilosa/canopy/mock"
)

func TestParsePolyline(t *testing.T) {
	points, err := geo.ParsePolyline("-122.1,37.4,10 -122.2,37.5,20\t-122.3,37.6,0\n")
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d points, expected 3", len(points))
	}
	if points[0] != (geo.Point{Lat: 37.4, Lng: -122.1, Alt: 10}) {
		t.Fatalf("unexpected first point %+v", points[0])
	}

	for _, bad := range []string{"-122.1", "a,b,c", "-122.1,37.4,10 -122.2,x,1"} {
		if _, err := geo.ParsePolyline(bad); err == nil {
			t.Fatalf("expected error parsing %q", bad)
		}
	}
}

func TestSegments(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for n := 0; n < 20; n++ {
		points := make([]geo.Point, n)
		for i := range points {
			points[i] = geo.Point{Lat: 37 + r.Float64(), Lng: -122 - r.Float64(), Alt: r.Float64() * 50}
		}
		segs := geo.Segments(points)
		exp := n - 1
		if n < 2 {
			exp = 0
		}
		if len(segs) != exp {
			t.Fatalf("%d points gave %d segments, expected %d", n, len(segs), exp)
		}
		for i, s := range segs {
			if s.A != points[i] || s.B != points[i+1] {
				t.Fatalf("segment %d out of order", i)
			}
			if s.Mid.Lat != (points[i].Lat+points[i+1].Lat)/2 ||
				s.Mid.Lng != (points[i].Lng+points[i+1].Lng)/2 ||
				s.Mid.Alt != (points[i].Alt+points[i+1].Alt)/2 {
				t.Fatalf("segment %d has midpoint %+v", i, s.Mid)
			}
			slope, intercept, err := s.Line()
			if err != nil {
				t.Fatalf("segment %d: %v", i, err)
			}
			for _, p := range []geo.Point{s.A, s.B} {
				if math.Abs(slope*p.Lng+intercept-p.Lat) > 1e-9 {
					t.Fatalf("endpoint %+v is not on lat = %v*lng + %v", p, slope, intercept)
				}
			}
		}
	}
}

func TestVerticalSegment(t *testing.T) {
	points := []geo.Point{
		{Lat: 37.1, Lng: -122.1},
		{Lat: 37.2, Lng: -122.1},
		{Lat: 37.3, Lng: -122.1},
	}
	segs := geo.Segments(points)
	if len(segs) != 2 {
		t.Fatalf("got %d segments", len(segs))
	}
	for _, s := range segs {
		if !s.Vertical {
			t.Fatalf("segment should be vertical: %+v", s)
		}
		if math.IsInf(s.Slope, 0) || math.IsNaN(s.Slope) || math.IsNaN(s.Intercept) {
			t.Fatalf("vertical segment has slope %v intercept %v", s.Slope, s.Intercept)
		}
		if _, _, err := s.Line(); err != geo.ErrVerticalSegment {
			t.Fatalf("got %v, expected %v", err, geo.ErrVerticalSegment)
		}
		if _, err := (geo.Perpendicular{MetersPerDegree: 1}).Distance(geo.Point{Lat: 37, Lng: -122}, s); err != geo.ErrVerticalSegment {
			t.Fatalf("got %v, expected %v", err, geo.ErrVerticalSegment)
		}
		if d, err := (geo.Midpoint{MetersPerDegree: 1}).Distance(geo.Point{Lat: 37, Lng: -122}, s); err != nil || d <= 0 {
			t.Fatalf("midpoint distance to vertical segment: %v, %v", d, err)
		}
	}
}

func TestMidpointDistance(t *testing.T) {
	s := geo.NewSegment(geo.Point{Lat: 37.40, Lng: -122.10}, geo.Point{Lat: 37.42, Lng: -122.12})
	m := geo.Midpoint{MetersPerDegree: geo.DefaultMetersPerDegree}
	d, err := m.Distance(s.Mid, s)
	if err != nil || d != 0 {
		t.Fatalf("distance to midpoint should be zero, got %v, %v", d, err)
	}
	for _, p := range []geo.Point{s.A, s.B, {Lat: 37.41, Lng: -122.1100001}, {Lat: 0, Lng: 0}} {
		d, err := m.Distance(p, s)
		if err != nil || d <= 0 {
			t.Fatalf("distance from %+v should be positive, got %v, %v", p, d, err)
		}
	}
	// a thousandth of a degree north of the midpoint
	d, _ = m.Distance(geo.Point{Lat: s.Mid.Lat + 0.001, Lng: s.Mid.Lng}, s)
	if math.Abs(d-111.12) > 1e-6 {
		t.Fatalf("got %v, expected 111.12", d)
	}
}

func TestMidpointDistanceTinyOffsets(t *testing.T) {
	s := geo.NewSegment(geo.Point{Lng: -1}, geo.Point{Lng: 1})
	m := geo.Midpoint{MetersPerDegree: 1}
	for _, off := range []float64{1e-170, -1e-200, 1e-300, 5e-324} {
		for _, p := range []geo.Point{{Lat: off}, {Lng: off}} {
			d, err := m.Distance(p, s)
			if err != nil || d <= 0 {
				t.Fatalf("distance from %+v should be positive, got %v, %v", p, d, err)
			}
		}
	}
}

func TestParsePointNotFinite(t *testing.T) {
	for _, bad := range []string{"nan,nan,0", "-122.1,NaN", "Inf,37.4,0", "-122.1,37.4,-Inf"} {
		if _, err := geo.ParsePoint(bad); err == nil {
			t.Fatalf("expected error parsing %q", bad)
		}
	}
}

func TestPerpendicularAndClipped(t *testing.T) {
	// lat = lng, from (0,0) to (1,1)
	s := geo.NewSegment(geo.Point{Lat: 0, Lng: 0}, geo.Point{Lat: 1, Lng: 1})
	perp := geo.Perpendicular{MetersPerDegree: 1}
	clip := geo.Clipped{MetersPerDegree: 1}

	d, err := perp.Distance(geo.Point{Lat: 1, Lng: 0}, s)
	if err != nil || math.Abs(d-math.Sqrt2/2) > 1e-12 {
		t.Fatalf("got %v, %v, expected %v", d, err, math.Sqrt2/2)
	}
	d, _ = clip.Distance(geo.Point{Lat: 1, Lng: 0}, s)
	if math.Abs(d-math.Sqrt2/2) > 1e-12 {
		t.Fatalf("got %v, expected %v", d, math.Sqrt2/2)
	}

	// beyond the end of the segment, on the line
	d, _ = perp.Distance(geo.Point{Lat: 3, Lng: 3}, s)
	if d > 1e-12 {
		t.Fatalf("perpendicular distance on the extended line should be 0, got %v", d)
	}
	d, _ = clip.Distance(geo.Point{Lat: 3, Lng: 3}, s)
	if math.Abs(d-2*math.Sqrt2) > 1e-12 {
		t.Fatalf("clipped distance got %v, expected %v", d, 2*math.Sqrt2)
	}
}

func TestStrategyByName(t *testing.T) {
	tests := []struct {
		name   string
		exp    geo.Strategy
		expErr bool
	}{
		{name: "", exp: geo.Midpoint{MetersPerDegree: 10}},
		{name: "midpoint", exp: geo.Midpoint{MetersPerDegree: 10}},
		{name: "perpendicular", exp: geo.Perpendicular{MetersPerDegree: 10}},
		{name: "segment", exp: geo.Clipped{MetersPerDegree: 10}},
		{name: "haversine", expErr: true},
	}
	for _, test := range tests {
		s, err := geo.StrategyByName(test.name, 10)
		if (err != nil) != test.expErr {
			t.Fatalf("%s: unexpected error %v", test.name, err)
		}
		if s != test.exp {
			t.Fatalf("%s: got %#v, expected %#v", test.name, s, test.exp)
		}
	}
	if _, err := geo.StrategyByName("midpoint", 0); err == nil {
		t.Fatalf("expected error for zero meters per degree")
	}
}

func TestSegmenterAndDistanceOp(t *testing.T) {
	rec := canopy.NewRecord().
		MustSet("road_name", canopy.S("Main")).
		MustSet("geo", canopy.S("-122.1,37.4,0 -122.1,37.5,0 -122.2,37.5,0"))

	var segs []canopy.Record
	err := geo.Segmenter{GeoField: "geo"}.Operate(rec, func(r canopy.Record) { segs = append(segs, r) })
	if err != nil {
		t.Fatalf("segmenting: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segment records, expected 2", len(segs))
	}
	if v, _ := segs[0].Int(geo.FieldVertical); v != 1 {
		t.Fatalf("first segment should be vertical")
	}
	if !geo.SegmentSchema.Complete(segs[1]) {
		t.Fatalf("segment record is missing fields: %v", segs[1].Names())
	}

	stats := &mock.RecordingStatter{}
	op := geo.DistanceOp{
		Strategy:    geo.Perpendicular{MetersPerDegree: geo.DefaultMetersPerDegree},
		LatField:    "tree_lat",
		LngField:    "tree_lng",
		ResultField: "tree_dist",
		Stats:       stats,
	}
	var out []canopy.Record
	for _, s := range segs {
		withTree := s.MustSet("tree_lat", canopy.F64(37.5001)).MustSet("tree_lng", canopy.F64(-122.15))
		if err := op.Operate(withTree, func(r canopy.Record) { out = append(out, r) }); err != nil {
			t.Fatalf("distance: %v", err)
		}
	}
	if len(out) != 1 {
		t.Fatalf("got %d records, expected the vertical segment to be skipped", len(out))
	}
	if stats.Counts["geo.vertical_skipped"] != 1 {
		t.Fatalf("unexpected counts %v", stats.Counts)
	}
	d, _ := out[0].Float("tree_dist")
	if math.Abs(d-0.0001*geo.DefaultMetersPerDegree) > 1e-6 {
		t.Fatalf("got distance %v", d)
	}

	err = geo.Segmenter{GeoField: "geo"}.Operate(canopy.NewRecord().MustSet("geo", canopy.S("-122.1,37.4,0")), func(canopy.Record) {})
	if err == nil {
		t.Fatalf("expected error for single point polyline")
	}
}
