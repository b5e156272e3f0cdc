package geo

import (
	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// ErrVerticalSegment is returned for slope/intercept math on a segment whose
// endpoints share a longitude.
const ErrVerticalSegment = canopy.Error("segment is vertical, slope is undefined")

// Segment is a straight piece of a road between two consecutive polyline
// points. The line through A and B is lat = Slope*lng + Intercept unless
// Vertical is set, in which case Slope is zero and Intercept holds the shared
// longitude.
type Segment struct {
	A, B      Point
	Mid       Point
	Slope     float64
	Intercept float64
	Vertical  bool
}

// NewSegment computes the midpoint and line of the segment from a to b.
func NewSegment(a, b Point) Segment {
	s := Segment{A: a, B: b, Mid: midpoint(a, b)}
	if a.Lng == b.Lng {
		s.Vertical = true
		s.Intercept = a.Lng
		return s
	}
	s.Slope = (b.Lat - a.Lat) / (b.Lng - a.Lng)
	s.Intercept = a.Lat - s.Slope*a.Lng
	return s
}

// Line returns the slope and intercept, or ErrVerticalSegment.
func (s Segment) Line() (slope, intercept float64, err error) {
	if s.Vertical {
		return 0, 0, ErrVerticalSegment
	}
	return s.Slope, s.Intercept, nil
}

// Segments returns one segment per consecutive pair of points, in order.
func Segments(points []Point) []Segment {
	if len(points) < 2 {
		return nil
	}
	ret := make([]Segment, 0, len(points)-1)
	for i := 0; i < len(points)-1; i++ {
		ret = append(ret, NewSegment(points[i], points[i+1]))
	}
	return ret
}

// Fields of a record emitted by Segmenter.
const (
	FieldLat0      = "lat0"
	FieldLng0      = "lng0"
	FieldAlt0      = "alt0"
	FieldLat1      = "lat1"
	FieldLng1      = "lng1"
	FieldAlt1      = "alt1"
	FieldLatMid    = "lat_mid"
	FieldLngMid    = "lng_mid"
	FieldSlope     = "slope"
	FieldIntercept = "intercept"
	FieldVertical  = "vertical"
)

// SegmentSchema is the schema of the fields Segmenter appends.
var SegmentSchema = canopy.Schema{
	{Name: FieldLat0, Type: canopy.TypeFloat},
	{Name: FieldLng0, Type: canopy.TypeFloat},
	{Name: FieldAlt0, Type: canopy.TypeFloat},
	{Name: FieldLat1, Type: canopy.TypeFloat},
	{Name: FieldLng1, Type: canopy.TypeFloat},
	{Name: FieldAlt1, Type: canopy.TypeFloat},
	{Name: FieldLatMid, Type: canopy.TypeFloat},
	{Name: FieldLngMid, Type: canopy.TypeFloat},
	{Name: FieldSlope, Type: canopy.TypeFloat},
	{Name: FieldIntercept, Type: canopy.TypeFloat},
	{Name: FieldVertical, Type: canopy.TypeInt},
}

// Segmenter is a canopy.Operation which splits the polyline in GeoField into
// segments, emitting a copy of the record per segment.
type Segmenter struct {
	GeoField string
}

// Operate implements canopy.Operation.
func (s Segmenter) Operate(rec canopy.Record, emit func(canopy.Record)) error {
	line, err := rec.String(s.GeoField)
	if err != nil {
		return errors.Wrap(err, "getting polyline")
	}
	points, err := ParsePolyline(line)
	if err != nil {
		return errors.Wrap(err, "parsing polyline")
	}
	if len(points) < 2 {
		return errors.Errorf("polyline has %d points, need at least 2", len(points))
	}
	for _, seg := range Segments(points) {
		out, err := rec.Merge(SegmentRecord(seg))
		if err != nil {
			return errors.Wrap(err, "appending segment")
		}
		emit(out)
	}
	return nil
}

// SegmentRecord returns the segment as a record of SegmentSchema fields.
func SegmentRecord(seg Segment) canopy.Record {
	var vertical int64
	if seg.Vertical {
		vertical = 1
	}
	return canopy.NewRecord().
		MustSet(FieldLat0, canopy.F64(seg.A.Lat)).
		MustSet(FieldLng0, canopy.F64(seg.A.Lng)).
		MustSet(FieldAlt0, canopy.F64(seg.A.Alt)).
		MustSet(FieldLat1, canopy.F64(seg.B.Lat)).
		MustSet(FieldLng1, canopy.F64(seg.B.Lng)).
		MustSet(FieldAlt1, canopy.F64(seg.B.Alt)).
		MustSet(FieldLatMid, canopy.F64(seg.Mid.Lat)).
		MustSet(FieldLngMid, canopy.F64(seg.Mid.Lng)).
		MustSet(FieldSlope, canopy.F64(seg.Slope)).
		MustSet(FieldIntercept, canopy.F64(seg.Intercept)).
		MustSet(FieldVertical, canopy.I64(vertical))
}

// SegmentFromRecord rebuilds a Segment from SegmentSchema fields.
func SegmentFromRecord(rec canopy.Record) (Segment, error) {
	var s Segment
	floats := []struct {
		name string
		dst  *float64
	}{
		{FieldLat0, &s.A.Lat}, {FieldLng0, &s.A.Lng}, {FieldAlt0, &s.A.Alt},
		{FieldLat1, &s.B.Lat}, {FieldLng1, &s.B.Lng}, {FieldAlt1, &s.B.Alt},
		{FieldLatMid, &s.Mid.Lat}, {FieldLngMid, &s.Mid.Lng},
		{FieldSlope, &s.Slope}, {FieldIntercept, &s.Intercept},
	}
	for _, f := range floats {
		v, err := rec.Float(f.name)
		if err != nil {
			return Segment{}, errors.Wrap(err, "reading segment")
		}
		*f.dst = v
	}
	vertical, err := rec.Int(FieldVertical)
	if err != nil {
		return Segment{}, errors.Wrap(err, "reading segment")
	}
	s.Vertical = vertical != 0
	s.Mid.Alt = (s.A.Alt + s.B.Alt) / 2
	return s, nil
}
