package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// DefaultMetersPerDegree converts degree-space distances to meters. It is
// 60 nautical miles, the length of a degree of latitude. A degree of
// longitude is shorter by cos(latitude), so every strategy here overstates
// east-west separation away from the equator; this is a local approximation,
// not a geodesic distance.
const DefaultMetersPerDegree = 111120.0

// Strategy estimates the distance in meters between a point and a segment.
type Strategy interface {
	Distance(p Point, s Segment) (float64, error)
}

// Midpoint measures to the segment's midpoint. It is the default since it
// works for every segment, vertical ones included.
type Midpoint struct {
	MetersPerDegree float64
}

// Distance implements Strategy.
func (m Midpoint) Distance(p Point, s Segment) (float64, error) {
	dlat := p.Lat - s.Mid.Lat
	dlng := p.Lng - s.Mid.Lng
	return math.Hypot(dlat, dlng) * m.MetersPerDegree, nil
}

// Perpendicular measures to the infinite line through the segment's
// endpoints. It is not clipped to the segment, so points beyond either end
// come out closer than they are, and it returns ErrVerticalSegment for
// vertical segments.
type Perpendicular struct {
	MetersPerDegree float64
}

// Distance implements Strategy.
func (pp Perpendicular) Distance(p Point, s Segment) (float64, error) {
	slope, intercept, err := s.Line()
	if err != nil {
		return 0, err
	}
	d := math.Abs(p.Lat-slope*p.Lng-intercept) / math.Sqrt(slope*slope+1)
	return d * pp.MetersPerDegree, nil
}

// Clipped measures to the nearest point of the finite segment in degree
// space.
type Clipped struct {
	MetersPerDegree float64
}

// Distance implements Strategy.
func (c Clipped) Distance(p Point, s Segment) (float64, error) {
	d := planar.DistanceFromSegment(
		orb.Point{s.A.Lng, s.A.Lat},
		orb.Point{s.B.Lng, s.B.Lat},
		orb.Point{p.Lng, p.Lat},
	)
	return d * c.MetersPerDegree, nil
}

// Strategy names accepted by StrategyByName.
const (
	StrategyMidpoint      = "midpoint"
	StrategyPerpendicular = "perpendicular"
	StrategySegment       = "segment"
)

// StrategyByName returns the named strategy. An empty name is the midpoint
// strategy.
func StrategyByName(name string, metersPerDegree float64) (Strategy, error) {
	if metersPerDegree <= 0 {
		return nil, errors.Errorf("meters per degree must be positive, got %v", metersPerDegree)
	}
	switch name {
	case StrategyMidpoint, "":
		return Midpoint{MetersPerDegree: metersPerDegree}, nil
	case StrategyPerpendicular:
		return Perpendicular{MetersPerDegree: metersPerDegree}, nil
	case StrategySegment:
		return Clipped{MetersPerDegree: metersPerDegree}, nil
	}
	return nil, errors.Errorf("unknown distance strategy '%s'", name)
}

// DistanceOp is a canopy.Operation which appends the distance between the
// point in LatField/LngField and the segment in the record's segment fields.
// Pairs whose distance is undefined for the strategy (vertical segments) are
// dropped and counted.
type DistanceOp struct {
	Strategy    Strategy
	LatField    string
	LngField    string
	ResultField string
	Stats       canopy.Statter
}

// Operate implements canopy.Operation.
func (d DistanceOp) Operate(rec canopy.Record, emit func(canopy.Record)) error {
	lat, err := rec.Float(d.LatField)
	if err != nil {
		return errors.Wrap(err, "getting point latitude")
	}
	lng, err := rec.Float(d.LngField)
	if err != nil {
		return errors.Wrap(err, "getting point longitude")
	}
	seg, err := SegmentFromRecord(rec)
	if err != nil {
		return err
	}
	dist, err := d.Strategy.Distance(Point{Lat: lat, Lng: lng}, seg)
	if err == ErrVerticalSegment {
		if d.Stats != nil {
			d.Stats.Count("geo.vertical_skipped", 1, 1)
		}
		return nil
	} else if err != nil {
		return errors.Wrap(err, "estimating distance")
	}
	out, err := rec.Set(d.ResultField, canopy.F64(dist))
	if err != nil {
		return err
	}
	emit(out)
	return nil
}
