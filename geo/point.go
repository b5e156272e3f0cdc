// Package geo splits road polylines into segments and estimates how far
// points are from them.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Point is a WGS84-like position in degrees, with altitude.
type Point struct {
	Lat float64
	Lng float64
	Alt float64
}

// ParsePoint parses "lng,lat,alt". The altitude may be omitted.
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 && len(parts) != 3 {
		return Point{}, errors.Errorf("point '%s' should be lng,lat[,alt]", s)
	}
	var p Point
	var err error
	if p.Lng, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return Point{}, errors.Wrapf(err, "parsing longitude of '%s'", s)
	}
	if p.Lat, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return Point{}, errors.Wrapf(err, "parsing latitude of '%s'", s)
	}
	if len(parts) == 3 {
		if p.Alt, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return Point{}, errors.Wrapf(err, "parsing altitude of '%s'", s)
		}
	}
	for _, f := range []float64{p.Lat, p.Lng, p.Alt} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Point{}, errors.Errorf("point '%s' is not finite", s)
		}
	}
	return p, nil
}

// ParsePolyline parses whitespace separated points, in order.
func ParsePolyline(s string) ([]Point, error) {
	fields := strings.Fields(s)
	points := make([]Point, 0, len(fields))
	for i, f := range fields {
		p, err := ParsePoint(f)
		if err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		points = append(points, p)
	}
	return points, nil
}

// midpoint is the coordinate-wise mean of a and b.
func midpoint(a, b Point) Point {
	return Point{
		Lat: (a.Lat + b.Lat) / 2,
		Lng: (a.Lng + b.Lng) / 2,
		Alt: (a.Alt + b.Alt) / 2,
	}
}
