// Package geohash buckets points by geohash prefix so that nearby points can
// be found with an equi-join.
package geohash

import (
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// DefaultPrecision is six characters, cells of roughly 1.2km by 0.6km.
const DefaultPrecision = 6

// MaxPrecision is the longest hash whose bits fit in a uint64.
const MaxPrecision = 12

// Encode returns the geohash of the point truncated to precision characters.
// Points close to each other but on either side of a cell edge get different
// hashes, so joining on hashes misses some nearby pairs.
func Encode(lat, lng float64, precision int) (string, error) {
	if precision < 1 || precision > MaxPrecision {
		return "", errors.Errorf("precision %d out of range [1, %d]", precision, MaxPrecision)
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", errors.Errorf("point (%v, %v) out of range", lat, lng)
	}
	return geohash.EncodeWithPrecision(lat, lng, uint(precision)), nil
}

// Transformer is a canopy.Operation for geohashing locations to strings.
type Transformer struct {
	Precision   int
	LatField    string
	LngField    string
	ResultField string
}

// Operate hashes the latitude and longitude in the given fields and appends
// the resulting string as ResultField.
func (t Transformer) Operate(rec canopy.Record, emit func(canopy.Record)) error {
	latitude, err := rec.Float(t.LatField)
	if err != nil {
		return errors.Wrap(err, "getting latitude")
	}
	longitude, err := rec.Float(t.LngField)
	if err != nil {
		return errors.Wrap(err, "getting longitude")
	}
	hsh, err := Encode(latitude, longitude, t.Precision)
	if err != nil {
		return errors.Wrap(err, "hashing")
	}
	out, err := rec.Set(t.ResultField, canopy.S(hsh))
	if err != nil {
		return errors.Wrap(err, "setting result")
	}
	emit(out)
	return nil
}
