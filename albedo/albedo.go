// Package albedo estimates the reflectivity of a road surface.
package albedo

import (
	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// DefaultYearThreshold is the construction year from which a surface counts
// as new.
const DefaultYearThreshold = 2002

// Estimate returns albedoNew for surfaces constructed in or after threshold
// and albedoWorn for older ones.
func Estimate(yearConstruct int64, albedoNew, albedoWorn float64, threshold int64) float64 {
	if yearConstruct >= threshold {
		return albedoNew
	}
	return albedoWorn
}

// Estimator is a canopy.Operation which appends the estimated albedo of a
// road record.
type Estimator struct {
	YearThreshold int64

	YearField   string
	NewField    string
	WornField   string
	ResultField string
}

// NewEstimator returns an Estimator using the field names of the road
// dataset.
func NewEstimator(threshold int64) Estimator {
	return Estimator{
		YearThreshold: threshold,
		YearField:     "year_construct",
		NewField:      "albedo_new",
		WornField:     "albedo_worn",
		ResultField:   "albedo",
	}
}

// Operate implements canopy.Operation.
func (e Estimator) Operate(rec canopy.Record, emit func(canopy.Record)) error {
	year, err := rec.Int(e.YearField)
	if err != nil {
		return errors.Wrap(err, "getting construction year")
	}
	an, err := rec.Float(e.NewField)
	if err != nil {
		return errors.Wrap(err, "getting new albedo")
	}
	aw, err := rec.Float(e.WornField)
	if err != nil {
		return errors.Wrap(err, "getting worn albedo")
	}
	out, err := rec.Set(e.ResultField, canopy.F64(Estimate(year, an, aw, e.YearThreshold)))
	if err != nil {
		return err
	}
	emit(out)
	return nil
}
