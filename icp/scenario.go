package icp

import (
	"math"
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Scenario is a generated registration problem with its known answer.
type Scenario struct {
	Reference *mat.Dense
	Target    *mat.Dense

	// Rotation and Translation move Reference onto the noise-free Target
	// in the form used by ApplyTransformation.
	Rotation    *mat.Dense
	Translation *mat.Dense
	Bound       orb.Bound // xy extent the reference was drawn from
}

// Validate checks the scenario against the dimensionality it will be built for.
func (s ScenarioConfig) Validate(dims Dimensionality) error {
	if s.Points < 1 {
		return errors.Wrapf(ErrInvalidInput, "points %d", s.Points)
	}
	if !(s.Extent > 0) || math.IsInf(s.Extent, 0) {
		return errors.Wrapf(ErrInvalidInput, "extent %v", s.Extent)
	}
	if s.Noise < 0 || math.IsNaN(s.Noise) || math.IsInf(s.Noise, 0) {
		return errors.Wrapf(ErrInvalidInput, "noise %v", s.Noise)
	}
	if math.IsNaN(s.RotationDeg) || math.IsInf(s.RotationDeg, 0) {
		return errors.Wrapf(ErrInvalidInput, "rotation %v", s.RotationDeg)
	}
	if len(s.Translation) != 0 && len(s.Translation) != int(dims) {
		return errors.Wrapf(ErrInvalidInput, "translation has %d components for %s points", len(s.Translation), dims)
	}
	return nil
}

// Build draws Points reference points uniformly from the square (or cube)
// [0, Extent) and derives the target as
//
//	target = ApplyTransformation(reference, Translation, RotationFromDegrees(RotationDeg)) + noise
//
// The same Seed always produces the same scenario.
func (s ScenarioConfig) Build(dims Dimensionality) (*Scenario, error) {
	if !dims.Valid() {
		return nil, errors.Wrapf(ErrInvalidInput, "dimensionality %d", int(dims))
	}
	if err := s.Validate(dims); err != nil {
		return nil, err
	}

	d := int(dims)
	rng := rand.New(rand.NewSource(s.Seed))
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{s.Extent, s.Extent}}

	reference := mat.NewDense(s.Points, d, nil)
	for r := 0; r < s.Points; r++ {
		reference.Set(r, 0, bound.Min.X()+rng.Float64()*(bound.Max.X()-bound.Min.X()))
		reference.Set(r, 1, bound.Min.Y()+rng.Float64()*(bound.Max.Y()-bound.Min.Y()))
		if dims == ThreeD {
			reference.Set(r, 2, rng.Float64()*s.Extent)
		}
	}

	translation := ZeroVector(d)
	for i, v := range s.Translation {
		translation.Set(i, 0, v)
	}
	rotation := RotationFromDegrees(s.RotationDeg, d)

	target, err := ApplyTransformation(reference, translation, rotation)
	if err != nil {
		return nil, err
	}
	if s.Noise > 0 {
		for r := 0; r < s.Points; r++ {
			row := target.RawRowView(r)
			for c := range row {
				row[c] += rng.NormFloat64() * s.Noise
			}
		}
	}

	return &Scenario{
		Reference:   reference,
		Target:      target,
		Rotation:    rotation,
		Translation: translation,
		Bound:       bound,
	}, nil
}
