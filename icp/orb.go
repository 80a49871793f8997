package icp

import (
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PointFromOrb converts a planar orb point.
func PointFromOrb(p orb.Point) Point {
	return Point2D(p.X(), p.Y())
}

// Orb returns the x and y coordinates of p as an orb point.
// Missing coordinates are zero; coordinates past the second are dropped.
func (p Point) Orb() orb.Point {
	var out orb.Point
	for i := 0; i < len(p.coords) && i < 2; i++ {
		out[i] = p.coords[i]
	}
	return out
}

// MatrixFromOrb packs a multipoint into an n x 2 matrix, one point per row.
func MatrixFromOrb(mp orb.MultiPoint) (*mat.Dense, error) {
	if len(mp) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "empty multipoint")
	}
	m := mat.NewDense(len(mp), 2, nil)
	for i, p := range mp {
		m.Set(i, 0, p.X())
		m.Set(i, 1, p.Y())
	}
	return m, nil
}

// MatrixToOrb converts the rows of an n x 2 matrix to a multipoint.
func MatrixToOrb(m mat.Matrix) (orb.MultiPoint, error) {
	rows, cols := m.Dims()
	if cols != int(TwoD) {
		return nil, errors.Wrapf(ErrInvalidInput, "matrix has %d columns, want 2", cols)
	}
	mp := make(orb.MultiPoint, rows)
	for r := 0; r < rows; r++ {
		mp[r] = orb.Point{m.At(r, 0), m.At(r, 1)}
	}
	return mp, nil
}

// PlanarBound returns the xy bounding box of a point set with at least two columns.
func PlanarBound(m mat.Matrix) (orb.Bound, error) {
	rows, cols := m.Dims()
	if rows == 0 || cols < 2 {
		return orb.Bound{}, errors.Wrapf(ErrInvalidInput, "%dx%d point set has no planar bound", rows, cols)
	}
	mp := make(orb.MultiPoint, rows)
	for r := 0; r < rows; r++ {
		mp[r] = orb.Point{m.At(r, 0), m.At(r, 1)}
	}
	return mp.Bound(), nil
}
