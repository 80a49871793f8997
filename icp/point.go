package icp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Point is a dimension-agnostic coordinate container.
// Copies of a Point share their coordinates; use Clone for an independent copy.
type Point struct {
	coords []float64
}

// NewPoint creates a point from the given coordinates.
func NewPoint(coords ...float64) Point {
	p := Point{}
	p.SetPoints(coords)
	return p
}

// Point2D creates a 2D point.
func Point2D(x, y float64) Point {
	return Point{coords: []float64{x, y}}
}

// Point3D creates a 3D point.
func Point3D(x, y, z float64) Point {
	return Point{coords: []float64{x, y, z}}
}

// Prepare appends size zero-valued slots. Use it on an empty point before
// writing coordinates with SetValue.
func (p *Point) Prepare(size int) {
	for i := 0; i < size; i++ {
		p.coords = append(p.coords, 0)
	}
}

// SetValue writes value at position pos.
func (p *Point) SetValue(value float64, pos int) error {
	if pos < 0 || pos >= len(p.coords) {
		return errors.Wrapf(ErrIndexOutOfRange, "set position %d of %d-dimensional point", pos, len(p.coords))
	}
	p.coords[pos] = value
	return nil
}

// SetPoints appends values to the point's coordinates.
func (p *Point) SetPoints(values []float64) {
	p.coords = append(p.coords, values...)
}

// Size returns the dimension of the point.
func (p Point) Size() int {
	return len(p.coords)
}

// At returns the coordinate at index i. Like a slice index it panics when i
// is out of range; use Value for a checked read.
func (p Point) At(i int) float64 {
	return p.coords[i]
}

// Value returns the coordinate at position pos.
func (p Point) Value(pos int) (float64, error) {
	if pos < 0 || pos >= len(p.coords) {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "read position %d of %d-dimensional point", pos, len(p.coords))
	}
	return p.coords[pos], nil
}

// Coords returns a copy of the coordinates.
func (p Point) Coords() []float64 {
	out := make([]float64, len(p.coords))
	copy(out, p.coords)
	return out
}

// Clone returns a copy that does not share storage with p.
func (p Point) Clone() Point {
	return Point{coords: p.Coords()}
}

// Sub returns p - other. The result has other's dimension, so p must have at
// least as many coordinates as other.
func (p Point) Sub(other Point) (Point, error) {
	if len(p.coords) < len(other.coords) {
		return Point{}, errors.Wrapf(ErrInvalidInput, "subtract %d-dimensional point from %d-dimensional point",
			len(other.coords), len(p.coords))
	}
	var diff Point
	diff.Prepare(other.Size())
	for i := range other.coords {
		diff.coords[i] = p.coords[i] - other.coords[i]
	}
	return diff, nil
}

// DistanceTo returns the Euclidean distance to other, computed over other's dimension.
func (p Point) DistanceTo(other Point) (float64, error) {
	if len(p.coords) < len(other.coords) {
		return 0, errors.Wrapf(ErrInvalidInput, "distance from %d-dimensional point to %d-dimensional point",
			len(p.coords), len(other.coords))
	}
	return math.Sqrt(squaredDistance(p, other)), nil
}

// squaredDistance assumes a has at least b's dimension.
func squaredDistance(a, b Point) float64 {
	sum := 0.0
	for i, v := range b.coords {
		d := a.coords[i] - v
		sum += d * d
	}
	return sum
}

// PointsFromMatrix converts each row of m into a Point.
func PointsFromMatrix(m mat.Matrix) []Point {
	rows, cols := m.Dims()
	points := make([]Point, rows)
	for r := 0; r < rows; r++ {
		var p Point
		p.Prepare(cols)
		for c := 0; c < cols; c++ {
			p.coords[c] = m.At(r, c)
		}
		points[r] = p
	}
	return points
}

// MatrixFromPoints packs points into a matrix with one row per point.
// All points must share the same, non-zero dimension.
func MatrixFromPoints(points []Point) (*mat.Dense, error) {
	if len(points) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "no points")
	}
	cols := points[0].Size()
	if cols == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "zero-dimensional point")
	}
	data := make([]float64, 0, len(points)*cols)
	for i, p := range points {
		if p.Size() != cols {
			return nil, errors.Wrapf(ErrInvalidInput, "point %d has dimension %d, want %d", i, p.Size(), cols)
		}
		data = append(data, p.coords...)
	}
	return mat.NewDense(len(points), cols, data), nil
}
