package icp

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPoint_PrepareAndSetValue(t *testing.T) {
	var p Point
	p.Prepare(3)
	require.Equal(t, 3, p.Size())

	require.NoError(t, p.SetValue(1.5, 0))
	require.NoError(t, p.SetValue(-2, 2))
	assert.Equal(t, []float64{1.5, 0, -2}, p.Coords())

	err := p.SetValue(4, 3)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange), "got %v", err)
	err = p.SetValue(4, -1)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange), "got %v", err)
}

func TestPoint_SetPointsAppends(t *testing.T) {
	p := NewPoint(1)
	p.SetPoints([]float64{2, 3})
	assert.Equal(t, []float64{1, 2, 3}, p.Coords())
}

func TestPoint_Value(t *testing.T) {
	p := Point2D(3, 4)
	v, err := p.Value(1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	_, err = p.Value(2)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	assert.Equal(t, 3.0, p.At(0))
}

func TestPoint_CloneIsIndependent(t *testing.T) {
	p := Point3D(1, 2, 3)
	c := p.Clone()
	require.NoError(t, c.SetValue(9, 0))
	assert.Equal(t, 1.0, p.At(0))

	coords := p.Coords()
	coords[1] = 42
	assert.Equal(t, 2.0, p.At(1))
}

func TestPoint_Sub(t *testing.T) {
	diff, err := Point2D(5, 7).Sub(Point2D(2, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, diff.Coords())

	// The result takes the dimension of the subtrahend.
	diff, err = Point3D(5, 7, 9).Sub(Point2D(1, 1))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 6}, diff.Coords())

	_, err = Point2D(1, 1).Sub(Point3D(1, 1, 1))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPoint_DistanceTo(t *testing.T) {
	a := Point2D(0, 0)
	b := Point2D(3, 4)

	ab, err := a.DistanceTo(b)
	require.NoError(t, err)
	ba, err := b.DistanceTo(a)
	require.NoError(t, err)

	if math.Abs(ab-5) > 1e-12 {
		t.Errorf("DistanceTo = %f, want 5", ab)
	}
	if ab != ba {
		t.Errorf("DistanceTo not symmetric: %f vs %f", ab, ba)
	}

	same, err := b.DistanceTo(b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, same)

	_, err = a.DistanceTo(Point3D(1, 2, 3))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPointsMatrixRoundTrip(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		0, 0,
		1, 2,
		-3, 4,
	})
	points := PointsFromMatrix(m)
	require.Len(t, points, 3)
	assert.Equal(t, []float64{-3, 4}, points[2].Coords())

	back, err := MatrixFromPoints(points)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, back))
}

func TestMatrixFromPoints_Invalid(t *testing.T) {
	_, err := MatrixFromPoints(nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = MatrixFromPoints([]Point{Point2D(1, 2), Point3D(1, 2, 3)})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = MatrixFromPoints([]Point{{}})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
