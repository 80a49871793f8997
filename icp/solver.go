package icp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// degenerateTolerance is the fraction of the product of the centered
// Frobenius norms below which the largest singular value counts as zero.
const degenerateTolerance = 1e-12

// Centroid returns a column vector holding the mean of each column of points.
// For an n x d input the result is d x 1.
func Centroid(points mat.Matrix) *mat.Dense {
	rows, cols := points.Dims()
	if cols == 0 {
		return nil
	}
	centroid := mat.NewDense(cols, 1, nil)
	if rows == 0 {
		return centroid
	}
	for c := 0; c < cols; c++ {
		sum := floats.Sum(mat.Col(nil, c, points))
		centroid.Set(c, 0, sum/float64(rows))
	}
	return centroid
}

// centered returns a copy of points with centroid subtracted from every row.
func centered(points mat.Matrix, centroid *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(points)
	offset := mat.Col(nil, 0, centroid)
	rows, _ := out.Dims()
	for r := 0; r < rows; r++ {
		floats.Sub(out.RawRowView(r), offset)
	}
	return out
}

// SolveForOptimalRotation computes the rotation that best maps the rows of
// ref onto the rows of target (row i of ref pairs with row i of target)
// using the Kabsch method:
//
//	cov = centered(target)ᵀ · centered(ref) = U·S·Vᵀ,  R = V·Uᵀ
//
// In the row-vector convention used by ApplyTransformation,
// target ≈ (ref - t)·R with t from SolveForOptimalTranslation.
// The result is always a proper rotation (det = +1): when V·Uᵀ is a
// reflection, the singular direction with the smallest singular value is
// flipped.
//
// Coincident point sets have a zero covariance and return
// ErrDegenerateCovariance. Collinear 3D sets leave the rotation about the
// line undetermined; the returned rotation is then one of many minimizers.
func SolveForOptimalRotation(ref, target mat.Matrix) (*mat.Dense, error) {
	if err := checkPair(ref, target); err != nil {
		return nil, err
	}

	centeredRef := centered(ref, Centroid(ref))
	centeredTarget := centered(target, Centroid(target))

	var cov mat.Dense
	cov.Mul(centeredTarget.T(), centeredRef)

	var svd mat.SVD
	if ok := svd.Factorize(&cov, mat.SVDFull); !ok {
		return nil, errors.Wrap(ErrSVDFailed, "factorize cross-covariance")
	}

	values := svd.Values(nil)
	// Scale by the spread of the centered sets so the test does not depend
	// on where the sets sit relative to the origin.
	scale := mat.Norm(centeredRef, 2) * mat.Norm(centeredTarget, 2)
	if values[0] <= degenerateTolerance*scale {
		return nil, errors.Wrapf(ErrDegenerateCovariance, "largest singular value %g", values[0])
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rotation mat.Dense
	rotation.Mul(&v, u.T())

	if mat.Det(&rotation) < 0 {
		n, _ := v.Dims()
		for r := 0; r < n; r++ {
			v.Set(r, n-1, -v.At(r, n-1))
		}
		rotation.Mul(&v, u.T())
	}

	return &rotation, nil
}

// SolveForOptimalTranslation computes t = -R·centroid(target) + centroid(ref).
// The vector maps target's centroid back onto ref's centroid; apply it as a
// negated translation to move ref onto target:
//
//	target ≈ ApplyTransformation(ref, -t, R)
func SolveForOptimalTranslation(ref, target, rotation mat.Matrix) (*mat.Dense, error) {
	if err := checkPair(ref, target); err != nil {
		return nil, err
	}
	_, cols := ref.Dims()
	if rr, rc := rotation.Dims(); rr != cols || rc != cols {
		return nil, errors.Wrapf(ErrInvalidInput, "rotation is %dx%d, want %dx%d", rr, rc, cols, cols)
	}

	var translation mat.Dense
	translation.Mul(rotation, Centroid(target))
	translation.Scale(-1, &translation)
	translation.Add(&translation, Centroid(ref))
	return &translation, nil
}

// ApplyTransformation adds translation to every row of data and then
// right-multiplies by rotation: (data + t)·R.
//
// translation may be a column vector (d x 1), a row vector (1 x d), or a
// matrix with data's shape. rotation must be d x d.
func ApplyTransformation(data, translation, rotation mat.Matrix) (*mat.Dense, error) {
	rows, cols := data.Dims()
	if rr, rc := rotation.Dims(); rr != cols || rc != cols {
		return nil, errors.Wrapf(ErrInvalidInput, "rotation is %dx%d, want %dx%d", rr, rc, cols, cols)
	}

	shifted := mat.DenseCopyOf(data)
	tr, tc := translation.Dims()
	switch {
	case tr == rows && tc == cols:
		shifted.Add(shifted, translation)
	case tc == 1 && tr == cols:
		offset := mat.Col(nil, 0, translation)
		for r := 0; r < rows; r++ {
			floats.Add(shifted.RawRowView(r), offset)
		}
	case tr == 1 && tc == cols:
		offset := mat.Row(nil, 0, translation)
		for r := 0; r < rows; r++ {
			floats.Add(shifted.RawRowView(r), offset)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidInput, "translation is %dx%d for %dx%d data", tr, tc, rows, cols)
	}

	var out mat.Dense
	out.Mul(shifted, rotation)
	return &out, nil
}

// RMSE returns the sum over rows of the Euclidean norm of a - b.
// Despite the name this is a sum of per-point residual norms, not a
// root-mean-square; it is kept for compatibility with existing results.
func RMSE(a, b mat.Matrix) (float64, error) {
	if err := sameShape(a, b); err != nil {
		return 0, err
	}
	rows, _ := a.Dims()
	total := 0.0
	for r := 0; r < rows; r++ {
		total += floats.Distance(mat.Row(nil, r, a), mat.Row(nil, r, b), 2)
	}
	return total, nil
}

// MeanSquaredError returns the mean over rows of the squared Euclidean norm of a - b.
func MeanSquaredError(a, b mat.Matrix) (float64, error) {
	if err := sameShape(a, b); err != nil {
		return 0, err
	}
	rows, _ := a.Dims()
	if rows == 0 {
		return 0, nil
	}
	total := 0.0
	for r := 0; r < rows; r++ {
		d := floats.Distance(mat.Row(nil, r, a), mat.Row(nil, r, b), 2)
		total += d * d
	}
	return total / float64(rows), nil
}

// Identity returns an n x n identity matrix.
func Identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// ZeroVector returns an n x 1 zero column vector.
func ZeroVector(n int) *mat.Dense {
	return mat.NewDense(n, 1, nil)
}

// RotationFromDegrees builds a dims x dims rotation that turns row vectors
// counter-clockwise by degrees in the xy plane. For 3D it is a yaw about z.
func RotationFromDegrees(degrees float64, dims int) *mat.Dense {
	rad := degrees * math.Pi / 180.0
	cos, sin := math.Cos(rad), math.Sin(rad)
	m := Identity(dims)
	m.Set(0, 0, cos)
	m.Set(0, 1, sin)
	m.Set(1, 0, -sin)
	m.Set(1, 1, cos)
	return m
}

// RotationDegrees returns the counter-clockwise angle, in degrees, by which
// rotation turns row vectors in the xy plane.
func RotationDegrees(rotation mat.Matrix) float64 {
	return math.Atan2(rotation.At(0, 1), rotation.At(0, 0)) * 180 / math.Pi
}

func checkPair(ref, target mat.Matrix) error {
	if err := sameShape(ref, target); err != nil {
		return err
	}
	rows, cols := ref.Dims()
	if rows == 0 || cols == 0 {
		return errors.Wrap(ErrInvalidInput, "empty point set")
	}
	return nil
}

func sameShape(a, b mat.Matrix) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return errors.Wrapf(ErrInvalidInput, "matrix size mismatch: %dx%d vs %dx%d", ar, ac, br, bc)
	}
	return nil
}
