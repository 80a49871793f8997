package icp

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Settings configures the ICP engine.
type Settings struct {
	Dimensionality   Dimensionality `yaml:"dimensionality" json:"dimensionality"`     // TwoD or ThreeD, must match the point sets
	MaxIterations    int            `yaml:"maxIterations" json:"maxIterations"`       // Fixed number of iterations per seed
	InitialRotations []float64      `yaml:"initialRotations" json:"initialRotations"` // Seed rotations in degrees (xy plane)
	Workers          int            `yaml:"workers" json:"workers"`                   // Correspondence search goroutines
}

// DefaultInitialRotations returns the seed rotations tried when
// Settings.InitialRotations is empty: 0°, 90°, 180° and 270°.
func DefaultInitialRotations() []float64 {
	return []float64{0, 90, 180, 270}
}

// DefaultSettings returns sensible defaults for 2D point sets.
func DefaultSettings() Settings {
	return Settings{
		Dimensionality:   TwoD,
		MaxIterations:    30,
		InitialRotations: DefaultInitialRotations(),
		Workers:          1,
	}
}

// Validate checks the settings independently of any point set.
func (s Settings) Validate() error {
	if !s.Dimensionality.Valid() {
		return errors.Wrapf(ErrInvalidInput, "dimensionality %d (want 2 or 3)", int(s.Dimensionality))
	}
	if s.MaxIterations < 0 {
		return errors.Wrapf(ErrInvalidInput, "max iterations %d", s.MaxIterations)
	}
	if s.Workers < 0 {
		return errors.Wrapf(ErrInvalidInput, "workers %d", s.Workers)
	}
	for _, deg := range s.InitialRotations {
		if math.IsNaN(deg) || math.IsInf(deg, 0) {
			return errors.Wrapf(ErrInvalidInput, "initial rotation %v", deg)
		}
	}
	return nil
}

func (s Settings) seeds() []float64 {
	if len(s.InitialRotations) == 0 {
		return DefaultInitialRotations()
	}
	return s.InitialRotations
}

// Result holds the transform found by Solve. Rotation and Translation are in
// the row-vector form used by ApplyTransformation:
//
//	target ≈ ApplyTransformation(reference, Translation, Rotation)
type Result struct {
	Rotation        *mat.Dense // d x d
	Translation     *mat.Dense // d x 1
	Error           float64    // Final residual (sum of per-point norms, see RMSE)
	Errors          []float64  // Residual after each iteration
	Iterations      int        // Iterations performed for the winning seed
	InitialRotation float64    // Seed rotation that produced the result (degrees)
	RunID           string
}

// Engine runs Iterative Closest Point registration of a reference point set
// onto a target point set. Both sets hold one point per row.
type Engine struct {
	reference *mat.Dense
	target    *mat.Dense
	settings  Settings
	matcher   Matcher
	observers []Observer
	logger    zerolog.Logger
	runID     string
	result    *Result
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMatcher replaces the correspondence search strategy.
func WithMatcher(m Matcher) Option {
	return func(e *Engine) {
		e.matcher = m
	}
}

// WithObserver registers an observer for iteration reports.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithLogger sets the logger used for per-iteration diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRunID sets the identifier attached to reports. A random UUID is used otherwise.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.runID = id
	}
}

// New creates an engine for aligning reference onto target. The two sets
// must have the same shape and one column per axis of settings.Dimensionality.
func New(reference, target mat.Matrix, settings Settings, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := checkPair(reference, target); err != nil {
		return nil, err
	}
	if _, cols := reference.Dims(); cols != int(settings.Dimensionality) {
		return nil, errors.Wrapf(ErrInvalidInput, "point sets have %d columns, settings are %s", cols, settings.Dimensionality)
	}
	if err := checkFinite(reference); err != nil {
		return nil, errors.Wrap(err, "reference")
	}
	if err := checkFinite(target); err != nil {
		return nil, errors.Wrap(err, "target")
	}

	e := &Engine{
		reference: mat.DenseCopyOf(reference),
		target:    mat.DenseCopyOf(target),
		settings:  settings,
		matcher:   BruteForceMatcher{Workers: settings.Workers},
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	return e, nil
}

// RunID returns the identifier attached to this engine's reports.
func (e *Engine) RunID() string {
	return e.runID
}

// transformState is the accumulated transform of one seed's run.
// working is always derived from the original reference.
type transformState struct {
	rotation        *mat.Dense
	translation     *mat.Dense
	lastRotation    *mat.Dense
	lastTranslation *mat.Dense
	working         *mat.Dense
}

// Solve runs MaxIterations iterations from every seed rotation and keeps the
// seed with the lowest final residual (the first one on ties). There is no
// early exit: the residual is reported, never used for control flow.
func (e *Engine) Solve() (Result, error) {
	targetPoints := PointsFromMatrix(e.target)

	var best *Result
	for _, seed := range e.settings.seeds() {
		res, err := e.run(seed, targetPoints)
		if err != nil {
			return Result{}, errors.Wrapf(err, "seed %.1f°", seed)
		}
		if best == nil || res.Error < best.Error {
			best = &res
		}
	}

	e.result = best
	e.logger.Info().
		Str("run", best.RunID).
		Float64("seed", best.InitialRotation).
		Int("iterations", best.Iterations).
		Float64("error", best.Error).
		Float64("rotation_deg", RotationDegrees(best.Rotation)).
		Msg("icp finished")
	for _, o := range e.observers {
		if ro, ok := o.(ResultObserver); ok {
			ro.OnResult(*best)
		}
	}
	return *best, nil
}

// BestRotation returns a copy of the solved rotation, or nil before Solve.
func (e *Engine) BestRotation() *mat.Dense {
	if e.result == nil {
		return nil
	}
	return mat.DenseCopyOf(e.result.Rotation)
}

// BestTranslation returns a copy of the solved translation, or nil before Solve.
func (e *Engine) BestTranslation() *mat.Dense {
	if e.result == nil {
		return nil
	}
	return mat.DenseCopyOf(e.result.Translation)
}

// run performs the fixed-count iteration loop from a single seed rotation.
func (e *Engine) run(seed float64, targetPoints []Point) (Result, error) {
	dims := int(e.settings.Dimensionality)
	state := transformState{
		rotation:    RotationFromDegrees(seed, dims),
		translation: ZeroVector(dims),
	}
	working, err := ApplyTransformation(e.reference, state.translation, state.rotation)
	if err != nil {
		return Result{}, err
	}
	state.working = working

	res := Result{
		InitialRotation: seed,
		RunID:           e.runID,
		Errors:          make([]float64, 0, e.settings.MaxIterations),
	}
	if res.Error, err = RMSE(e.target, state.working); err != nil {
		return Result{}, err
	}

	for iter := 1; iter <= e.settings.MaxIterations; iter++ {
		if err := e.step(&state, targetPoints); err != nil {
			return Result{}, errors.Wrapf(err, "iteration %d", iter)
		}

		residual, err := RMSE(e.target, state.working)
		if err != nil {
			return Result{}, err
		}
		mse, err := MeanSquaredError(e.target, state.working)
		if err != nil {
			return Result{}, err
		}
		res.Errors = append(res.Errors, residual)
		res.Error = residual
		res.Iterations = iter

		e.report(IterationReport{
			RunID:            e.runID,
			InitialRotation:  seed,
			Iteration:        iter,
			Error:            residual,
			MeanSquaredError: mse,
			RotationDeg:      RotationDegrees(state.rotation),
			Timestamp:        time.Now().Unix(),
		})
	}

	res.Rotation = state.rotation
	res.Translation = state.translation
	return res, nil
}

// step performs one iteration: correspondence search, incremental rigid
// motion, accumulation, and re-derivation of the working reference.
func (e *Engine) step(s *transformState, targetPoints []Point) error {
	s.lastRotation = s.rotation
	s.lastTranslation = s.translation

	closest, err := e.closestTargets(s.working, targetPoints)
	if err != nil {
		return err
	}

	increment, err := SolveForOptimalRotation(s.working, closest)
	if errors.Is(err, ErrDegenerateCovariance) {
		e.logger.Warn().Err(err).Msg("correspondences do not determine a rotation, keeping the current one")
		increment = Identity(int(e.settings.Dimensionality))
	} else if err != nil {
		return err
	}

	// The solved translation maps closest back onto working; negate it to
	// move working onto closest.
	shift, err := SolveForOptimalTranslation(s.working, closest, increment)
	if err != nil {
		return err
	}
	shift.Scale(-1, shift)

	// Applying (shift, increment) to working = (reference + T)·R gives
	// (reference + T + shift·Rᵀ)·R·increment, so the new column translation
	// is T + R·shift.
	var rotation mat.Dense
	rotation.Mul(s.lastRotation, increment)

	var translation mat.Dense
	translation.Mul(s.lastRotation, shift)
	translation.Add(&translation, s.lastTranslation)

	s.rotation = &rotation
	s.translation = &translation

	working, err := ApplyTransformation(e.reference, s.translation, s.rotation)
	if err != nil {
		return err
	}
	s.working = working
	return nil
}

// closestTargets packs, for every working reference row, the nearest target
// row into a matrix with the reference's shape.
func (e *Engine) closestTargets(working *mat.Dense, targetPoints []Point) (*mat.Dense, error) {
	matches, err := e.matcher.Match(PointsFromMatrix(working), targetPoints)
	if err != nil {
		return nil, errors.Wrap(err, "correspondence search")
	}

	rows, cols := working.Dims()
	if len(matches) != rows {
		return nil, errors.Errorf("matcher returned %d correspondences for %d points", len(matches), rows)
	}
	closest := mat.NewDense(rows, cols, nil)
	for i, m := range matches {
		if m.Candidate < 0 || m.Candidate >= len(targetPoints) {
			return nil, errors.Errorf("matcher returned candidate %d for point %d", m.Candidate, i)
		}
		closest.SetRow(i, e.target.RawRowView(m.Candidate))
	}
	return closest, nil
}

func (e *Engine) report(r IterationReport) {
	e.logger.Info().
		Float64("seed", r.InitialRotation).
		Int("iteration", r.Iteration).
		Float64("error", r.Error).
		Msg("icp iteration")
	for _, o := range e.observers {
		o.OnIteration(r)
	}
}

func checkFinite(m mat.Matrix) error {
	rows, cols := m.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := m.At(r, c); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrInvalidInput, "non-finite value at (%d, %d)", r, c)
			}
		}
	}
	return nil
}
