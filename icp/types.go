package icp

import "github.com/pkg/errors"

// Sentinel errors returned by the package. Callers match them with errors.Is;
// the returned errors carry additional context.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrSVDFailed            = errors.New("singular value decomposition failed")
	ErrDegenerateCovariance = errors.New("degenerate covariance")
	ErrNotConnected         = errors.New("MQTT client not connected")
)

// Dimensionality is the number of coordinate axes of a point set.
type Dimensionality int

const (
	TwoD   Dimensionality = 2
	ThreeD Dimensionality = 3
)

// Valid reports whether d is a supported dimensionality.
func (d Dimensionality) Valid() bool {
	return d == TwoD || d == ThreeD
}

func (d Dimensionality) String() string {
	switch d {
	case TwoD:
		return "2D"
	case ThreeD:
		return "3D"
	default:
		return "unknown"
	}
}

// Correspondence pairs a query point with its nearest candidate point.
type Correspondence struct {
	Query     int     `json:"query"`
	Candidate int     `json:"candidate"`
	Distance  float64 `json:"distance"`
}

// IterationReport describes the state of a solve run after one iteration.
type IterationReport struct {
	RunID            string  `json:"runId"`
	InitialRotation  float64 `json:"initialRotation"` // seed rotation (degrees)
	Iteration        int     `json:"iteration"`       // 1-based
	Error            float64 `json:"error"`           // sum of per-point residual norms
	MeanSquaredError float64 `json:"meanSquaredError"`
	RotationDeg      float64 `json:"rotationDeg"` // accumulated rotation in the xy plane
	Timestamp        int64   `json:"timestamp"`
}

// Config is the file configuration of the icpalign command.
type Config struct {
	Settings Settings       `yaml:"settings" json:"settings"`
	Scenario ScenarioConfig `yaml:"scenario" json:"scenario"`
	MQTT     MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	LogLevel string         `yaml:"logLevel,omitempty" json:"logLevel,omitempty"` // zerolog level name (default "info")
}

// ScenarioConfig describes a synthetic registration problem: a random
// reference cloud and the target obtained by moving it with a known transform.
type ScenarioConfig struct {
	Points      int       `yaml:"points" json:"points"`
	Seed        int64     `yaml:"seed" json:"seed"`
	Extent      float64   `yaml:"extent" json:"extent"`           // Side length of the square/cube the reference is drawn from
	RotationDeg float64   `yaml:"rotationDeg" json:"rotationDeg"` // Rotation applied to the reference (xy plane)
	Translation []float64 `yaml:"translation,omitempty" json:"translation,omitempty"`
	Noise       float64   `yaml:"noise,omitempty" json:"noise,omitempty"` // Std deviation of Gaussian noise added to the target
}

// MQTTConfig holds MQTT connection settings for progress reports.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}
