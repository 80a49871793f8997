package main

import (
	"fmt"
	"io"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/icpalign/icp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// App encapsulates the application state and dependencies
type App struct {
	Config *icp.Config
	Out    io.Writer
	Logger zerolog.Logger

	// Connect opens the MQTT connection; replaced in tests.
	Connect func(icp.MQTTConfig) (mqtt.Client, error)
}

// NewApp creates a new App instance
func NewApp(config *icp.Config) *App {
	if config == nil {
		config = icp.DefaultConfig()
	}
	return &App{
		Config:  config,
		Out:     os.Stdout,
		Logger:  log.Logger,
		Connect: icp.ConnectMQTT,
	}
}

// LoadAppConfig returns DefaultConfig when path is empty, otherwise the file's configuration.
func LoadAppConfig(path string) (*icp.Config, error) {
	if path == "" {
		return icp.DefaultConfig(), nil
	}
	return icp.LoadConfig(path)
}

// Run builds the configured scenario, solves it and prints the recovered
// transform next to the one used to generate the target.
func (a *App) Run() (icp.Result, error) {
	if err := a.Config.Validate(); err != nil {
		return icp.Result{}, errors.Wrap(err, "invalid configuration")
	}

	settings := a.Config.Settings
	scenario, err := a.Config.Scenario.Build(settings.Dimensionality)
	if err != nil {
		return icp.Result{}, errors.Wrap(err, "building scenario")
	}
	targetBound, err := icp.PlanarBound(scenario.Target)
	if err != nil {
		return icp.Result{}, err
	}
	a.Logger.Info().
		Int("points", a.Config.Scenario.Points).
		Str("dims", settings.Dimensionality.String()).
		Float64("rotation_deg", a.Config.Scenario.RotationDeg).
		Float64("noise", a.Config.Scenario.Noise).
		Floats64("target_min", []float64{targetBound.Min.X(), targetBound.Min.Y()}).
		Floats64("target_max", []float64{targetBound.Max.X(), targetBound.Max.Y()}).
		Msg("scenario ready")

	opts := []icp.Option{icp.WithLogger(a.Logger)}

	client, err := a.Connect(a.Config.MQTT)
	if err != nil {
		return icp.Result{}, errors.Wrap(err, "MQTT")
	}
	var publisher *icp.Publisher
	if client != nil {
		defer client.Disconnect(250)
		resolved := icp.ResolveMQTTConfig(a.Config.MQTT)
		publisher = icp.NewPublisher(client, resolved.PublishPrefix)
		publisher.SetLogger(a.Logger)
		opts = append(opts, icp.WithObserver(publisher))
	}

	engine, err := icp.New(scenario.Reference, scenario.Target, settings, opts...)
	if err != nil {
		return icp.Result{}, err
	}
	result, err := engine.Solve()
	if err != nil {
		return icp.Result{}, errors.Wrap(err, "solving")
	}

	if publisher != nil {
		published, failures, lastErr := publisher.Stats()
		if failures > 0 {
			a.Logger.Warn().Int("published", published).Int("failed", failures).Err(lastErr).Msg("some progress reports were not delivered")
		}
	}

	a.printResult(scenario, result)
	return result, nil
}

func (a *App) printResult(scenario *icp.Scenario, result icp.Result) {
	fmt.Fprintf(a.Out, "run:              %s\n", result.RunID)
	fmt.Fprintf(a.Out, "seed rotation:    %.1f°\n", result.InitialRotation)
	fmt.Fprintf(a.Out, "iterations:       %d\n", result.Iterations)
	if len(result.Errors) > 0 {
		fmt.Fprintf(a.Out, "error:            %.6g -> %.6g\n", result.Errors[0], result.Error)
	} else {
		fmt.Fprintf(a.Out, "error:            %.6g\n", result.Error)
	}
	fmt.Fprintf(a.Out, "rotation:         %.4f° (expected %.4f°)\n",
		icp.RotationDegrees(result.Rotation), icp.RotationDegrees(scenario.Rotation))
	fmt.Fprintf(a.Out, "translation:      %s (expected %s)\n",
		formatVector(result.Translation), formatVector(scenario.Translation))
	fmt.Fprintf(a.Out, "rotation matrix:\n  %v\n", mat.Formatted(result.Rotation, mat.Prefix("  "), mat.Squeeze()))
}

// PrintConfig writes the effective configuration as YAML.
func (a *App) PrintConfig() error {
	data, err := yaml.Marshal(a.Config)
	if err != nil {
		return errors.Wrap(err, "marshaling config YAML")
	}
	_, err = a.Out.Write(data)
	return err
}

func formatVector(v mat.Matrix) string {
	if v == nil {
		return "[]"
	}
	rows, _ := v.Dims()
	out := "["
	for r := 0; r < rows; r++ {
		if r > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%.4f", v.At(r, 0))
	}
	return out + "]"
}
