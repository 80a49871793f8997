package main

import (
	"os"
	"time"

	"github.com/kwv/icpalign/icp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
var Version = "dev"

// cliOptions holds flags that override the configuration file.
type cliOptions struct {
	configFile string
	logLevel   string

	dims          int
	iterations    int
	workers       int
	seeds         []float64
	points        int
	seed          int64
	extent        float64
	rotation      float64
	translation   []float64
	noise         float64
	mqttBroker    string
	publishPrefix string
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "icpalign",
		Short:        "Rigid point set registration with Iterative Closest Point",
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to configuration file (default: built-in defaults)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	root.AddCommand(runCmd(opts))
	root.AddCommand(configCmd(opts))
	return root
}

func runCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a synthetic scenario, register it and print the recovered transform",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			_, err = app.Run()
			return err
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.dims, "dims", 2, "Point dimensionality (2 or 3)")
	f.IntVar(&opts.iterations, "iterations", 30, "Iterations per seed rotation")
	f.IntVar(&opts.workers, "workers", 1, "Correspondence search goroutines")
	f.Float64SliceVar(&opts.seeds, "seeds", nil, "Seed rotations in degrees (default 0,90,180,270)")
	f.IntVar(&opts.points, "points", 60, "Number of generated points")
	f.Int64Var(&opts.seed, "seed", 1, "Random seed for the scenario")
	f.Float64Var(&opts.extent, "extent", 100, "Side length of the area points are drawn from")
	f.Float64Var(&opts.rotation, "rotation", 5, "Rotation applied to the reference in degrees")
	f.Float64SliceVar(&opts.translation, "translation", nil, "Translation applied to the reference (e.g. 1,1)")
	f.Float64Var(&opts.noise, "noise", 0, "Std deviation of Gaussian noise added to the target")
	f.StringVar(&opts.mqttBroker, "mqtt-broker", "", "MQTT broker URL for progress reports (e.g. tcp://localhost:1883)")
	f.StringVar(&opts.publishPrefix, "publish-prefix", "", "MQTT topic prefix")
	return cmd
}

func configCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			app.Out = cmd.OutOrStdout()
			return app.PrintConfig()
		},
	}
}

// newApp loads the configuration, applies the flags that were set on the
// command line and configures the global log level.
func newApp(cmd *cobra.Command, opts *cliOptions) (*App, error) {
	config, err := LoadAppConfig(opts.configFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, opts, config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	level, err := config.Level()
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)

	app := NewApp(config)
	app.Out = cmd.OutOrStdout()
	app.Logger = log.Logger
	return app, nil
}

func applyFlags(cmd *cobra.Command, opts *cliOptions, config *icp.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		config.LogLevel = opts.logLevel
	}
	if changed("dims") {
		config.Settings.Dimensionality = icp.Dimensionality(opts.dims)
		if !changed("translation") && len(config.Scenario.Translation) != 0 && len(config.Scenario.Translation) != opts.dims {
			config.Scenario.Translation = nil
		}
	}
	if changed("iterations") {
		config.Settings.MaxIterations = opts.iterations
	}
	if changed("workers") {
		config.Settings.Workers = opts.workers
	}
	if changed("seeds") {
		config.Settings.InitialRotations = opts.seeds
	}
	if changed("points") {
		config.Scenario.Points = opts.points
	}
	if changed("seed") {
		config.Scenario.Seed = opts.seed
	}
	if changed("extent") {
		config.Scenario.Extent = opts.extent
	}
	if changed("rotation") {
		config.Scenario.RotationDeg = opts.rotation
	}
	if changed("translation") {
		config.Scenario.Translation = opts.translation
	}
	if changed("noise") {
		config.Scenario.Noise = opts.noise
	}
	if changed("mqtt-broker") {
		config.MQTT.Broker = opts.mqttBroker
	}
	if changed("publish-prefix") {
		config.MQTT.PublishPrefix = opts.publishPrefix
	}
}
