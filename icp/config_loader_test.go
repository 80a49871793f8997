package icp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoadConfig_NotExists(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, `settings:
  dimensionality: 3
  maxIterations: 12
  initialRotations: [0, 180]
  workers: 4
scenario:
  points: 25
  seed: 9
  extent: 10
  rotationDeg: -3
  translation: [1, 2, 3]
  noise: 0.1
mqtt:
  broker: tcp://localhost:1883
  publishPrefix: icp
  clientId: icp-test
logLevel: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ThreeD, cfg.Settings.Dimensionality)
	assert.Equal(t, 12, cfg.Settings.MaxIterations)
	assert.Equal(t, []float64{0, 180}, cfg.Settings.InitialRotations)
	assert.Equal(t, 4, cfg.Settings.Workers)
	assert.Equal(t, ScenarioConfig{
		Points:      25,
		Seed:        9,
		Extent:      10,
		RotationDeg: -3,
		Translation: []float64{1, 2, 3},
		Noise:       0.1,
	}, cfg.Scenario)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "icp", cfg.MQTT.PublishPrefix)
	assert.Equal(t, "icp-test", cfg.MQTT.ClientID)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `scenario:
  points: 12
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, 12, cfg.Scenario.Points)
	assert.Equal(t, defaults.Scenario.Extent, cfg.Scenario.Extent)
	assert.Equal(t, defaults.Settings, cfg.Settings)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":          "settings: [",
		"bad dims":          "settings:\n  dimensionality: 4\n",
		"negative workers":  "settings:\n  workers: -1\n",
		"short translation": "scenario:\n  translation: [1]\n",
		"bad log level":     "logLevel: chatty\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(writeConfig(t, "logLevel: chatty\n"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.Workers = 3
	cfg.MQTT.Broker = "tcp://broker:1883"

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	level, err := (&Config{}).Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, level)
}
