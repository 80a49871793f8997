package icp

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewPublisher(t *testing.T) {
	publisher := NewPublisher(nil, "")
	if publisher == nil {
		t.Fatal("NewPublisher() returned nil")
	}

	if publisher.publishPrefix != DefaultPublishPrefix {
		t.Errorf("Default prefix = %s, want %s", publisher.publishPrefix, DefaultPublishPrefix)
	}
	if publisher.qos != 0 {
		t.Errorf("Default QoS = %d, want 0", publisher.qos)
	}
	if !publisher.retain {
		t.Error("Default retain should be true")
	}

	assert.Equal(t, "lab/abc/iteration", NewPublisher(nil, "lab").IterationTopic("abc"))
	assert.Equal(t, "lab/abc/result", NewPublisher(nil, "lab").ResultTopic("abc"))
}

func TestPublisher_SetQoS(t *testing.T) {
	publisher := NewPublisher(nil, "")
	publisher.SetQoS(2)
	assert.Equal(t, byte(2), publisher.qos)

	// Invalid levels are ignored.
	publisher.SetQoS(3)
	assert.Equal(t, byte(2), publisher.qos)
}

func TestPublisher_NotConnected(t *testing.T) {
	publisher := NewPublisher(nil, "")
	err := publisher.PublishIteration(IterationReport{RunID: "r"})
	assert.True(t, errors.Is(err, ErrNotConnected))

	client := NewMockClient()
	client.SetConnected(false)
	publisher = NewPublisher(client, "")
	err = publisher.PublishResult(Result{RunID: "r"})
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestPublisher_NilClientObserverIsNoop(t *testing.T) {
	publisher := NewPublisher(nil, "")
	publisher.OnIteration(IterationReport{RunID: "r"})
	publisher.OnResult(Result{RunID: "r"})

	published, failures, lastErr := publisher.Stats()
	assert.Zero(t, published)
	assert.Zero(t, failures)
	assert.NoError(t, lastErr)
}

func TestPublisher_PublishIteration(t *testing.T) {
	client := NewMockClient()
	publisher := NewPublisher(client, "icptest")

	report := IterationReport{RunID: "run-7", InitialRotation: 90, Iteration: 3, Error: 1.25, RotationDeg: 87.5}
	require.NoError(t, publisher.PublishIteration(report))

	messages := client.GetPublishedMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "icptest/run-7/iteration", messages[0].Topic)
	assert.False(t, messages[0].Retain, "iteration reports are not retained")
	assert.Equal(t, byte(0), messages[0].QoS)

	var decoded IterationReport
	require.NoError(t, json.Unmarshal(messages[0].Payload, &decoded))
	assert.Equal(t, report, decoded)
}

func TestPublisher_PublishResult(t *testing.T) {
	client := NewMockClient()
	publisher := NewPublisher(client, "icptest")

	result := Result{
		Rotation:        RotationFromDegrees(90, 2),
		Translation:     mat.NewDense(2, 1, []float64{1, -2}),
		Error:           0.5,
		Errors:          []float64{2, 0.5},
		Iterations:      2,
		InitialRotation: 90,
		RunID:           "run-8",
	}
	require.NoError(t, publisher.PublishResult(result))

	messages := client.GetPublishedMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "icptest/run-8/result", messages[0].Topic)
	assert.True(t, messages[0].Retain)

	var decoded ResultMessage
	require.NoError(t, json.Unmarshal(messages[0].Payload, &decoded))
	assert.Equal(t, "run-8", decoded.RunID)
	assert.Equal(t, 2, decoded.Iterations)
	assert.Equal(t, []float64{1, -2}, decoded.Translation)
	assert.InDelta(t, 90, decoded.RotationDeg, 1e-9)
	require.Len(t, decoded.Rotation, 2)
	assert.InDelta(t, 1, decoded.Rotation[0][1], 1e-12)
	assert.Equal(t, []float64{2, 0.5}, decoded.Errors)
}

func TestPublisher_PublishErrorIsRecorded(t *testing.T) {
	client := NewMockClient()
	client.SetPublishError(fmt.Errorf("broker rejected message"))
	publisher := NewPublisher(client, "")
	publisher.SetLogger(quietLogger())

	publisher.OnIteration(IterationReport{RunID: "r", Iteration: 1})
	publisher.OnIteration(IterationReport{RunID: "r", Iteration: 2})

	published, failures, lastErr := publisher.Stats()
	assert.Equal(t, 0, published)
	assert.Equal(t, 2, failures)
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), "broker rejected message")
}

func TestPublisher_PublishTimeoutIsFailure(t *testing.T) {
	client := NewMockClient()
	client.SetPublishTimeout(true)
	publisher := NewPublisher(client, "")
	publisher.SetLogger(quietLogger())

	err := publisher.PublishIteration(IterationReport{RunID: "r", Iteration: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	publisher.OnIteration(IterationReport{RunID: "r", Iteration: 2})
	publisher.OnResult(Result{RunID: "r"})

	published, failures, lastErr := publisher.Stats()
	assert.Equal(t, 0, published)
	assert.Equal(t, 2, failures)
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), "r/result")
}

func TestPublisher_AsEngineObserver(t *testing.T) {
	client := NewMockClient()
	publisher := NewPublisher(client, "icptest")
	publisher.SetLogger(quietLogger())

	reference := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0, 1})
	target := mat.NewDense(3, 2, []float64{0, 0, 0, 1, -1, 0})
	settings := DefaultSettings()
	settings.MaxIterations = 2

	engine, err := New(reference, target, settings,
		WithRunID("run-9"), WithLogger(quietLogger()), WithObserver(publisher))
	require.NoError(t, err)
	_, err = engine.Solve()
	require.NoError(t, err)

	messages := client.GetPublishedMessages()
	require.Len(t, messages, 4*2+1)
	for _, m := range messages[:8] {
		assert.Equal(t, "icptest/run-9/iteration", m.Topic)
	}
	assert.Equal(t, "icptest/run-9/result", messages[8].Topic)

	published, failures, _ := publisher.Stats()
	assert.Equal(t, 9, published)
	assert.Equal(t, 0, failures)
}
