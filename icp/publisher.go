package icp

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// DefaultPublishPrefix is the topic prefix used when none is configured.
const DefaultPublishPrefix = "icpalign"

const publishTimeout = 2 * time.Second

// Publisher forwards engine progress to MQTT. It implements Observer and
// ResultObserver; register it with WithObserver.
//
// Iteration reports go to <prefix>/<runID>/iteration and are never retained.
// The final result goes to <prefix>/<runID>/result.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool // applies to result messages only
	logger        zerolog.Logger

	mu        sync.RWMutex
	published int
	failures  int
	lastErr   error
}

// ResultMessage is the JSON payload of a result topic.
type ResultMessage struct {
	RunID           string      `json:"runId"`
	InitialRotation float64     `json:"initialRotation"`
	Iterations      int         `json:"iterations"`
	Error           float64     `json:"error"`
	Errors          []float64   `json:"errors"`
	RotationDeg     float64     `json:"rotationDeg"`
	Rotation        [][]float64 `json:"rotation"`
	Translation     []float64   `json:"translation"`
	Timestamp       int64       `json:"timestamp"`
}

// NewPublisher creates a progress publisher.
// If client is nil, publishing is disabled (for testing and offline runs).
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // QoS 0 for progress (fire and forget)
		retain:        true, // Retain the latest result
		logger:        log.Logger,
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether result messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// SetLogger replaces the logger used for publish failures.
func (p *Publisher) SetLogger(logger zerolog.Logger) {
	p.logger = logger
}

// IterationTopic returns the topic iteration reports of runID are published to.
func (p *Publisher) IterationTopic(runID string) string {
	return fmt.Sprintf("%s/%s/iteration", p.publishPrefix, runID)
}

// ResultTopic returns the topic the result of runID is published to.
func (p *Publisher) ResultTopic(runID string) string {
	return fmt.Sprintf("%s/%s/result", p.publishPrefix, runID)
}

// PublishIteration publishes a single iteration report.
func (p *Publisher) PublishIteration(report IterationReport) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "marshaling iteration report")
	}
	return p.publish(p.IterationTopic(report.RunID), false, payload)
}

// PublishResult publishes the summary of a finished solve.
func (p *Publisher) PublishResult(result Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(NewResultMessage(result))
	if err != nil {
		return errors.Wrap(err, "marshaling result")
	}
	return p.publish(p.ResultTopic(result.RunID), p.retain, payload)
}

func (p *Publisher) publish(topic string, retain bool, payload []byte) error {
	token := p.client.Publish(topic, p.qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publishing to %s: timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publishing to %s", topic)
	}
	return nil
}

// OnIteration implements Observer. Failures are logged and counted, never
// propagated into the engine.
func (p *Publisher) OnIteration(report IterationReport) {
	if p.client == nil {
		return
	}
	p.record(p.PublishIteration(report))
}

// OnResult implements ResultObserver.
func (p *Publisher) OnResult(result Result) {
	if p.client == nil {
		return
	}
	err := p.PublishResult(result)
	p.record(err)
	if err == nil {
		p.logger.Info().Str("topic", p.ResultTopic(result.RunID)).Msg("published result")
	}
}

func (p *Publisher) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failures++
		p.lastErr = err
		p.logger.Warn().Err(err).Msg("MQTT publish failed")
		return
	}
	p.published++
}

// Stats returns the number of successful and failed publishes and the last error.
func (p *Publisher) Stats() (published, failures int, lastErr error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published, p.failures, p.lastErr
}

// NewResultMessage converts a Result to its wire form.
func NewResultMessage(result Result) ResultMessage {
	msg := ResultMessage{
		RunID:           result.RunID,
		InitialRotation: result.InitialRotation,
		Iterations:      result.Iterations,
		Error:           result.Error,
		Errors:          result.Errors,
		Timestamp:       time.Now().Unix(),
	}
	if result.Rotation != nil {
		msg.RotationDeg = RotationDegrees(result.Rotation)
		rows, _ := result.Rotation.Dims()
		msg.Rotation = make([][]float64, rows)
		for r := 0; r < rows; r++ {
			msg.Rotation[r] = mat.Row(nil, r, result.Rotation)
		}
	}
	if result.Translation != nil {
		msg.Translation = mat.Col(nil, 0, result.Translation)
	}
	return msg
}
