package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"furitingoasis/fogger/sensor"
)

// Recorder receives every finished cycle. Recorders must not block for long
// and must handle their own failures.
type Recorder interface {
	RecordCycle(s Summary)
}

// Controller runs evaluation cycles one at a time.
type Controller struct {
	source     sensor.Source
	classifier Classifier
	actuator   *Actuator
	schema     FeatureSchema
	recorders  []Recorder
	logger     *slog.Logger
	now        func() time.Time
	maxWait    time.Duration

	// sem holds one token while a cycle is in flight.
	sem chan struct{}
}

// Option customises a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorders = append(c.recorders, r) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMaxWait bounds how long RunCycle queues behind a cycle in flight.
// Zero waits until ctx is done.
func WithMaxWait(d time.Duration) Option {
	return func(c *Controller) { c.maxWait = d }
}

// NewController checks the wiring once, up front: the schema must be known
// and, when the classifier reports its training schema, the two must agree.
func NewController(source sensor.Source, model Classifier, act *Actuator, schema FeatureSchema, opts ...Option) (*Controller, error) {
	if source == nil {
		return nil, errors.New("control: nil sensor source")
	}
	if model == nil {
		return nil, errors.New("control: nil classifier")
	}
	if act == nil {
		return nil, errors.New("control: nil actuator")
	}
	if _, err := ParseFeatureSchema(string(schema)); err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	if r, ok := model.(SchemaReporter); ok && r.Schema() != schema {
		return nil, fmt.Errorf("control: classifier was trained on %s but %s is configured", r.Schema(), schema)
	}

	c := &Controller{
		source:     source,
		classifier: model,
		actuator:   act,
		schema:     schema,
		logger:     slog.Default(),
		now:        time.Now,
		sem:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) Schema() FeatureSchema {
	return c.schema
}

// RunCycle reads the sensor, asks the classifier, resolves the mode and
// actuates the relay. It always completes; failures end up in the summary.
// Concurrent callers wait for the cycle in flight to finish. A caller whose
// ctx ends, or whose wait exceeds the max wait, gets a Busy summary: nothing
// was read or sent and no recorder sees it.
func (c *Controller) RunCycle(ctx context.Context, mode Mode) Summary {
	if err := c.acquire(ctx); err != nil {
		s := Summary{ID: uuid.New(), StartedAt: c.now(), Mode: mode, Busy: true}
		c.logger.Warn("cycle skipped, another cycle is still running", "cycle", s.ID, "mode", mode, "error", err)
		return s
	}
	defer func() { <-c.sem }()

	started := c.now()
	s := Summary{ID: uuid.New(), StartedAt: started, Mode: mode}

	reading, err := c.source.Read(ctx)
	if err != nil {
		c.logger.Warn("sensor read failed, using fallback", "cycle", s.ID, "error", err)
		reading = sensor.Fallback(started)
		s.SensorError = KindSensorUnavailable
		s.SensorCause = err.Error()
	}
	s.Reading = reading

	s.Features = Features{
		Schema:      c.schema,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		Hour:        started.Hour(),
	}
	s.Verdict = c.classifier.Predict(s.Features)
	s.Commanded = Resolve(mode, s.Verdict)
	s.Actuation = c.actuator.Actuate(ctx, s.Commanded)

	if s.Actuation.Succeeded {
		c.logger.Info("fogger command sent", "cycle", s.ID, "mode", mode, "state", s.Commanded, "status", s.Actuation.StatusCode)
	} else {
		c.logger.Warn("fogger command not delivered", "cycle", s.ID, "mode", mode, "state", s.Commanded,
			"kind", s.Actuation.Kind, "status", s.Actuation.StatusCode, "error", s.Actuation.Cause)
	}

	for _, r := range c.recorders {
		r.RecordCycle(s)
	}
	return s
}

func (c *Controller) acquire(ctx context.Context) error {
	var expired <-chan time.Time
	if c.maxWait > 0 {
		timer := time.NewTimer(c.maxWait)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("waited %s for the cycle in flight", c.maxWait)
	}
}
