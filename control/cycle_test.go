package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furitingoasis/fogger/sensor"
)

var noon = time.Date(2025, 6, 1, 12, 0, 3, 0, time.UTC)

type stubSource struct {
	reading sensor.Reading
	err     error
}

func (s stubSource) Read(context.Context) (sensor.Reading, error) {
	return s.reading, s.err
}

type scriptedClassifier struct {
	verdicts []Verdict
	seen     []Features
	schema   FeatureSchema
}

func (c *scriptedClassifier) Predict(f Features) Verdict {
	c.seen = append(c.seen, f)
	v := c.verdicts[0]
	if len(c.verdicts) > 1 {
		c.verdicts = c.verdicts[1:]
	}
	return v
}

func (c *scriptedClassifier) Schema() FeatureSchema {
	return c.schema
}

type board struct {
	mu       sync.Mutex
	commands []string
	status   int
}

func newBoard(t *testing.T) (*board, *httptest.Server) {
	b := &board{status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.commands = append(b.commands, r.URL.Query().Get("fogger"))
		w.WriteHeader(b.status)
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *board) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.commands) == 0 {
		return ""
	}
	return b.commands[len(b.commands)-1]
}

type memRecorder struct{ got []Summary }

func (m *memRecorder) RecordCycle(s Summary) { m.got = append(m.got, s) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, src sensor.Source, model *scriptedClassifier, endpoint string, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithClock(func() time.Time { return noon })}, opts...)
	c, err := NewController(src, model, &Actuator{Endpoint: endpoint, Timeout: time.Second}, model.schema, opts...)
	require.NoError(t, err)
	return c
}

func liveReading() sensor.Reading {
	return sensor.Reading{Temperature: 33.2, Humidity: 55.1, ObservedAt: noon}
}

func TestCycleAutoVerdictOn(t *testing.T) {
	b, srv := newBoard(t)
	model := &scriptedClassifier{verdicts: []Verdict{true}, schema: SchemaTempHumidityHour}
	c := newTestController(t, stubSource{reading: liveReading()}, model, srv.URL)

	s := c.RunCycle(context.Background(), ModeAuto)
	assert.Equal(t, On, s.Commanded)
	assert.True(t, s.Actuation.Succeeded)
	assert.Equal(t, "1", b.last())
	assert.Empty(t, s.Warnings())
	require.Len(t, model.seen, 1)
	assert.Equal(t, []float64{33.2, 55.1, 12}, model.seen[0].Vector())
}

func TestCycleForceOffOverridesVerdict(t *testing.T) {
	b, srv := newBoard(t)
	model := &scriptedClassifier{verdicts: []Verdict{true}, schema: SchemaTempHumidity}
	c := newTestController(t, stubSource{reading: liveReading()}, model, srv.URL)

	s := c.RunCycle(context.Background(), ModeForceOff)
	assert.Equal(t, Verdict(true), s.Verdict)
	assert.Equal(t, Off, s.Commanded)
	assert.True(t, s.Actuation.Succeeded)
	assert.Equal(t, "0", b.last())
}

func TestCycleUnreachableBoard(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	model := &scriptedClassifier{verdicts: []Verdict{false}, schema: SchemaTempHumidity}
	c := newTestController(t, stubSource{reading: liveReading()}, model, addr)

	s := c.RunCycle(context.Background(), ModeAuto)
	assert.Equal(t, Off, s.Commanded)
	assert.True(t, s.Actuation.Attempted)
	assert.False(t, s.Actuation.Succeeded)
	assert.Equal(t, KindUnreachable, s.Actuation.Kind)
	require.Len(t, s.Warnings(), 1)
	assert.Contains(t, s.Warnings()[0], "intended state is OFF")
}

func TestCycleModeSwitchFlipsCommand(t *testing.T) {
	b, srv := newBoard(t)
	model := &scriptedClassifier{verdicts: []Verdict{false}, schema: SchemaTempHumidity}
	c := newTestController(t, stubSource{reading: liveReading()}, model, srv.URL)

	var session Session
	first := c.RunCycle(context.Background(), session.Mode())
	assert.Equal(t, Off, first.Commanded)

	require.NoError(t, session.Select(ModeForceOn))
	second := c.RunCycle(context.Background(), session.Mode())
	assert.Equal(t, first.Verdict, second.Verdict)
	assert.Equal(t, On, second.Commanded)
	assert.Equal(t, "1", b.last())
}

func TestCycleSensorFallback(t *testing.T) {
	_, srv := newBoard(t)
	model := &scriptedClassifier{verdicts: []Verdict{true}, schema: SchemaTempHumidity}
	src := stubSource{err: fmt.Errorf("%w: connection refused", sensor.ErrUnavailable)}
	rec := &memRecorder{}
	c := newTestController(t, src, model, srv.URL, WithRecorder(rec))

	s := c.RunCycle(context.Background(), ModeAuto)
	assert.True(t, s.Reading.IsFallback)
	assert.Equal(t, KindSensorUnavailable, s.SensorError)
	assert.Equal(t, 33.0, s.Reading.Temperature) // 30 + 3%5
	assert.Equal(t, On, s.Commanded)
	assert.True(t, s.Actuation.Succeeded)
	assert.Contains(t, s.Warnings()[0], "simulated data")
	require.Len(t, rec.got, 1)
	assert.Equal(t, s.ID, rec.got[0].ID)
}

func TestCycleRemoteRejected(t *testing.T) {
	b, srv := newBoard(t)
	b.mu.Lock()
	b.status = http.StatusServiceUnavailable
	b.mu.Unlock()
	model := &scriptedClassifier{verdicts: []Verdict{true}, schema: SchemaTempHumidity}
	c := newTestController(t, stubSource{reading: liveReading()}, model, srv.URL)

	s := c.RunCycle(context.Background(), ModeForceOn)
	assert.Equal(t, KindRemoteRejected, s.Actuation.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, s.Actuation.StatusCode)
	assert.Contains(t, s.String(), "RemoteRejected 503")
}

func TestNewControllerRejectsSchemaMismatch(t *testing.T) {
	model := &scriptedClassifier{verdicts: []Verdict{true}, schema: SchemaTempHumidityHour}
	_, err := NewController(stubSource{}, model, &Actuator{Endpoint: "http://board"}, SchemaTempHumidity)
	assert.Error(t, err)

	_, err = NewController(stubSource{}, ClassifierFunc(func(Features) Verdict { return false }), &Actuator{}, "bogus")
	assert.Error(t, err)
}

func TestSummaryString(t *testing.T) {
	s := Summary{
		Reading:   sensor.Reading{Temperature: 30.04, Humidity: 61, IsFallback: true},
		Verdict:   true,
		Mode:      ModeAuto,
		Commanded: On,
		Actuation: ActuationResult{Attempted: true, Succeeded: true, StatusCode: 200},
	}
	assert.Equal(t, "30.0°C 61.0% [fallback] | verdict 1 | mode auto | ON | sent (200)", s.String())
	assert.Equal(t, "Fogger is ON (Auto (AI Control))", s.Status())
}

// gatedBoard holds every control request until release is called.
func gatedBoard(t *testing.T) (endpoint string, arrived chan string, release func()) {
	arrived = make(chan string, 4)
	gate := make(chan struct{})
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- r.URL.Query().Get("fogger")
		<-gate
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(release)
	return srv.URL, arrived, release
}

func newGatedController(t *testing.T, endpoint string, opts ...Option) *Controller {
	t.Helper()
	model := ClassifierFunc(func(Features) Verdict { return true })
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := NewController(stubSource{reading: liveReading()}, model,
		&Actuator{Endpoint: endpoint, Timeout: 5 * time.Second}, SchemaTempHumidity, opts...)
	require.NoError(t, err)
	return c
}

func TestCyclesAreSerialized(t *testing.T) {
	endpoint, arrived, release := gatedBoard(t)
	c := newGatedController(t, endpoint)

	results := make(chan Summary, 2)
	go func() { results <- c.RunCycle(context.Background(), ModeForceOn) }()

	select {
	case got := <-arrived:
		assert.Equal(t, "1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never reached the board")
	}

	go func() { results <- c.RunCycle(context.Background(), ModeForceOff) }()

	select {
	case got := <-arrived:
		t.Fatalf("second cycle reached the board (%s) while the first was in flight", got)
	case <-time.After(200 * time.Millisecond):
	}

	release()

	select {
	case got := <-arrived:
		assert.Equal(t, "0", got)
	case <-time.After(2 * time.Second):
		t.Fatal("second cycle never reached the board")
	}
	for i := 0; i < 2; i++ {
		s := <-results
		assert.False(t, s.Busy)
		assert.True(t, s.Actuation.Succeeded)
	}
}

func TestQueuedCycleGivesUpAfterMaxWait(t *testing.T) {
	endpoint, arrived, release := gatedBoard(t)
	rec := &memRecorder{}
	c := newGatedController(t, endpoint, WithMaxWait(100*time.Millisecond), WithRecorder(rec))

	first := make(chan Summary, 1)
	go func() { first <- c.RunCycle(context.Background(), ModeAuto) }()
	<-arrived

	s := c.RunCycle(context.Background(), ModeForceOff)
	assert.True(t, s.Busy)
	assert.False(t, s.Actuation.Attempted)
	assert.Equal(t, ModeForceOff, s.Mode)
	require.Len(t, s.Warnings(), 1)
	assert.Contains(t, s.Warnings()[0], "still running")
	assert.Equal(t, "Fogger state unchanged (Force OFF)", s.Status())

	release()
	assert.False(t, (<-first).Busy)
	assert.Len(t, rec.got, 1, "busy cycles are not recorded")
}

func TestQueuedCycleHonoursContext(t *testing.T) {
	endpoint, arrived, release := gatedBoard(t)
	c := newGatedController(t, endpoint)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.RunCycle(context.Background(), ModeAuto)
	}()
	<-arrived

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := c.RunCycle(ctx, ModeAuto)
	assert.True(t, s.Busy)

	release()
	<-done
}
