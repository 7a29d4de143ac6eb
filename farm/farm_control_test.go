package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furitingoasis/fogger/control"
	foggermqtt "furitingoasis/fogger/mqtt"
	"furitingoasis/fogger/sensor"
)

type published struct {
	topic   string
	payload []byte
}

type fixedSource struct{ r sensor.Reading }

func (s fixedSource) Read(context.Context) (sensor.Reading, error) { return s.r, nil }

func newTestFarm(t *testing.T, verdict control.Verdict) (*farmController, *[]published, *[]string) {
	t.Helper()
	color.NoColor = true

	var (
		mu       sync.Mutex
		commands []string
	)
	board := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		commands = append(commands, r.URL.Query().Get("fogger"))
		mu.Unlock()
	}))
	t.Cleanup(board.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl, err := control.NewController(
		fixedSource{sensor.Reading{Temperature: 31, Humidity: 40}},
		control.ClassifierFunc(func(control.Features) control.Verdict { return verdict }),
		&control.Actuator{Endpoint: board.URL, Timeout: time.Second},
		control.SchemaTempHumidity,
		control.WithLogger(logger),
	)
	require.NoError(t, err)

	var sent []published
	fc := &farmController{
		ctrl:    ctrl,
		session: &control.Session{},
		prefix:  "farm/fogger",
		publish: func(topic string, payload []byte) bool {
			sent = append(sent, published{topic, payload})
			return true
		},
		out:    new(bytes.Buffer),
		logger: logger,
	}
	return fc, &sent, &commands
}

func TestTickPublishesStatus(t *testing.T) {
	fc, sent, commands := newTestFarm(t, true)

	sum := fc.tick(context.Background())
	assert.True(t, bool(sum.Commanded))
	assert.Equal(t, []string{"1"}, *commands)

	require.Len(t, *sent, 1)
	assert.Equal(t, "farm/fogger/status", (*sent)[0].topic)
	var got map[string]any
	require.NoError(t, json.Unmarshal((*sent)[0].payload, &got))
	assert.Equal(t, "auto", got["mode"])

	assert.Contains(t, fc.out.(*bytes.Buffer).String(), "verdict 1 | mode auto | ON")
}

func TestModeCommands(t *testing.T) {
	fc, sent, commands := newTestFarm(t, true)

	fc.onMode([]byte("force_off\n"))
	assert.Equal(t, control.ModeForceOff, fc.session.Mode())
	fc.tick(context.Background())
	assert.Equal(t, "0", (*commands)[len(*commands)-1])

	fc.onMode([]byte("warp"))
	assert.Equal(t, control.ModeForceOff, fc.session.Mode(), "unknown payload keeps the mode")
	assert.Equal(t, "farm/fogger/alerts", (*sent)[len(*sent)-1].topic)

	fc.onMode([]byte("AUTO"))
	assert.Equal(t, control.ModeAuto, fc.session.Mode())
}

func TestRecordCycleMatchesPublisherFormat(t *testing.T) {
	fc, sent, _ := newTestFarm(t, true)
	sum := control.Summary{
		Mode:      control.ModeForceOn,
		Commanded: control.On,
		Actuation: control.ActuationResult{Attempted: true, Kind: control.KindRemoteRejected, StatusCode: 503},
	}

	fc.RecordCycle(sum)

	want, err := foggermqtt.CycleMessages("farm/fogger", sum)
	require.NoError(t, err)
	require.Len(t, *sent, len(want))
	for i, m := range want {
		assert.Equal(t, m.Topic, (*sent)[i].topic)
		assert.Equal(t, string(m.Payload), string((*sent)[i].payload))
	}
	assert.Equal(t, "farm/fogger/alerts", (*sent)[1].topic)
}
