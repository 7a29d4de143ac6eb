package main

import (
	"bytes"
	"encoding/json"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-playground/form/v4"
	"github.com/stretchr/testify/require"

	"furitingoasis/fogger/classifier"
	"furitingoasis/fogger/control"
	"furitingoasis/fogger/history"
	"furitingoasis/fogger/metrics"
	"furitingoasis/fogger/sensor"
)

var noon = time.Date(2025, 6, 1, 12, 0, 3, 0, time.UTC)

// fakeBoard serves /sensor and /control the way the fogger board does.
type fakeBoard struct {
	mu          sync.Mutex
	temperature float64
	humidity    float64
	commands    []string
}

func newFakeBoard(t *testing.T, temperature, humidity float64) (*fakeBoard, *httptest.Server) {
	b := &fakeBoard{temperature: temperature, humidity: humidity}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sensor", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]float64{"temperature": b.temperature, "humidity": b.humidity})
	})
	mux.HandleFunc("GET /control", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.commands = append(b.commands, r.URL.Query().Get("fogger"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBoard) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.commands) == 0 {
		return ""
	}
	return b.commands[len(b.commands)-1]
}

func newTestApplication(t *testing.T, boardURL string) *application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	templateCache, err := newTemplateCache()
	require.NoError(t, err)

	store, err := history.Open(filepath.Join(t.TempDir(), "sensor_data.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	model, err := classifier.Load(filepath.Join("..", "..", "..", "models", "fogger_dt_model.json"))
	require.NoError(t, err)

	m := metrics.New()
	client := &http.Client{}
	ctrl, err := control.NewController(
		&sensor.DeviceSource{BaseURL: boardURL, Timeout: time.Second, Client: client, Now: func() time.Time { return noon }},
		model,
		&control.Actuator{Endpoint: boardURL, Timeout: time.Second, Client: client},
		control.SchemaTempHumidityHour,
		control.WithLogger(logger),
		control.WithClock(func() time.Time { return noon }),
		control.WithRecorder(store),
		control.WithRecorder(m),
	)
	require.NoError(t, err)

	sessionManager := scs.New()
	sessionManager.Lifetime = 12 * time.Hour
	sessionManager.Cookie.Secure = true

	return &application{
		logger:         logger,
		controller:     ctrl,
		history:        store,
		metrics:        m,
		templateCache:  templateCache,
		formDecoder:    form.NewDecoder(),
		sessionManager: sessionManager,
		refresh:        10 * time.Second,
		chartPoints:    200,
	}
}

type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T, h http.Handler) *testServer {
	ts := httptest.NewTLSServer(h)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	ts.Client().Jar = jar
	ts.Client().CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	t.Cleanup(ts.Close)
	return &testServer{ts}
}

func (ts *testServer) get(t *testing.T, urlPath string) (int, http.Header, string) {
	rs, err := ts.Client().Get(ts.URL + urlPath)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Body.Close()
	body, err := io.ReadAll(rs.Body)
	if err != nil {
		t.Fatal(err)
	}
	return rs.StatusCode, rs.Header, string(bytes.TrimSpace(body))
}

func (ts *testServer) postForm(t *testing.T, urlPath string, form url.Values) (int, http.Header, string) {
	rs, err := ts.Client().PostForm(ts.URL+urlPath, form)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Body.Close()
	body, err := io.ReadAll(rs.Body)
	if err != nil {
		t.Fatal(err)
	}
	return rs.StatusCode, rs.Header, string(bytes.TrimSpace(body))
}

var csrfTokenRX = regexp.MustCompile(`<input type='hidden' name='csrf_token' value='(.+)'>`)

func extractCSRFToken(t *testing.T, body string) string {
	matches := csrfTokenRX.FindStringSubmatch(body)
	if len(matches) < 2 {
		t.Fatal("no csrf token found in body")
	}
	return html.UnescapeString(matches[1])
}
