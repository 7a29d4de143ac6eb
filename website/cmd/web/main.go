package main

import (
	"crypto/tls"
	"database/sql"
	"errors"
	"flag"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/go-playground/form/v4"
	_ "github.com/mattn/go-sqlite3"

	"furitingoasis/fogger/bootstrap"
	"furitingoasis/fogger/classifier"
	"furitingoasis/fogger/config"
	"furitingoasis/fogger/control"
	"furitingoasis/fogger/history"
	"furitingoasis/fogger/metrics"
	"furitingoasis/fogger/mqtt"
)

type application struct {
	logger         *slog.Logger
	controller     *control.Controller
	history        *history.Store
	metrics        *metrics.Metrics
	templateCache  map[string]*template.Template
	formDecoder    *form.Decoder
	sessionManager *scs.SessionManager
	refresh        time.Duration
	chartPoints    int
}

// Sessions live in a private in-memory database so the selected mode lasts
// for the browser session and is gone after a restart.
const sessionDSN = "file:fogger_sessions?mode=memory&cache=shared"

func main() {
	addr := flag.String("addr", ":4000", "HTTP network address")
	configPath := flag.String("config", "", "JSON config file (defaults and FOGGER_* env apply)")
	certFile := flag.String("tls-cert", "", "TLS certificate, e.g. ./tls/cert.pem")
	keyFile := flag.String("tls-key", "", "TLS key, e.g. ./tls/key.pem")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	store, err := history.Open(cfg.HistoryDSN, logger)
	if err != nil {
		logger.Error("opening history", "dsn", cfg.HistoryDSN, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	retention, err := history.ScheduleRetention(store, cfg.HistoryRetention.Duration)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	defer retention.Stop()

	m := metrics.New()
	recorders := []control.Recorder{store, m}
	if cfg.MQTT.BrokerURL != "" {
		pub, err := mqtt.Connect(mqtt.MQTTConfig{
			BrokerURL:     cfg.MQTT.BrokerURL,
			ClientID:      cfg.MQTT.ClientID + "-web",
			Username:      cfg.MQTT.Username,
			Password:      cfg.MQTT.Password,
			TopicPrefix:   cfg.MQTT.TopicPrefix,
			AutoReconnect: true,
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
		}, logger)
		if err != nil {
			logger.Warn("continuing without MQTT", "error", err)
		} else {
			defer pub.Close()
			recorders = append(recorders, pub)
		}
	}

	controller, err := bootstrap.Controller(cfg, logger, recorders...)
	if err != nil {
		if errors.Is(err, classifier.ErrUnavailable) {
			logger.Error("ClassifierUnavailable: no fogger verdict can be produced", "model", cfg.ModelPath, "error", err)
		} else {
			logger.Error(err.Error())
		}
		os.Exit(1)
	}

	sessionDB, err := openDB(sessionDSN)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	defer sessionDB.Close()
	if err := createSessionTable(sessionDB); err != nil {
		logger.Error("failed to create sessions table", "error", err)
		os.Exit(1)
	}

	templateCache, err := newTemplateCache()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.New(sessionDB)
	sessionManager.Lifetime = 12 * time.Hour
	sessionManager.Cookie.Secure = *certFile != ""

	app := &application{
		logger:         logger,
		controller:     controller,
		history:        store,
		metrics:        m,
		templateCache:  templateCache,
		formDecoder:    form.NewDecoder(),
		sessionManager: sessionManager,
		refresh:        cfg.RefreshInterval.Duration,
		chartPoints:    cfg.ChartPoints,
	}

	tlsConfig := &tls.Config{
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
		MinVersion:       tls.VersionTLS12,
		MaxVersion:       tls.VersionTLS13,
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      app.routes(),
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
		TLSConfig:    tlsConfig,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10*time.Second + 2*cfg.CycleBudget(),
	}

	logger.Info("starting server", "addr", *addr, "device", cfg.DeviceURL, "schema", cfg.FeatureSchema)
	if *certFile != "" && *keyFile != "" {
		err = srv.ListenAndServeTLS(*certFile, *keyFile)
	} else {
		err = srv.ListenAndServe()
	}
	logger.Error(err.Error())
	os.Exit(1)
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps the shared in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createSessionTable(db *sql.DB) error {
	stmt := `
			CREATE TABLE IF NOT EXISTS sessions (
					token TEXT PRIMARY KEY,
					data BLOB NOT NULL,
					expiry REAL NOT NULL
			);
			CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions (expiry);
	`
	_, err := db.Exec(stmt)
	return err
}
