// Package bootstrap builds a control.Controller from the loaded config.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"furitingoasis/fogger/classifier"
	"furitingoasis/fogger/config"
	"furitingoasis/fogger/control"
	"furitingoasis/fogger/sensor"
)

// Source picks the configured sensor source.
func Source(cfg config.Config, client *http.Client) sensor.Source {
	if cfg.SensorSource == config.SourceCloud {
		return &sensor.CloudSource{
			DocumentURL: cfg.CloudURL,
			Path:        cfg.CloudPath,
			Timeout:     cfg.SensorTimeout.Duration,
			Client:      client,
		}
	}
	return &sensor.DeviceSource{
		BaseURL: cfg.DeviceURL,
		Timeout: cfg.SensorTimeout.Duration,
		Client:  client,
	}
}

// Controller loads the model and wires the controller. An error wrapping
// classifier.ErrUnavailable means no verdict can ever be produced and the
// caller should exit.
func Controller(cfg config.Config, logger *slog.Logger, recorders ...control.Recorder) (*control.Controller, error) {
	model, err := classifier.Load(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	logger.Info("classifier loaded", "path", cfg.ModelPath, "schema", model.Schema(), "nodes", model.Nodes())

	client := &http.Client{}
	act := &control.Actuator{
		Endpoint: cfg.DeviceURL,
		Timeout:  cfg.ActuationTimeout.Duration,
		Client:   client,
	}
	// A queued cycle waits at most one cycle's worth before giving up.
	opts := []control.Option{control.WithLogger(logger), control.WithMaxWait(cfg.CycleBudget())}
	for _, r := range recorders {
		opts = append(opts, control.WithRecorder(r))
	}
	ctrl, err := control.NewController(Source(cfg, client), model, act, cfg.Schema(), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classifier.ErrUnavailable, err)
	}
	return ctrl, nil
}
