// Package config loads the fogger settings: built-in defaults, then an
// optional JSON file, then FOGGER_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"furitingoasis/fogger/control"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Duration reads "2s"-style strings from JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

const (
	SourceDevice = "device"
	SourceCloud  = "cloud"
)

// MQTT settings; an empty BrokerURL disables publishing.
type MQTT struct {
	BrokerURL   string `json:"broker_url"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// Config is the full set of controller settings.
type Config struct {
	// DeviceURL is the relay board, e.g. http://192.168.1.10. It serves
	// /control and, for the device source, /sensor.
	DeviceURL        string   `json:"device_url"`
	SensorSource     string   `json:"sensor_source"`
	CloudURL         string   `json:"cloud_url"`
	CloudPath        []string `json:"cloud_path"`
	SensorTimeout    Duration `json:"sensor_timeout"`
	ActuationTimeout Duration `json:"actuation_timeout"`

	ModelPath     string `json:"model_path"`
	FeatureSchema string `json:"feature_schema"`

	HistoryDSN       string   `json:"history_dsn"`
	HistoryRetention Duration `json:"history_retention"`
	ChartPoints      int      `json:"chart_points"`

	RefreshInterval Duration `json:"refresh_interval"`

	MQTT MQTT `json:"mqtt"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		DeviceURL:        "http://192.168.1.10",
		SensorSource:     SourceDevice,
		SensorTimeout:    Duration{2 * time.Second},
		ActuationTimeout: Duration{control.DefaultTimeout},
		ModelPath:        "models/fogger_dt_model.json",
		FeatureSchema:    string(control.SchemaTempHumidityHour),
		HistoryDSN:       "instance/sensor_data.db",
		HistoryRetention: Duration{48 * time.Hour},
		ChartPoints:      200,
		RefreshInterval:  Duration{10 * time.Second},
		MQTT: MQTT{
			ClientID:    "fogger-controller",
			TopicPrefix: "farm/fogger",
		},
	}
}

// Load layers path (skipped when empty) and the environment over Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"FOGGER_DEVICE_URL":        &c.DeviceURL,
		"FOGGER_SENSOR_SOURCE":     &c.SensorSource,
		"FOGGER_CLOUD_URL":         &c.CloudURL,
		"FOGGER_MODEL_PATH":        &c.ModelPath,
		"FOGGER_FEATURE_SCHEMA":    &c.FeatureSchema,
		"FOGGER_HISTORY_DSN":       &c.HistoryDSN,
		"FOGGER_MQTT_BROKER":       &c.MQTT.BrokerURL,
		"FOGGER_MQTT_CLIENT_ID":    &c.MQTT.ClientID,
		"FOGGER_MQTT_USERNAME":     &c.MQTT.Username,
		"FOGGER_MQTT_PASSWORD":     &c.MQTT.Password,
		"FOGGER_MQTT_TOPIC_PREFIX": &c.MQTT.TopicPrefix,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	// FOGGER_CLOUD_PATH is comma separated, e.g. "farm,house1,climate".
	if v, ok := os.LookupEnv("FOGGER_CLOUD_PATH"); ok {
		c.CloudPath = nil
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				c.CloudPath = append(c.CloudPath, key)
			}
		}
	}
	dur := map[string]*Duration{
		"FOGGER_ACTUATION_TIMEOUT": &c.ActuationTimeout,
		"FOGGER_SENSOR_TIMEOUT":    &c.SensorTimeout,
		"FOGGER_REFRESH_INTERVAL":  &c.RefreshInterval,
	}
	for key, dst := range dur {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
		dst.Duration = d
	}
	return nil
}

// Validate checks the settings without touching the network.
func (c Config) Validate() error {
	if err := checkURL(c.DeviceURL); err != nil {
		return fmt.Errorf("%w: device_url: %v", ErrInvalid, err)
	}
	switch c.SensorSource {
	case SourceDevice:
	case SourceCloud:
		if err := checkURL(c.CloudURL); err != nil {
			return fmt.Errorf("%w: cloud_url: %v", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: sensor_source must be %q or %q, got %q", ErrInvalid, SourceDevice, SourceCloud, c.SensorSource)
	}
	if _, err := control.ParseFeatureSchema(c.FeatureSchema); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("%w: model_path is required", ErrInvalid)
	}
	for name, d := range map[string]Duration{
		"sensor_timeout":    c.SensorTimeout,
		"actuation_timeout": c.ActuationTimeout,
		"refresh_interval":  c.RefreshInterval,
		"history_retention": c.HistoryRetention,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	if c.ChartPoints < 2 {
		return fmt.Errorf("%w: chart_points must be at least 2", ErrInvalid)
	}
	return nil
}

// CycleBudget is the longest one cycle can take: a sensor read plus one
// actuation.
func (c Config) CycleBudget() time.Duration {
	return c.SensorTimeout.Duration + c.ActuationTimeout.Duration
}

// Schema is the validated feature schema.
func (c Config) Schema() control.FeatureSchema {
	return control.FeatureSchema(c.FeatureSchema)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) url", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
