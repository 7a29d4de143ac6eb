package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CloudSource reads the latest values from a JSON document in a cloud
// key-value store, e.g. a realtime-database REST URL ending in ".json".
// Path walks nested objects before the temperature and humidity keys are
// looked up.
type CloudSource struct {
	DocumentURL string
	Path        []string
	Timeout     time.Duration
	Client      *http.Client
	Now         func() time.Time
}

func (c *CloudSource) Read(ctx context.Context) (Reading, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	body, err := fetch(ctx, client, c.DocumentURL, timeout)
	if err != nil {
		return Reading{}, err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Reading{}, fmt.Errorf("%w: decoding cloud document: %v", ErrUnavailable, err)
	}
	for _, key := range c.Path {
		next, ok := doc[key].(map[string]any)
		if !ok {
			return Reading{}, fmt.Errorf("%w: cloud document has no object at %q", ErrUnavailable, strings.Join(c.Path, "/"))
		}
		doc = next
	}

	temp, err := number(doc, "temperature")
	if err != nil {
		return Reading{}, err
	}
	hum, err := number(doc, "humidity")
	if err != nil {
		return Reading{}, err
	}
	return Reading{Temperature: temp, Humidity: hum, ObservedAt: now(c.Now)}, nil
}

// number accepts JSON numbers and numeric strings; boards that push through
// the store's REST API often write values as strings.
func number(doc map[string]any, key string) (float64, error) {
	switch v := doc[key].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not numeric: %q", ErrUnavailable, key, v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: cloud document missing %s", ErrUnavailable, key)
	default:
		return 0, fmt.Errorf("%w: %s has unexpected type %T", ErrUnavailable, key, v)
	}
}
