package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 2 * time.Second

// DeviceSource reads from the board's local HTTP endpoint: GET {BaseURL}/sensor.
type DeviceSource struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Now     func() time.Time
}

type devicePayload struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// Read fetches and decodes one reading.
func (d *DeviceSource) Read(ctx context.Context) (Reading, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: bad device url: %v", ErrUnavailable, err)
	}
	body, err := fetch(ctx, d.client(), u.JoinPath("sensor").String(), d.timeout())
	if err != nil {
		return Reading{}, err
	}

	var p devicePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Reading{}, fmt.Errorf("%w: decoding sensor payload: %v", ErrUnavailable, err)
	}
	if p.Temperature == nil || p.Humidity == nil {
		return Reading{}, fmt.Errorf("%w: sensor payload missing temperature or humidity", ErrUnavailable)
	}
	return Reading{
		Temperature: *p.Temperature,
		Humidity:    *p.Humidity,
		ObservedAt:  now(d.Now),
	}, nil
}

func (d *DeviceSource) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *DeviceSource) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return defaultTimeout
}

// fetch performs a bounded GET and returns the body of a 200 response.
func fetch(ctx context.Context, client *http.Client, target string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}
	return body, nil
}

func now(f func() time.Time) time.Time {
	if f != nil {
		return f()
	}
	return time.Now()
}
