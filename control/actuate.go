package control

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds one actuation request when none is configured.
const DefaultTimeout = 2 * time.Second

// ErrorKind classifies what went wrong in a cycle.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindSensorUnavailable
	KindUnreachable
	KindRemoteRejected
	KindClassifierUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindSensorUnavailable:
		return "SensorUnavailable"
	case KindUnreachable:
		return "Unreachable"
	case KindRemoteRejected:
		return "RemoteRejected"
	case KindClassifierUnavailable:
		return "ClassifierUnavailable"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ActuationResult is the outcome of one request to the relay board.
type ActuationResult struct {
	Attempted  bool          `json:"attempted"`
	Succeeded  bool          `json:"succeeded"`
	StatusCode int           `json:"status_code,omitempty"`
	Kind       ErrorKind     `json:"error,omitempty"`
	Cause      error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// Actuator sends commanded states to the board's control endpoint.
type Actuator struct {
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
}

// Actuate issues exactly one GET {endpoint}/control?fogger={0|1} and waits
// at most timeout for the answer. Every outcome is reported in the result.
func Actuate(ctx context.Context, endpoint string, state CommandedState, timeout time.Duration) ActuationResult {
	a := Actuator{Endpoint: endpoint, Timeout: timeout}
	return a.Actuate(ctx, state)
}

func (a *Actuator) Actuate(ctx context.Context, state CommandedState) (res ActuationResult) {
	res.Attempted = true
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	target, err := a.controlURL(state)
	if err != nil {
		res.Kind, res.Cause = KindUnreachable, err
		return res
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Kind, res.Cause = KindUnreachable, err
		return res
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		res.Kind, res.Cause = KindUnreachable, err
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	res.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		res.Kind = KindRemoteRejected
		res.Cause = fmt.Errorf("control endpoint returned %s", resp.Status)
		return res
	}
	res.Succeeded = true
	return res
}

func (a *Actuator) controlURL(state CommandedState) (string, error) {
	u, err := url.Parse(a.Endpoint)
	if err != nil {
		return "", fmt.Errorf("bad actuator endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("bad actuator endpoint %q", a.Endpoint)
	}
	u = u.JoinPath("control")
	q := u.Query()
	q.Set("fogger", state.QueryValue())
	u.RawQuery = q.Encode()
	return u.String(), nil
}
