// Package sensor fetches temperature and humidity readings from the fogger
// controller board or from a cloud document, and builds flagged fallback
// readings when neither answers.
package sensor

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every failure to obtain a live reading.
var ErrUnavailable = errors.New("sensor unavailable")

// Reading is one temperature/humidity sample.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	ObservedAt  time.Time `json:"observed_at"`
	IsFallback  bool      `json:"is_fallback"`
}

// Source supplies the current reading. Implementations must honour ctx
// cancellation and return an error wrapping ErrUnavailable on failure.
type Source interface {
	Read(ctx context.Context) (Reading, error)
}

// Fallback returns the synthetic reading shown while the board is offline.
// The values drift with the wall clock second so the dashboard still moves.
func Fallback(now time.Time) Reading {
	sec := now.Second()
	return Reading{
		Temperature: 30.0 + float64(sec%5),
		Humidity:    60.0 + float64(sec%3),
		ObservedAt:  now,
		IsFallback:  true,
	}
}
