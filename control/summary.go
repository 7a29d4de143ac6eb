package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"furitingoasis/fogger/sensor"
)

// Summary is everything one cycle produced, for display and logging.
type Summary struct {
	ID          uuid.UUID       `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	Reading     sensor.Reading  `json:"reading"`
	SensorError ErrorKind       `json:"sensor_error,omitempty"`
	SensorCause string          `json:"sensor_cause,omitempty"`
	Features    Features        `json:"features"`
	Verdict     Verdict         `json:"verdict"`
	Mode        Mode            `json:"mode"`
	Commanded   CommandedState  `json:"commanded"`
	Actuation   ActuationResult `json:"actuation"`
	Busy        bool            `json:"busy,omitempty"`
}

// Warnings lists the inline warnings the dashboard shows for this cycle.
func (s Summary) Warnings() []string {
	if s.Busy {
		return []string{"Another evaluation was still running, so nothing was read or sent this time."}
	}
	var w []string
	if s.SensorError == KindSensorUnavailable {
		w = append(w, "Failed to connect to the sensor board, showing simulated data.")
	}
	switch s.Actuation.Kind {
	case KindUnreachable:
		w = append(w, fmt.Sprintf("Could not send the fogger command; intended state is %s.", s.Commanded))
	case KindRemoteRejected:
		w = append(w, fmt.Sprintf("Board rejected the fogger command with status %d; intended state is %s.", s.Actuation.StatusCode, s.Commanded))
	}
	return w
}

// Status is the one-line fogger status, e.g. "Fogger is ON (Auto)".
func (s Summary) Status() string {
	if s.Busy {
		return fmt.Sprintf("Fogger state unchanged (%s)", s.Mode.Label())
	}
	return fmt.Sprintf("Fogger is %s (%s)", s.Commanded, s.Mode.Label())
}

func (s Summary) String() string {
	if s.Busy {
		return fmt.Sprintf("busy | mode %s | not evaluated", s.Mode)
	}
	var b strings.Builder
	fallback := ""
	if s.Reading.IsFallback {
		fallback = " [fallback]"
	}
	fmt.Fprintf(&b, "%.1f°C %.1f%%%s | verdict %s | mode %s | %s",
		s.Reading.Temperature, s.Reading.Humidity, fallback, s.Verdict, s.Mode, s.Commanded)
	if s.Actuation.Succeeded {
		fmt.Fprintf(&b, " | sent (%d)", s.Actuation.StatusCode)
	} else {
		fmt.Fprintf(&b, " | not sent (%s", s.Actuation.Kind)
		if s.Actuation.StatusCode != 0 {
			fmt.Fprintf(&b, " %d", s.Actuation.StatusCode)
		}
		b.WriteString(")")
	}
	return b.String()
}
