// Package control turns a sensor reading, a classifier verdict and the
// operator's mode into the fogger's commanded state and pushes it to the
// relay board.
package control

import (
	"fmt"
	"strings"
)

// Mode is the operator-selected policy. The zero value is ModeAuto.
type Mode int

const (
	ModeAuto Mode = iota
	ModeForceOn
	ModeForceOff
)

// Modes lists every mode in button order.
var Modes = []Mode{ModeAuto, ModeForceOn, ModeForceOff}

// ParseMode accepts "auto", "force_on" and "force_off" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return ModeAuto, nil
	case "force_on":
		return ModeForceOn, nil
	case "force_off":
		return ModeForceOff, nil
	}
	return ModeAuto, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) Valid() bool {
	return m >= ModeAuto && m <= ModeForceOff
}

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeForceOn:
		return "force_on"
	case ModeForceOff:
		return "force_off"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Label is the button caption.
func (m Mode) Label() string {
	switch m {
	case ModeAuto:
		return "Auto (AI Control)"
	case ModeForceOn:
		return "Force ON"
	case ModeForceOff:
		return "Force OFF"
	}
	return m.String()
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
