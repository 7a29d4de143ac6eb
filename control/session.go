package control

import (
	"fmt"
	"sync"
)

// Session holds the operator's mode for one interactive session. It is owned
// by whatever drives the cycles; the zero value starts in ModeAuto.
type Session struct {
	mu   sync.Mutex
	mode Mode
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Select replaces the mode. Selecting the current mode again is a no-op.
func (s *Session) Select(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid mode %d", int(m))
	}
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
	return nil
}
