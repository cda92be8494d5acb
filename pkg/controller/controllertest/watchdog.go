package controllertest

import "time"

// armLocked restarts the safety timer after a move. A neutral vector needs
// no watchdog. Callers hold s.mu.
func (s *Server) armLocked() {
	if s.watchdog <= 0 {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed++
	if s.state.Vector.IsZero() {
		return
	}
	gen := s.armed
	s.timer = time.AfterFunc(s.watchdog, func() { s.trip(gen) })
}

// trip zeroes the vector when the stop signal was lost.
func (s *Server) trip(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.armed || s.state.Vector.IsZero() {
		return
	}
	s.state.Vector = Vector{}
	s.state.WatchdogTrips++
	s.timer = nil
	s.logger.Warn("no input received, zeroing flight vector", "timeout", s.watchdog)
}
