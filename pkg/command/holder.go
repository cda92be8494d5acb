// Package command decouples what the pilot is pointing at from what is sent
// to the controller.
//
// A Holder keeps the latest normalized command of one joystick. A Dispatcher
// forwards it at a fixed cadence, independent of how often the pointer moves,
// and sends one immediate neutral command when the joystick is released.
package command

import (
	"sync"

	"github.com/teslashibe/go-pilot/pkg/joystick"
)

// Holder stores the last-known command of one joystick, or neutral when the
// joystick is disengaged.
type Holder struct {
	mu    sync.RWMutex
	value joystick.Vector
	set   bool
}

// Set stores v as the current command.
func (h *Holder) Set(v joystick.Vector) {
	h.mu.Lock()
	h.value = v
	h.set = true
	h.mu.Unlock()
}

// Reset returns the holder to neutral.
func (h *Holder) Reset() {
	h.mu.Lock()
	h.value = joystick.Neutral
	h.set = false
	h.mu.Unlock()
}

// Load returns the current command and whether one is held.
func (h *Holder) Load() (joystick.Vector, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.value, h.set
}
