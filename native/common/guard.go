package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned when a pause switch blocks a module entry
// point. Callers match it with errors.Is; the wrapped message names the
// paused module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports per-module pause switches.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view means
// pauses are not wired and everything is allowed.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
