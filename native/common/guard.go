package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// Module names checked by Guard.
const (
	ModuleCDP   = "cdp"
	ModulePool  = "pool"
	ModuleToken = "token"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
