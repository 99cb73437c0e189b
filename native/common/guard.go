package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a native module has been administratively halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects state-mutating calls into a paused module. A nil view means
// pausing is not wired and the call proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a concrete PauseView backed by a set of halted module names. The
// zero value pauses nothing.
type Pauses struct {
	halted map[string]bool
}

func (p *Pauses) SetPaused(module string, paused bool) {
	if p == nil || module == "" {
		return
	}
	if p.halted == nil {
		p.halted = make(map[string]bool)
	}
	p.halted[module] = paused
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	return p.halted[module]
}
