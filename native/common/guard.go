// Package common holds the small cross-cutting pieces shared by the native
// modules, currently the pause kill-switch consulted before every mutating
// operation.
package common

import "errors"

// ErrModulePaused is returned when the named module's kill-switch is engaged.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module has been administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects an operation while its module is paused. A nil view or empty
// module name means pausing is not wired, so the guard passes.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
