package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// ErrUnauthorized marks owner-initiated operations attempted by an address the
// host has not allow-listed.
var ErrUnauthorized = errors.New("caller not authorized")

// PauseView exposes governance pause toggles per module.
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

// Authorizer is the external allow-list capability. The core never stores or
// mutates the list; it only consults the boolean.
type Authorizer interface {
	IsAuthorized(addr [20]byte) bool
}

// RequireAuthorized enforces the allow-list precondition. A nil authorizer
// disables the check, mirroring Guard.
func RequireAuthorized(a Authorizer, addr [20]byte) error {
	if a == nil {
		return nil
	}
	if !a.IsAuthorized(addr) {
		return ErrUnauthorized
	}
	return nil
}
