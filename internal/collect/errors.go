package collect

import (
	"errors"
	"fmt"

	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

// ErrNotFound is returned when a named test cannot be resolved to a module,
// class or method.
var ErrNotFound = errors.New("test not found")

// ErrMalformedIdentity is re-exported so callers need only this package.
var ErrMalformedIdentity = suite.ErrMalformedIdentity

// DiscoveryError reports a named test that could not be resolved. It aborts
// only the Collect call that produced it.
type DiscoveryError struct {
	Identity suite.Identity
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %q: %v", e.Identity, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ShadowedModuleError reports a module file whose dotted name was already
// collected from another file. Only the first file is importable under that
// name, so the second one's tests cannot run.
type ShadowedModuleError struct {
	Module    string
	File      string
	Collected string
}

func (e *ShadowedModuleError) Error() string {
	return fmt.Sprintf("%q module incorrectly imported from %s, expected %s: module name already used by another search path",
		e.Module, e.File, e.Collected)
}
