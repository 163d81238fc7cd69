// Package host drives the application runtime that tests execute in.
package host

import (
	"context"
	"time"

	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

// Outcome is the result of running one test in the host.
type Outcome struct {
	Status  suite.Status
	Detail  string        // Traceback or skip reason
	Elapsed time.Duration // Time spent inside the test
	Output  string        // Captured output, when suppressed
}

// Host is the application runtime seen by the runner. Suppress/Restore
// bracket a run; ResetDocument is called between tests when configured.
type Host interface {
	SuppressOutput() error
	RestoreOutput() error
	ResetDocument() error
	// RunTest executes one test. An error means the host could not run the
	// test at all; test failures are reported through the Outcome.
	RunTest(ctx context.Context, t suite.Test) (Outcome, error)
}
