// Package runner drives discovery and execution cycles against a host and
// streams results into a sink, usually the tree model.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rickchristie/govner/mayatdd/internal/collect"
	"github.com/rickchristie/govner/mayatdd/internal/host"
	"github.com/rickchristie/govner/mayatdd/internal/rollback"
	"github.com/rickchristie/govner/mayatdd/internal/session"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
	"github.com/rickchristie/govner/mayatdd/internal/tempfiles"
	"github.com/rickchristie/govner/mayatdd/internal/tree"
)

// Options mirrors the run parameters of the configuration.
type Options struct {
	BufferOutput bool // Only fatal log messages pass while tests run
	KeepTmpFiles bool // Keep the scratch directory after the run
	FileNew      bool // Reset the host document after every test
}

// Sink receives one result per executed test. *tree.Model is a Sink.
type Sink interface {
	ApplyOutcome(id suite.Identity, status suite.Status, detail string, elapsed time.Duration) bool
}

// StartNotifier is implemented by sinks that want to know when a test starts.
type StartNotifier interface {
	TestStarted(id suite.Identity)
}

// OrchestrationError is a failure around test execution that leaves the host
// in an unknown state. The run is incomplete.
type OrchestrationError struct {
	Step string
	Err  error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("run %s failed: %v", e.Step, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// Runner owns the session state of one host session and runs cycles on it.
// A single Runner is created by the entry point and shared by reference.
type Runner struct {
	session   *session.Session
	resolver  *session.Resolver
	collector *collect.Collector
	rollback  *rollback.Tracker
	host      host.Host
	files     *tempfiles.Registry
	opts      Options
}

// New creates a runner. The collector must import through s.
func New(s *session.Session, c *collect.Collector, h host.Host, files *tempfiles.Registry, opts Options) *Runner {
	return &Runner{
		session:   s,
		resolver:  session.NewResolver(s.Path),
		collector: c,
		rollback:  rollback.NewTracker(s.Modules),
		host:      h,
		files:     files,
		opts:      opts,
	}
}

// Session returns the runner's session.
func (r *Runner) Session() *session.Session {
	return r.session
}

// Discover starts a new cycle: modules imported during the previous cycle are
// evicted so edited code is read again, search paths are registered for the
// session, and tests are collected. A specific test only registers its paths
// for the duration of the lookup. A done context stops the cycle before
// anything is evicted.
func (r *Runner) Discover(ctx context.Context, paths []string, specific suite.Identity) (*suite.Suite, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &OrchestrationError{Step: "interrupted", Err: ctxErr}
	}

	if evicted := r.rollback.Rotate(); len(evicted) > 0 {
		log.Info().Int("modules", len(evicted)).Msg("evicted modules from previous cycle")
	}

	if specific == "" {
		r.resolver.RegisterAll(r.searchDirs(paths))
	}

	s, err := r.collector.Collect(paths, specific)
	if err != nil {
		return nil, err
	}

	if specific == "" {
		r.registerModuleRoots(s)
	}
	log.Info().Int("tests", s.Count()).Str("specific", string(specific)).Msg("discovered tests")
	return s, nil
}

func (r *Runner) searchDirs(paths []string) []string {
	if len(paths) == 0 {
		return r.collector.DefaultRoots()
	}
	var dirs []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

// registerModuleRoots makes explicitly listed module files importable by the
// host for the rest of the session.
func (r *Runner) registerModuleRoots(s *suite.Suite) {
	seen := make(map[string]bool)
	for _, leaf := range s.Leaves() {
		if seen[leaf.Module] {
			continue
		}
		seen[leaf.Module] = true
		if m, ok := r.session.Modules.Get(leaf.Module); ok && m.File != "" {
			r.resolver.Register(m.Root())
		}
	}
}

// Run executes every test of s in suite order and applies each outcome to
// sink. Import failure markers are reported without touching the host, as
// SKIPPED when the module skipped itself and ERROR otherwise. Failures to prepare, launch or restore the host abort the run with an
// *OrchestrationError; test failures never do.
func (r *Runner) Run(ctx context.Context, s *suite.Suite, sink Sink) (summary Summary, err error) {
	summary.RunID = uuid.NewString()
	logger := log.With().Str("run", summary.RunID).Logger()
	started := time.Now()

	restoreLevel, err := r.setup()
	if err != nil {
		return summary, err
	}
	defer func() {
		if tdErr := r.teardown(restoreLevel); tdErr != nil {
			if err == nil {
				err = tdErr
			} else {
				err = errors.Join(err, tdErr)
			}
		}
		summary.Elapsed = time.Since(started)
		logger.Info().
			Int("total", summary.Total).
			Int("failed", summary.Fail).
			Int("errors", summary.Error).
			Dur("elapsed", summary.Elapsed).
			Msg("run finished")
	}()

	notifier, _ := sink.(StartNotifier)
	leaves := s.Leaves()
	logger.Info().Int("tests", len(leaves)).Msg("run started")

	for _, leaf := range leaves {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, &OrchestrationError{Step: "interrupted", Err: ctxErr}
		}

		id := leaf.ID()
		if notifier != nil {
			notifier.TestStarted(id)
		}

		if leaf.Kind == suite.KindImportFailure {
			detail := ""
			if leaf.Err != nil {
				detail = leaf.Err.Error()
			}
			status := leaf.MarkerStatus()
			sink.ApplyOutcome(id, status, detail, 0)
			summary.add(Result{Identity: id, Status: status, Detail: detail})
			continue
		}

		out, runErr := r.host.RunTest(ctx, leaf.Test)
		if runErr != nil {
			return summary, &OrchestrationError{Step: "test " + string(id), Err: runErr}
		}
		sink.ApplyOutcome(id, out.Status, out.Detail, out.Elapsed)
		summary.add(Result{Identity: id, Status: out.Status, Detail: out.Detail, Elapsed: out.Elapsed})
		logger.Debug().Str("test", string(id)).Str("status", out.Status.String()).Dur("elapsed", out.Elapsed).Msg("test finished")

		if r.opts.FileNew {
			if resetErr := r.host.ResetDocument(); resetErr != nil {
				return summary, &OrchestrationError{Step: "reset document", Err: resetErr}
			}
		}
	}
	return summary, nil
}

// setup silences the host and, when buffering, the logger. It returns the
// log level to restore.
func (r *Runner) setup() (zerolog.Level, error) {
	level := zerolog.GlobalLevel()
	if err := r.host.SuppressOutput(); err != nil {
		return level, &OrchestrationError{Step: "suppress output", Err: err}
	}
	if r.opts.BufferOutput {
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}
	return level, nil
}

// teardown always runs every step and joins their errors.
func (r *Runner) teardown(level zerolog.Level) error {
	var errs []error
	zerolog.SetGlobalLevel(level)
	if err := r.host.RestoreOutput(); err != nil {
		errs = append(errs, fmt.Errorf("restore output: %w", err))
	}
	if !r.opts.KeepTmpFiles && r.files != nil {
		if err := r.files.RemoveAll(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &OrchestrationError{Step: "teardown", Err: errors.Join(errs...)}
	}
	return nil
}

// Cycle discovers, builds a fresh tree and runs it. Results go to the tree
// and, when given, to extra.
func (r *Runner) Cycle(ctx context.Context, paths []string, specific suite.Identity, extra Sink) (*tree.Model, Summary, error) {
	s, err := r.Discover(ctx, paths, specific)
	if err != nil {
		return nil, Summary{}, err
	}
	model := tree.Build(s)
	var sink Sink = model
	if extra != nil {
		sink = Tee(model, extra)
	}
	summary, err := r.Run(ctx, s, sink)
	return model, summary, err
}

// Select narrows s to the given leaf identities, keeping suite order.
// Returns nil when none match.
func Select(s *suite.Suite, ids []suite.Identity) *suite.Suite {
	want := make(map[suite.Identity]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.Filter(func(leaf *suite.Suite) bool {
		return want[leaf.ID()]
	})
}

type tee []Sink

// Tee fans results out to several sinks.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) ApplyOutcome(id suite.Identity, status suite.Status, detail string, elapsed time.Duration) bool {
	applied := false
	for _, s := range t {
		if s.ApplyOutcome(id, status, detail, elapsed) {
			applied = true
		}
	}
	return applied
}

func (t tee) TestStarted(id suite.Identity) {
	for _, s := range t {
		if n, ok := s.(StartNotifier); ok {
			n.TestStarted(id)
		}
	}
}
