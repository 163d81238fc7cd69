package host

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rickchristie/govner/mayatdd/internal/session"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
	"github.com/rickchristie/govner/mayatdd/internal/tempfiles"
)

//go:embed bootstrap.py
var bootstrapSource []byte

// ErrLaunch is returned when the interpreter cannot be started at all.
var ErrLaunch = errors.New("failed to launch interpreter")

// Options configures a Process host.
type Options struct {
	Interpreter string   // mayapy executable
	Args        []string // Extra interpreter arguments, before the script
	Standalone  bool     // Initialize maya.standalone in every test process
	CleanAppDir bool     // Give the interpreter an empty MAYA_APP_DIR
	Stdout      io.Writer
	Stderr      io.Writer
}

// ExecFunc runs the interpreter and waits for it to exit.
type ExecFunc func(ctx context.Context, name string, args, env []string, stdout, stderr io.Writer) error

// Process runs every test in a fresh interpreter process. The import path of
// the session is passed as PYTHONPATH and the outcome comes back through a
// JSON file in the scratch directory.
type Process struct {
	Exec ExecFunc

	opts    Options
	session *session.Session
	files   *tempfiles.Registry
	script  string
	appDir  string

	quiet        bool
	resetPending bool
}

// NewProcess creates a process host. The session's import path is read on
// every test so paths registered later are visible.
func NewProcess(s *session.Session, files *tempfiles.Registry, opts Options) *Process {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Process{
		Exec:    runCommand,
		opts:    opts,
		session: s,
		files:   files,
	}
}

func runCommand(ctx context.Context, name string, args, env []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// SuppressOutput captures interpreter output instead of streaming it.
func (p *Process) SuppressOutput() error {
	p.quiet = true
	return nil
}

// RestoreOutput streams interpreter output again.
func (p *Process) RestoreOutput() error {
	p.quiet = false
	return nil
}

// Quiet reports whether output is currently suppressed.
func (p *Process) Quiet() bool {
	return p.quiet
}

// ResetDocument makes the next test start from a new, empty scene.
func (p *Process) ResetDocument() error {
	p.resetPending = true
	return nil
}

// RunTest implements Host
func (p *Process) RunTest(ctx context.Context, t suite.Test) (Outcome, error) {
	script, err := p.ensureScript()
	if err != nil {
		return Outcome{}, err
	}
	resultFile, err := p.files.Name("result_" + string(t.ID()) + ".json")
	if err != nil {
		return Outcome{}, err
	}

	args := append([]string{}, p.opts.Args...)
	args = append(args, script, "--id", string(t.ID()), "--result", resultFile)
	if p.quiet {
		args = append(args, "--quiet")
	}
	if p.opts.Standalone {
		args = append(args, "--standalone")
	}
	if p.resetPending {
		args = append(args, "--file-new")
		p.resetPending = false
	}

	env, err := p.environ(t)
	if err != nil {
		return Outcome{}, err
	}

	var captured bytes.Buffer
	stdout, stderr := p.opts.Stdout, p.opts.Stderr
	if p.quiet {
		stdout, stderr = &captured, &captured
	}

	started := time.Now()
	runErr := p.Exec(ctx, p.opts.Interpreter, args, env, stdout, stderr)
	elapsed := time.Since(started)

	data, readErr := os.ReadFile(resultFile)
	if readErr != nil {
		var exitErr *exec.ExitError
		if runErr != nil && !errors.As(runErr, &exitErr) {
			return Outcome{}, fmt.Errorf("%w %s: %v", ErrLaunch, p.opts.Interpreter, runErr)
		}
		// The interpreter ran but died before reporting
		detail := fmt.Sprintf("interpreter exited without a result: %v", runErr)
		if captured.Len() > 0 {
			detail += "\n" + captured.String()
		}
		log.Warn().Str("test", string(t.ID())).Err(runErr).Msg("test process crashed")
		return Outcome{Status: suite.StatusError, Detail: detail, Elapsed: elapsed, Output: captured.String()}, nil
	}

	return parseOutcome(data)
}

type outcomeFile struct {
	Status  string  `json:"status"`
	Detail  string  `json:"detail"`
	Elapsed float64 `json:"elapsed"`
	Output  string  `json:"output"`
}

func parseOutcome(data []byte) (Outcome, error) {
	var f outcomeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Outcome{Status: suite.StatusError, Detail: fmt.Sprintf("unreadable test result: %v", err)}, nil
	}
	status, err := suite.ParseStatus(f.Status)
	if err != nil {
		return Outcome{Status: suite.StatusError, Detail: err.Error()}, nil
	}
	return Outcome{
		Status:  status,
		Detail:  strings.TrimRight(f.Detail, "\n"),
		Elapsed: time.Duration(f.Elapsed * float64(time.Second)),
		Output:  f.Output,
	}, nil
}

// ensureScript writes the bootstrap into the scratch directory. It is
// rewritten when the directory was cleaned since the last test.
func (p *Process) ensureScript() (string, error) {
	if p.script != "" {
		if _, err := os.Stat(p.script); err == nil {
			return p.script, nil
		}
	}
	name, err := p.files.Name("mayatdd_bootstrap.py")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(name, bootstrapSource, 0644); err != nil {
		return "", fmt.Errorf("failed to write bootstrap: %w", err)
	}
	p.script = name
	return name, nil
}

// environ builds the child environment. The root the test module was
// collected from always comes first, so the interpreter imports the same file
// even when another search path holds a module with that name.
func (p *Process) environ(t suite.Test) ([]string, error) {
	var pythonPath []string
	if m, ok := p.session.Modules.Get(t.Module); ok && m.File != "" {
		pythonPath = append(pythonPath, m.Root())
	}
	if entries := p.session.Path.Env(); entries != "" {
		pythonPath = append(pythonPath, entries)
	}
	if existing := os.Getenv("PYTHONPATH"); existing != "" {
		pythonPath = append(pythonPath, existing)
	}
	env := append(os.Environ(),
		"PYTHONPATH="+strings.Join(pythonPath, string(os.PathListSeparator)),
		"MAYA_TDD_TMP_DIR="+p.files.Dir(),
	)

	if p.opts.CleanAppDir {
		if p.appDir == "" {
			dir := filepath.Join(os.TempDir(), "maya_app_dir_"+uuid.NewString())
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create MAYA_APP_DIR: %w", err)
			}
			p.appDir = dir
		}
		env = append(env, "MAYA_APP_DIR="+p.appDir, "MAYA_SCRIPT_PATH=")
	}
	return env, nil
}

// Close removes the clean MAYA_APP_DIR, if one was created.
func (p *Process) Close() error {
	if p.appDir == "" {
		return nil
	}
	dir := p.appDir
	p.appDir = ""
	return os.RemoveAll(dir)
}
