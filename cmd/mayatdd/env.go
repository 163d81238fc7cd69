package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/rickchristie/govner/mayatdd/internal/collect"
	"github.com/rickchristie/govner/mayatdd/internal/config"
	"github.com/rickchristie/govner/mayatdd/internal/host"
	"github.com/rickchristie/govner/mayatdd/internal/pyscan"
	"github.com/rickchristie/govner/mayatdd/internal/runner"
	"github.com/rickchristie/govner/mayatdd/internal/session"
	"github.com/rickchristie/govner/mayatdd/internal/tempfiles"
)

// environment is everything one command invocation needs. There is exactly
// one session per process.
type environment struct {
	cfg    *config.Config
	host   *host.Process
	runner *runner.Runner
}

func newEnvironment(stdout, stderr io.Writer) (*environment, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return wire(cfg, stdout, stderr, path)
}

// wire builds the runner from a loaded config.
func wire(cfg *config.Config, stdout, stderr io.Writer, source string) (*environment, error) {
	interpreter, err := cfg.Interpreter()
	if err != nil {
		return nil, err
	}

	loader := pyscan.NewLoader()
	s := session.New(loader)
	loader.Bind(s)
	collector := collect.New(s, collect.Options{
		Pattern:     cfg.Params.Pattern,
		Blacklist:   cfg.BlacklistDirNames,
		ModuleRoots: cfg.Paths.Modules,
	})
	files := tempfiles.New(cfg.Paths.Tmp)
	h := host.NewProcess(s, files, host.Options{
		Interpreter: interpreter,
		Args:        cfg.Host.Args,
		Standalone:  cfg.Host.Standalone,
		CleanAppDir: cfg.Host.CleanAppDir,
		Stdout:      stdout,
		Stderr:      stderr,
	})
	r := runner.New(s, collector, h, files, runner.Options{
		BufferOutput: cfg.Params.BufferOutput,
		KeepTmpFiles: cfg.Params.KeepTmpFiles,
		FileNew:      cfg.Params.FileNew,
	})

	log.Debug().
		Str("config", source).
		Str("host", cfg.Host.String()).
		Str("interpreter", interpreter).
		Str("tmp", cfg.Paths.Tmp).
		Msg("environment ready")
	return &environment{cfg: cfg, host: h, runner: r}, nil
}

// paths returns the command line paths, or the configured ones.
func (e *environment) paths(args []string) []string {
	if len(args) > 0 {
		return args
	}
	return e.cfg.TestPaths()
}

func (e *environment) Close() {
	if err := e.host.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to remove MAYA_APP_DIR")
	}
}

// watchRoots maps search paths to the directories holding them. Duplicates
// are dropped.
func watchRoots(paths []string) []string {
	seen := make(map[string]bool)
	var roots []string
	for _, p := range paths {
		dir := p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if !seen[dir] {
			seen[dir] = true
			roots = append(roots, dir)
		}
	}
	return roots
}

// blacklisted matches a directory name against blacklist_dir_names.
func blacklisted(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
