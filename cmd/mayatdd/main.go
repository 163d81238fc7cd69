package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rickchristie/govner/mayatdd/internal/config"
	"github.com/rickchristie/govner/mayatdd/internal/report"
	"github.com/rickchristie/govner/mayatdd/internal/runner"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
	"github.com/rickchristie/govner/mayatdd/internal/tree"
	"github.com/rickchristie/govner/mayatdd/internal/tui"
	"github.com/rickchristie/govner/mayatdd/internal/watch"
	"github.com/rickchristie/govner/mayatdd/meta"
)

// errTestsFailed makes the process exit non-zero without printing usage.
var errTestsFailed = errors.New("tests failed")

var (
	configPath string
	verbose    bool
)

// Flags shared by run, ui, watch and list
var (
	specificTest string
	showTests    bool
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "mayatdd",
	Short: "Maya unit test runner",
	Long: `mayatdd - Test driven development for Maya

Discover Python unittest tests, run each one in a fresh mayapy process and
show the results as a tree. Modules imported by a cycle are evicted before the
next one, so edits are picked up without restarting.

Quick Start:
  mayatdd config init          Write .mayatdd.yaml with defaults
  mayatdd run                  Run every test in paths.tests
  mayatdd ui                   Open the interactive tree
  mayatdd watch                Rerun whenever a .py file changes

Config is read from --config, then $TDD_CONFIG_FILE, then ./.mayatdd.yaml.`,
	Version:       meta.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [paths...]",
	Short: "Run tests once and print a report",
	Long: `Discovers tests under the given paths (default: paths.tests from the
config), runs them and prints a summary table. Exits non-zero when any test
fails or errors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupConsoleLogging()
		env, err := newEnvironment(os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signalContext()
		defer stop()

		m, summary, err := env.runner.Cycle(ctx, env.paths(args), suite.Identity(specificTest), nil)
		if m != nil {
			printReport(cmd.OutOrStdout(), m, summary)
		}
		if err != nil {
			return err
		}
		if !summary.OK() {
			return errTestsFailed
		}
		return nil
	},
}

var uiCmd = &cobra.Command{
	Use:   "ui [paths...]",
	Short: "Open the interactive test tree",
	Long: `Runs a cycle and shows the results as a navigable tree. Failed tests or
any subtree can be rerun without restarting. Logs go to .mayatdd/mayatdd.log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logFile, err := setupFileLogging(".mayatdd")
		if err != nil {
			return err
		}
		defer logFile.Close()

		// Interpreter output would corrupt the alternate screen
		env, err := newEnvironment(logFile, logFile)
		if err != nil {
			return err
		}
		defer env.Close()

		app := tui.NewApp(env.runner, tui.Options{
			Paths:    env.paths(args),
			Specific: suite.Identity(specificTest),
		})
		final, err := tea.NewProgram(app, tea.WithAltScreen()).Run()
		if err != nil {
			return fmt.Errorf("ui failed: %w", err)
		}
		if a, ok := final.(tui.App); ok && a.Summary().Total > 0 && !a.Summary().OK() {
			return errTestsFailed
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Rerun tests whenever Python files change",
	Long: `Runs a cycle, then watches the search paths and starts a new cycle
after every burst of .py changes. Stop with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupConsoleLogging()
		env, err := newEnvironment(os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signalContext()
		defer stop()

		paths := env.paths(args)
		out := cmd.OutOrStdout()
		cycle := func() {
			m, summary, err := env.runner.Cycle(ctx, paths, suite.Identity(specificTest), nil)
			if m != nil {
				printReport(out, m, summary)
			}
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("cycle failed")
			}
		}

		w, err := watch.New(watchRoots(paths), watch.Options{
			SkipDir: func(path, name string) bool {
				return blacklisted(env.cfg.BlacklistDirNames, name)
			},
		})
		if err != nil {
			return err
		}
		defer w.Close()

		cycle()
		log.Info().Strs("dirs", w.Dirs()).Msg("watching for changes")
		err = w.Run(ctx, func(changed []string) {
			log.Info().Strs("files", changed).Msg("change detected")
			cycle()
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var listCmd = &cobra.Command{
	Use:   "list [paths...]",
	Short: "List discovered tests without running them",
	RunE: func(cmd *cobra.Command, args []string) error {
		setupConsoleLogging()
		env, err := newEnvironment(os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.runner.Discover(context.Background(), env.paths(args), suite.Identity(specificTest))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.List(s))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultFileName
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		fmt.Fprintf(cmd.OutOrStdout(), "Next steps:\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  1. Add your test directories to paths.tests\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  2. mayatdd run\n")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
		return config.Write(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the config file (default: $"+config.EnvConfigFile+" or ./"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log debug messages")

	for _, c := range []*cobra.Command{runCmd, uiCmd, watchCmd, listCmd} {
		c.Flags().StringVarP(&specificTest, "test", "t", "",
			"Only this test, class or module (e.g. test_rig.TestJoints.test_orient)")
	}
	for _, c := range []*cobra.Command{runCmd, watchCmd} {
		c.Flags().BoolVar(&showTests, "tests", false, "List every test in the report, not only containers")
		c.Flags().BoolVar(&noColor, "no-color", false, "Disable colors in the report")
	}

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w\n\nRun 'mayatdd config init' first", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, path, nil
}

func logLevel() zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func setupConsoleLogging() {
	zerolog.SetGlobalLevel(logLevel())
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func setupFileLogging(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	logPath := filepath.Join(dir, "mayatdd.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	zerolog.SetGlobalLevel(logLevel())
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	return logFile, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printReport(w io.Writer, m *tree.Model, summary runner.Summary) {
	fmt.Fprintln(w, report.Table(m, summary, report.Options{
		ShowTests: showTests,
		Color:     !noColor,
	}))
	fmt.Fprint(w, report.Failures(summary))
}
