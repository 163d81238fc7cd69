package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickchristie/govner/mayatdd/internal/config"
)

func TestCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "ui", "watch", "list", "config"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, runCmd.Flags().Lookup("test"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestWatchRoots(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_rig.py")
	require.NoError(t, os.WriteFile(file, []byte(""), 0644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	assert.Equal(t, []string{dir, sub}, watchRoots([]string{file, dir, sub}))
}

func TestBlacklisted(t *testing.T) {
	patterns := []string{"venv", "build_*"}

	tests := []struct {
		name string
		want bool
	}{
		{"venv", true},
		{"build_linux", true},
		{"rig", false},
		{"venv2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, blacklisted(patterns, tt.name))
		})
	}
}

func TestWire(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.Tests = []string{"/tests"}
	cfg.Paths.Tmp = t.TempDir()
	cfg.Host.Interpreter = "/opt/maya/bin/mayapy"

	env, err := wire(cfg, io.Discard, io.Discard, "test.yaml")
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, []string{"/tests"}, env.paths(nil))
	assert.Equal(t, []string{"/other"}, env.paths([]string{"/other"}))
	assert.Equal(t, 0, env.runner.Session().Path.Len())
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultFileName)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		configPath = ""
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Wrote "+path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	// A second init refuses to overwrite
	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	assert.Error(t, rootCmd.Execute())
}
