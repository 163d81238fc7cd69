package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigFile names the config file when --config is not given.
	EnvConfigFile = "TDD_CONFIG_FILE"
	// DefaultFileName is looked up in the working directory as a last resort.
	DefaultFileName = ".mayatdd.yaml"
	// EnvMayaLocation overrides the Maya install directory.
	EnvMayaLocation = "MAYA_LOCATION"
)

// ErrNoConfig is returned when no config file can be found.
var ErrNoConfig = errors.New("could not find any configuration file, check the " + EnvConfigFile + " environment variable")

// Config holds all mayatdd configuration
type Config struct {
	Paths  Paths  `yaml:"paths"`
	Params Params `yaml:"params"`
	Host   Host   `yaml:"host"`

	// Directory names or doublestar patterns skipped during discovery
	BlacklistDirNames []string `yaml:"blacklist_dir_names"`

	// Search root used when paths.tests is empty
	DefaultTests string `yaml:"default_tests,omitempty"`
}

// Paths configures where tests are found and where scratch files go.
type Paths struct {
	Tests   []string `yaml:"tests"`             // Ordered search roots and module files
	Tmp     string   `yaml:"tmp"`               // Scratch directory for test temp files
	Modules []string `yaml:"modules,omitempty"` // Module roots; empty falls back to MAYA_MODULE_PATH
}

// Params configures run behaviour.
type Params struct {
	BufferOutput bool   `yaml:"buffer_output"`  // Silence logging below fatal during a run
	KeepTmpFiles bool   `yaml:"keep_tmp_files"` // Keep paths.tmp after a run
	FileNew      bool   `yaml:"file_new"`       // Reset the host document after every test
	Pattern      string `yaml:"pattern"`        // Test module file pattern
}

// Host configures the interpreter tests run in.
type Host struct {
	Interpreter string   `yaml:"interpreter,omitempty"` // Empty derives mayapy from maya_version
	Args        []string `yaml:"args,omitempty"`        // Extra interpreter arguments
	MayaVersion int      `yaml:"maya_version"`
	Standalone  bool     `yaml:"standalone"`    // Initialize maya.standalone before each test
	CleanAppDir bool     `yaml:"clean_app_dir"` // Point MAYA_APP_DIR at an empty scratch dir
}

var envPattern = regexp.MustCompile(`\$ENV\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces $ENV{NAME} placeholders with environment values. Unset
// variables expand to an empty string.
func ExpandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// ResolvePath picks the config file: the explicit path, then TDD_CONFIG_FILE,
// then DefaultFileName in the working directory.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvConfigFile); env != "" {
		return env, nil
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName, nil
	}
	return "", ErrNoConfig
}

// LoadConfig loads configuration from a YAML file. Keys missing from the file
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Write encodes cfg as YAML.
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return enc.Close()
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Paths: Paths{
			Tests: []string{},
			Tmp:   filepath.Join(os.TempDir(), "mayatdd"),
		},
		Params: Params{
			BufferOutput: true,
			KeepTmpFiles: false,
			FileNew:      true,
			Pattern:      "test*.py",
		},
		Host: Host{
			MayaVersion: 2022,
			Standalone:  true,
			CleanAppDir: true,
		},
		BlacklistDirNames: []string{"__pycache__", ".git", "venv"},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Paths.Tmp == "" {
		return fmt.Errorf("paths.tmp is required")
	}
	if c.Params.Pattern == "" {
		return fmt.Errorf("params.pattern is required")
	}
	if !doublestar.ValidatePattern(c.Params.Pattern) {
		return fmt.Errorf("invalid params.pattern %q", c.Params.Pattern)
	}
	for _, b := range c.BlacklistDirNames {
		if !doublestar.ValidatePattern(b) {
			return fmt.Errorf("invalid blacklist_dir_names entry %q", b)
		}
	}
	if c.Host.Interpreter == "" && c.Host.MayaVersion <= 0 {
		return fmt.Errorf("host.interpreter or host.maya_version is required")
	}
	return nil
}

// TestPaths returns paths.tests, or default_tests when that list is empty.
func (c *Config) TestPaths() []string {
	if len(c.Paths.Tests) > 0 {
		return c.Paths.Tests
	}
	if c.DefaultTests != "" {
		return []string{c.DefaultTests}
	}
	return nil
}

// mayaLocations are the default install directories per OS.
var mayaLocations = map[string]string{
	"windows": `C:/Program Files/Autodesk/Maya%d`,
	"darwin":  `/Applications/Autodesk/maya%d/Maya.app/Contents`,
	"linux":   `/usr/autodesk/maya%d`,
}

// Interpreter returns host.interpreter, or the mayapy executable of the
// configured Maya version. MAYA_LOCATION overrides the install directory.
func (c *Config) Interpreter() (string, error) {
	if c.Host.Interpreter != "" {
		return c.Host.Interpreter, nil
	}
	return MayaPy(c.Host.MayaVersion, runtime.GOOS)
}

// MayaPy returns the mayapy path for a Maya version on the given OS.
func MayaPy(version int, goos string) (string, error) {
	location := os.Getenv(EnvMayaLocation)
	if location == "" {
		pattern, ok := mayaLocations[goos]
		if !ok {
			return "", fmt.Errorf("cannot determine Maya's location on %s", goos)
		}
		location = fmt.Sprintf(pattern, version)
	}
	exe := filepath.Join(location, "bin", "mayapy")
	if goos == "windows" {
		exe += ".exe"
	}
	return exe, nil
}

// String renders the version for logs.
func (h Host) String() string {
	if h.Interpreter != "" {
		return h.Interpreter
	}
	return "maya" + strconv.Itoa(h.MayaVersion)
}
