package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"pathguard/internal/logging"
	"pathguard/pkg/fileops"
)

const APP_NAME = "pathguard" // application name used for config and data directories

const (
	// CurrentVersion is written to new config files.
	CurrentVersion = "1"

	// DefaultRootName names the root DefaultConfig provides.
	DefaultRootName = "data"

	// DefaultMaxReadBytes caps reads through configured roots.
	DefaultMaxReadBytes int64 = 10 << 20

	envConfigPath   = "PATHGUARD_CONFIG"
	envMaxReadBytes = "PATHGUARD_MAX_READ_BYTES"
)

var (
	ErrUnknownRoot   = errors.New("unknown root")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Mode is a permission value written in YAML as an octal string ("0600").
type Mode os.FileMode

func (m Mode) FileMode() os.FileMode {
	return os.FileMode(m)
}

func (m Mode) String() string {
	return fmt.Sprintf("%04o", uint32(m))
}

func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimPrefix(strings.TrimPrefix(value.Value, "0o"), "0O")
	v, err := strconv.ParseUint(raw, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid octal mode %q: %w", value.Value, err)
	}
	if v&^0o777 != 0 {
		return fmt.Errorf("mode %q has bits outside 0777", value.Value)
	}
	*m = Mode(v)
	return nil
}

// Policy holds the permission settings applied to everything pathguard
// creates or checks.
type Policy struct {
	ForbiddenBits Mode `yaml:"forbidden_bits"`
	DirMode       Mode `yaml:"dir_mode"`
	FileMode      Mode `yaml:"file_mode"`
}

type Limits struct {
	// MaxReadBytes caps a single read. Zero selects DefaultMaxReadBytes.
	MaxReadBytes int64 `yaml:"max_read_bytes"`
}

// Config holds user configuration for pathguard.
type Config struct {
	Version string `yaml:"version"`
	// Roots maps a short name to a trusted base directory.
	Roots  map[string]string `yaml:"roots"`
	Policy Policy            `yaml:"policy"`
	Limits Limits            `yaml:"limits"`
}

// ConfigPath returns the config file location. PATHGUARD_CONFIG overrides
// the XDG default.
func ConfigPath() string {
	if override := os.Getenv(envConfigPath); override != "" {
		logging.Debug("Using config path from environment", "path", override)
		return fileops.ExpandPath(override)
	}

	configPath := filepath.Join(xdg.ConfigHome, APP_NAME, "config.yaml")
	logging.Debug("Determined config path", "path", configPath)
	return configPath
}

// FindConfigFile returns the config path and whether a file exists there.
func FindConfigFile() (string, bool) {
	path := ConfigPath()
	if _, err := os.Lstat(path); err == nil {
		logging.Debug("Config found", "path", path)
		return path, true
	}
	return path, false
}

// Load loads the config from the standard location. A missing file yields
// DefaultConfig.
func Load() (*Config, error) {
	path, exists := FindConfigFile()
	if !exists {
		logging.Info("No configuration found, using defaults", "path", path)
		cfg := DefaultConfig()
		if err := cfg.applyEnvOverrides(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom loads config from a specific path. The file must not be readable
// or writable by group or others and must not be a symlink.
func LoadFrom(path string) (*Config, error) {
	logging.Debug("Reading config file", "path", path)

	if err := fileops.ValidateConfigFilePermissions(path); err != nil {
		logging.LogRejection("load config", path, err)
		return nil, fmt.Errorf("config file rejected: %w", err)
	}

	data, err := fileops.SafeReadFile(path, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultConfig returns a Config with one root under the XDG data directory
// and the package's owner-only policy.
func DefaultConfig() Config {
	dataDir := filepath.Join(xdg.DataHome, APP_NAME)
	logging.Debug("Using default data directory", "path", dataDir)

	cfg := Config{
		Version: CurrentVersion,
		Roots:   map[string]string{DefaultRootName: dataDir},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Roots == nil {
		c.Roots = map[string]string{}
	}
	if c.Policy.ForbiddenBits == 0 {
		c.Policy.ForbiddenBits = Mode(fileops.DefaultPermissionPolicy.ForbiddenBits)
	}
	if c.Policy.DirMode == 0 {
		c.Policy.DirMode = Mode(fileops.DefaultDirMode)
	}
	if c.Policy.FileMode == 0 {
		c.Policy.FileMode = Mode(fileops.DefaultFileMode)
	}
	if c.Limits.MaxReadBytes == 0 {
		c.Limits.MaxReadBytes = DefaultMaxReadBytes
	}
}

func (c *Config) applyEnvOverrides() error {
	if raw := os.Getenv(envMaxReadBytes); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidConfig, envMaxReadBytes, raw)
		}
		logging.Debug("Max read bytes overridden from environment", "value", v)
		c.Limits.MaxReadBytes = v
	}
	return nil
}

// Validate checks root names and locations and that the configured modes
// satisfy the configured policy.
func (c *Config) Validate() error {
	for name, dir := range c.Roots {
		if name == "" || fileops.IsPathTraversal(name) || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("%w: invalid root name %q", ErrInvalidConfig, name)
		}
		if dir == "" {
			return fmt.Errorf("%w: root %q has no directory", ErrInvalidConfig, name)
		}
		expanded := fileops.ExpandPath(dir)
		if !filepath.IsAbs(expanded) {
			return fmt.Errorf("%w: root %q must be an absolute path, got %q", ErrInvalidConfig, name, dir)
		}
		if fileops.IsReservedDirectory(expanded) {
			return fmt.Errorf("%w: root %q points at reserved directory %s", ErrInvalidConfig, name, expanded)
		}
	}

	policy := c.PermissionPolicy()
	if !policy.Allows(c.Policy.FileMode.FileMode()) {
		return fmt.Errorf("%w: file_mode %s violates forbidden_bits %s", ErrInvalidConfig, c.Policy.FileMode, c.Policy.ForbiddenBits)
	}
	if !policy.Allows(c.Policy.DirMode.FileMode()) {
		return fmt.Errorf("%w: dir_mode %s violates forbidden_bits %s", ErrInvalidConfig, c.Policy.DirMode, c.Policy.ForbiddenBits)
	}
	if c.Policy.DirMode&0o700 != 0o700 {
		return fmt.Errorf("%w: dir_mode %s must grant the owner rwx", ErrInvalidConfig, c.Policy.DirMode)
	}
	if c.Policy.FileMode&0o600 != 0o600 {
		return fmt.Errorf("%w: file_mode %s must grant the owner rw", ErrInvalidConfig, c.Policy.FileMode)
	}
	if c.Limits.MaxReadBytes < 0 {
		return fmt.Errorf("%w: max_read_bytes must not be negative", ErrInvalidConfig)
	}
	return nil
}

// PermissionPolicy returns the configured policy.
func (c *Config) PermissionPolicy() fileops.PermissionPolicy {
	return fileops.PermissionPolicy{ForbiddenBits: c.Policy.ForbiddenBits.FileMode()}
}

// RootNames returns the configured root names in sorted order.
func (c *Config) RootNames() []string {
	names := make([]string, 0, len(c.Roots))
	for name := range c.Roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Root returns the expanded directory configured under name.
func (c *Config) Root(name string) (string, error) {
	dir, ok := c.Roots[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoot, name)
	}
	return fileops.ExpandPath(dir), nil
}

// EnsureRoot creates the named root directory if it is missing.
func (c *Config) EnsureRoot(name string) error {
	dir, err := c.Root(name)
	if err != nil {
		return err
	}
	if err := fileops.SafeEnsureDirectory(dir, ""); err != nil {
		return fmt.Errorf("failed to create root %q: %w", name, err)
	}
	return nil
}

// OpenRoot binds a SafePath to the named root using the configured modes and
// read limit. The root directory must exist.
func (c *Config) OpenRoot(name string) (*fileops.SafePath, error) {
	dir, err := c.Root(name)
	if err != nil {
		return nil, err
	}
	return fileops.NewSafePath(dir, &fileops.SafePathOptions{
		DirMode:      c.Policy.DirMode.FileMode(),
		FileMode:     c.Policy.FileMode.FileMode(),
		MaxReadBytes: c.Limits.MaxReadBytes,
		Policy:       c.PermissionPolicy(),
	})
}

// Save writes the config to the standard location.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the config to a specific path, creating its directory
// owner-only and replacing the file atomically with mode 0600.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := fileops.SafeEnsureDirectory(filepath.Dir(path), ""); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := fileops.SafeWriteFile(path, data, ""); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logging.Info("Configuration saved", "path", path)
	return nil
}

// PutRoot adds or replaces a root in memory. An invalid root leaves the
// config unchanged.
func (c *Config) PutRoot(name, dir string) error {
	if c.Roots == nil {
		c.Roots = map[string]string{}
	}
	previous, existed := c.Roots[name]
	c.Roots[name] = dir
	if err := c.Validate(); err != nil {
		if existed {
			c.Roots[name] = previous
		} else {
			delete(c.Roots, name)
		}
		return err
	}
	return nil
}

// SetRoot adds or replaces a root and saves the config.
func (c *Config) SetRoot(name, dir string) error {
	if err := c.PutRoot(name, dir); err != nil {
		return err
	}
	return c.Save()
}
