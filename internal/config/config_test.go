package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pathguard/pkg/fileops"
)

// writeConfigFile writes raw YAML at mode and points PATHGUARD_CONFIG at it.
func writeConfigFile(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	require.NoError(t, os.Chmod(path, mode))
	t.Setenv(envConfigPath, path)
	return path
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permission bits are not enforced on Windows")
	}
}

func TestModeYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Mode
		wantErr bool
	}{
		{name: "leading zero", input: "m: 0077", want: 0o077},
		{name: "0o prefix", input: "m: 0o022", want: 0o022},
		{name: "quoted", input: `m: "0640"`, want: 0o640},
		{name: "bare digits are octal", input: "m: 700", want: 0o700},
		{name: "not octal", input: "m: 0789", wantErr: true},
		{name: "beyond permission bits", input: "m: 01777", wantErr: true},
		{name: "text", input: "m: rwx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				M Mode `yaml:"m"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.M)
		})
	}

	data, err := yaml.Marshal(struct {
		M Mode `yaml:"m"`
	}{M: 0o600})
	require.NoError(t, err)
	assert.Contains(t, string(data), "0600")
}

func TestConfigPath(t *testing.T) {
	t.Run("environment override", func(t *testing.T) {
		t.Setenv(envConfigPath, "/custom/pathguard.yaml")
		assert.Equal(t, "/custom/pathguard.yaml", ConfigPath())
	})

	t.Run("xdg config home", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("XDG_CONFIG_HOME is not consulted on Windows")
		}
		t.Cleanup(xdg.Reload)
		t.Setenv(envConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		xdg.Reload()

		assert.Equal(t, filepath.Join("/custom/config", "pathguard", "config.yaml"), ConfigPath())
	})
}

func TestDefaultConfig(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG_DATA_HOME is not consulted on Windows")
	}
	dataHome := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_DATA_HOME", dataHome)
	xdg.Reload()

	cfg := DefaultConfig()

	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, map[string]string{DefaultRootName: filepath.Join(dataHome, "pathguard")}, cfg.Roots)
	assert.Equal(t, Mode(0o077), cfg.Policy.ForbiddenBits)
	assert.Equal(t, Mode(0o700), cfg.Policy.DirMode)
	assert.Equal(t, Mode(0o600), cfg.Policy.FileMode)
	assert.Equal(t, DefaultMaxReadBytes, cfg.Limits.MaxReadBytes)
	assert.NoError(t, cfg.Validate())
}

func TestConfigSaveLoad(t *testing.T) {
	skipOnWindows(t)
	configDir := filepath.Join(t.TempDir(), "nested", "pathguard")
	configPath := filepath.Join(configDir, "config.yaml")

	original := Config{
		Version: CurrentVersion,
		Roots: map[string]string{
			"downloads": t.TempDir(),
			"sessions":  t.TempDir(),
		},
		Policy: Policy{ForbiddenBits: 0o027, DirMode: 0o750, FileMode: 0o640},
		Limits: Limits{MaxReadBytes: 4096},
	}

	require.NoError(t, original.SaveTo(configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "config file must be owner-only")

	dirInfo, err := os.Stat(configDir)
	require.NoError(t, err)
	assert.Zero(t, dirInfo.Mode().Perm()&0o077, "config directory must be owner-only")

	loaded, err := LoadFrom(configPath)
	require.NoError(t, err)
	assert.Equal(t, original, *loaded)

	// saving again replaces the file in place
	loaded.Limits.MaxReadBytes = 8192
	require.NoError(t, loaded.SaveTo(configPath))
	reloaded, err := LoadFrom(configPath)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), reloaded.Limits.MaxReadBytes)
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	path := writeConfigFile(t, "roots:\n  work: "+root+"\n", 0o600)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, root, cfg.Roots["work"])
	assert.Equal(t, fileops.DefaultPermissionPolicy, cfg.PermissionPolicy())
	assert.Equal(t, DefaultMaxReadBytes, cfg.Limits.MaxReadBytes)
}

func TestLoadFromRejectsUnsafeFiles(t *testing.T) {
	skipOnWindows(t)

	t.Run("group readable", func(t *testing.T) {
		path := writeConfigFile(t, "version: \"1\"\n", 0o644)
		_, err := LoadFrom(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, fileops.ErrPermission)
	})

	t.Run("world writable", func(t *testing.T) {
		path := writeConfigFile(t, "version: \"1\"\n", 0o602)
		_, err := LoadFrom(path)
		assert.ErrorIs(t, err, fileops.ErrPermission)
	})

	t.Run("symlinked config", func(t *testing.T) {
		target := writeConfigFile(t, "version: \"1\"\n", 0o600)
		link := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.Symlink(target, link))

		_, err := LoadFrom(link)
		assert.ErrorIs(t, err, fileops.ErrSymlinkRejected)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadFrom(filepath.Join(t.TempDir(), "none.yaml"))
		assert.ErrorIs(t, err, fileops.ErrNotFound)
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeConfigFile(t, "roots: [unclosed\n", 0o600)
		_, err := LoadFrom(path)
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}

func TestLoad(t *testing.T) {
	skipOnWindows(t)

	t.Run("missing file yields defaults", func(t *testing.T) {
		t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "absent.yaml"))
		_, exists := FindConfigFile()
		assert.False(t, exists)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Contains(t, cfg.Roots, DefaultRootName)
	})

	t.Run("existing file", func(t *testing.T) {
		root := t.TempDir()
		writeConfigFile(t, "roots:\n  media: "+root+"\n", 0o600)
		_, exists := FindConfigFile()
		assert.True(t, exists)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"media"}, cfg.RootNames())
	})
}

func TestEnvOverrides(t *testing.T) {
	skipOnWindows(t)
	path := writeConfigFile(t, "limits:\n  max_read_bytes: 100\n", 0o600)

	t.Setenv(envMaxReadBytes, "2048")
	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), cfg.Limits.MaxReadBytes)

	t.Setenv(envMaxReadBytes, "lots")
	_, err = LoadFrom(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv(envMaxReadBytes, "-1")
	_, err = LoadFrom(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Roots: map[string]string{"data": t.TempDir()}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty root name", mutate: func(c *Config) { c.Roots[""] = t.TempDir() }},
		{name: "root name with separator", mutate: func(c *Config) { c.Roots["a/b"] = t.TempDir() }},
		{name: "traversal root name", mutate: func(c *Config) { c.Roots[".."] = t.TempDir() }},
		{name: "relative root", mutate: func(c *Config) { c.Roots["rel"] = "some/dir" }},
		{name: "empty root dir", mutate: func(c *Config) { c.Roots["empty"] = "" }},
		{name: "file mode violates policy", mutate: func(c *Config) { c.Policy.FileMode = 0o644 }},
		{name: "dir mode violates policy", mutate: func(c *Config) { c.Policy.DirMode = 0o755 }},
		{name: "dir mode without owner exec", mutate: func(c *Config) { c.Policy.DirMode = 0o600 }},
		{name: "file mode without owner write", mutate: func(c *Config) { c.Policy.FileMode = 0o400 }},
		{name: "negative limit", mutate: func(c *Config) { c.Limits.MaxReadBytes = -1 }},
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateRejectsReservedRoots(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("reserved directory list is platform specific")
	}
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	for _, dir := range []string{"/etc", "/usr/bin", filepath.Join(home, ".ssh")} {
		cfg := Config{Roots: map[string]string{"bad": dir}}
		cfg.applyDefaults()
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, dir)
	}
}

func TestRoots(t *testing.T) {
	skipOnWindows(t)
	parent := t.TempDir()
	cfg := Config{Roots: map[string]string{
		"present": t.TempDir(),
		"created": filepath.Join(parent, "new", "root"),
	}}
	cfg.applyDefaults()

	_, err := cfg.Root("absent")
	assert.ErrorIs(t, err, ErrUnknownRoot)

	_, err = cfg.OpenRoot("created")
	assert.ErrorIs(t, err, fileops.ErrNotFound)

	require.NoError(t, cfg.EnsureRoot("created"))
	sp, err := cfg.OpenRoot("created")
	require.NoError(t, err)

	require.NoError(t, sp.Write("note.txt", []byte("hello")))
	info, err := os.Stat(filepath.Join(cfg.Roots["created"], "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = sp.Resolve("../escape")
	assert.ErrorIs(t, err, fileops.ErrTraversal)
}

func TestRootLimitAppliesToReads(t *testing.T) {
	skipOnWindows(t)
	cfg := Config{Roots: map[string]string{"data": t.TempDir()}, Limits: Limits{MaxReadBytes: 4}}
	cfg.applyDefaults()

	sp, err := cfg.OpenRoot("data")
	require.NoError(t, err)
	require.NoError(t, sp.Write("big.txt", []byte("0123456789")))

	_, err = sp.Read("big.txt")
	assert.ErrorIs(t, err, fileops.ErrFileTooLarge)
}

func TestOpenRootHonoursPolicy(t *testing.T) {
	skipOnWindows(t)
	cfg := Config{
		Roots:  map[string]string{"shared": t.TempDir()},
		Policy: Policy{ForbiddenBits: 0o027, DirMode: 0o750, FileMode: 0o640},
	}
	cfg.applyDefaults()
	require.NoError(t, cfg.Validate())

	sp, err := cfg.OpenRoot("shared")
	require.NoError(t, err)
	require.NoError(t, sp.EnsureDir("team"))

	info, err := os.Stat(filepath.Join(cfg.Roots["shared"], "team"))
	require.NoError(t, err)
	assert.Zero(t, info.Mode().Perm()&0o027, "dir mode must stay within the policy")

	cfg.Policy.ForbiddenBits = 0o077
	_, err = cfg.OpenRoot("shared")
	assert.ErrorIs(t, err, fileops.ErrPermission)
}

func TestSetRoot(t *testing.T) {
	skipOnWindows(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(envConfigPath, configPath)

	cfg := Config{}
	cfg.applyDefaults()

	dir := t.TempDir()
	require.NoError(t, cfg.SetRoot("exports", dir))

	loaded, err := LoadFrom(configPath)
	require.NoError(t, err)
	assert.Equal(t, dir, loaded.Roots["exports"])

	err = cfg.SetRoot("broken", "relative/path")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.NotContains(t, cfg.Roots, "broken", "rejected root must not stay in memory")
}
