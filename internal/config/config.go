// Package config provides configuration types, defaults, and persistence
// for kforge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all configuration options for kforge.
type Config struct {
	// DataDir is where the patch registry and build history live.
	// Default: ~/.local/share/kforge
	DataDir string `mapstructure:"data_dir"`

	Build BuildConfig `mapstructure:"build"`
	Check CheckConfig `mapstructure:"check"`
}

// BuildConfig holds build runner options.
type BuildConfig struct {
	// UseMakepkg selects makepkg over install.sh. Arch-family distros
	// want true.
	UseMakepkg bool `mapstructure:"use_makepkg"`

	// KeepWorkDir preserves the temporary working directory on exit.
	KeepWorkDir bool `mapstructure:"keep_work_dir"`
}

// CheckConfig holds staleness probe options.
type CheckConfig struct {
	// TTLMinutes is how long a probe result is reused before the source
	// is contacted again.
	TTLMinutes int `mapstructure:"ttl_minutes"`

	// TimeoutSeconds bounds a single HEAD probe.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Build: BuildConfig{
			UseMakepkg:  useMakepkgDefault(),
			KeepWorkDir: false,
		},
		Check: CheckConfig{
			TTLMinutes:     10,
			TimeoutSeconds: 15,
		},
	}
}

// Validate checks value ranges the rest of the app assumes.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Check.TTLMinutes < 0 {
		return fmt.Errorf("check.ttl_minutes must not be negative")
	}
	if c.Check.TimeoutSeconds <= 0 {
		return fmt.Errorf("check.timeout_seconds must be positive")
	}
	return nil
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kforge"
	}
	return filepath.Join(home, ".config", "kforge")
}

// DefaultDataDir returns the default location for persistent state.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kforge"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "kforge")
	}
	return filepath.Join(home, ".local", "share", "kforge")
}

// useMakepkgDefault detects an Arch-family system by its pacman config.
func useMakepkgDefault() bool {
	_, err := os.Stat("/etc/pacman.conf")
	return err == nil
}

const defaultConfigTemplate = `# kforge configuration
#
# data_dir holds the patch registry and build history.
#data_dir: %s

build:
  # Use makepkg instead of linux-tkg's install.sh.
  use_makepkg: %t
  # Keep the temporary working directory when kforge exits.
  keep_work_dir: false

check:
  # Minutes a patch-source probe result is reused.
  ttl_minutes: 10
  # Seconds before a single probe gives up.
  timeout_seconds: 15
`

// WriteDefaultConfig creates a commented starter config at path. Existing
// files are left alone.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	def := Default()
	content := fmt.Sprintf(defaultConfigTemplate, def.DataDir, def.Build.UseMakepkg)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
