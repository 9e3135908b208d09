package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 10, cfg.Check.TTLMinutes)
	assert.Equal(t, 15, cfg.Check.TimeoutSeconds)
}

func TestValidate(t *testing.T) {
	cfg := Default()

	cfg.DataDir = ""
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Check.TTLMinutes = -1
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Check.TimeoutSeconds = 0
	require.Error(t, cfg.Validate())
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	// The generated file parses and carries the defaults.
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	assert.Equal(t, 10, cfg.Check.TTLMinutes)
	assert.False(t, cfg.Build.KeepWorkDir)

	// A second write refuses to clobber.
	require.Error(t, WriteDefaultConfig(path))
}

func TestSaveBuild_PreservesOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	original := `# my tuned config
data_dir: /srv/kforge

check:
  # probe rarely
  ttl_minutes: 60
  timeout_seconds: 5

build:
  use_makepkg: true
  keep_work_dir: false
`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	require.NoError(t, SaveBuild(path, BuildConfig{UseMakepkg: false, KeepWorkDir: true}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	// Comments outside the replaced section survive.
	assert.Contains(t, string(content), "# my tuned config")
	assert.Contains(t, string(content), "# probe rarely")

	var cfg struct {
		DataDir string `yaml:"data_dir"`
		Check   struct {
			TTLMinutes int `yaml:"ttl_minutes"`
		} `yaml:"check"`
		Build struct {
			UseMakepkg  bool `yaml:"use_makepkg"`
			KeepWorkDir bool `yaml:"keep_work_dir"`
		} `yaml:"build"`
	}
	require.NoError(t, yaml.Unmarshal(content, &cfg))
	assert.Equal(t, "/srv/kforge", cfg.DataDir)
	assert.Equal(t, 60, cfg.Check.TTLMinutes)
	assert.False(t, cfg.Build.UseMakepkg)
	assert.True(t, cfg.Build.KeepWorkDir)
}

func TestSaveBuild_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveBuild(path, BuildConfig{UseMakepkg: true}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg struct {
		Build struct {
			UseMakepkg bool `yaml:"use_makepkg"`
		} `yaml:"build"`
	}
	require.NoError(t, yaml.Unmarshal(content, &cfg))
	assert.True(t, cfg.Build.UseMakepkg)
}
