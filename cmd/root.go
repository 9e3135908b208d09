// Package cmd wires the command line surface: the TUI plus headless
// subcommands over the same core.
package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kforge/internal/config"
	"kforge/internal/fetch"
	"kforge/internal/history"
	"kforge/internal/kernel"
	"kforge/internal/log"
	"kforge/internal/registry"
	"kforge/internal/ui"
	"kforge/internal/watcher"
	"kforge/internal/workdir"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version   = "dev"
	cfgFile   string
	debugMode bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:     "kforge",
	Short:   "A terminal ui for building linux-tkg kernels",
	Long:    `A terminal user interface over the linux-tkg build scripts: browse upstream kernel releases, manage userpatches with update tracking, edit customization.cfg, and run builds.`,
	Version: version,
	RunE:    runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/kforge/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"enable debug logging (also via KFORGE_DEBUG)")
	rootCmd.Flags().Bool("keep-workdir", false,
		"preserve the temporary working directory on exit")

	_ = viper.BindPFlag("build.keep_work_dir", rootCmd.Flags().Lookup("keep-workdir"))
}

func initConfig() {
	defaults := config.Default()
	viper.SetDefault("data_dir", defaults.DataDir)
	viper.SetDefault("build.use_makepkg", defaults.Build.UseMakepkg)
	viper.SetDefault("build.keep_work_dir", defaults.Build.KeepWorkDir)
	viper.SetDefault("check.ttl_minutes", defaults.Check.TTLMinutes)
	viper.SetDefault("check.timeout_seconds", defaults.Check.TimeoutSeconds)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(config.ConfigDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create a commented default
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := filepath.Join(config.ConfigDir(), "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)

	if os.Getenv("KFORGE_DEBUG") != "" {
		debugMode = true
	}
}

// newServices assembles the shared backends from the loaded config.
func newServices(work *workdir.Dir) (*ui.Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	store, err := registry.Load(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("loading patch registry: %w", err)
	}
	hist, err := history.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening build history: %w", err)
	}

	probeClient := &http.Client{
		Timeout: time.Duration(cfg.Check.TimeoutSeconds) * time.Second,
	}

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		configPath = filepath.Join(config.ConfigDir(), "config.yaml")
	}

	return &ui.Services{
		Cfg:        cfg,
		ConfigPath: configPath,
		Fetcher:    kernel.NewFetcher(nil),
		Downloader: fetch.NewDownloader(nil),
		Checker:    registry.NewChecker(probeClient, time.Duration(cfg.Check.TTLMinutes)*time.Minute),
		Registry:   store,
		History:    hist,
		Work:       work,
	}, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	var logListener *log.LogListener
	if debugMode {
		cleanup, err := log.InitWithTeaLog(filepath.Join(os.TempDir(), "kforge-debug.log"), "kforge")
		if err != nil {
			return fmt.Errorf("initializing debug log: %w", err)
		}
		defer cleanup()
		logListener = log.NewListener(cmd.Context())
	}

	work, err := workdir.New()
	if err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}
	work.SetKeep(cfg.Build.KeepWorkDir)
	defer func() { _ = work.Cleanup() }()

	// git clone accepts an existing empty directory, and the watcher
	// needs it to exist up front.
	if err := os.MkdirAll(work.LinuxTkg(), 0o755); err != nil {
		return fmt.Errorf("creating linux-tkg dir: %w", err)
	}

	svc, err := newServices(work)
	if err != nil {
		return err
	}
	defer func() { _ = svc.History.Close() }()

	// Watch customization.cfg so external edits refresh the config tab.
	// The app works fine without it.
	var cfgChanges <-chan struct{}
	if w, watchErr := watcher.New(watcher.DefaultConfig(work.CustomizationCfg())); watchErr == nil {
		if ch, startErr := w.Start(); startErr == nil {
			cfgChanges = ch
			defer func() { _ = w.Stop() }()
		} else {
			_ = w.Stop()
		}
	}

	model := ui.New(svc, cfgChanges, logListener, debugMode)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
