package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "cuecard.yaml"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "cuecard",
	Short: "Voice-following cue cards for stand-up sets",
	Long: `cuecard follows a comedian through a set. It listens for trigger
phrases, moves a cursor through the script, records the performance and
stores a summary of every run.

Settings are read from a YAML file (default cuecard.yaml in the working
directory). Without one, built-in defaults are used.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		slog.SetDefault(newLogger(cfg.Server.LogLevel))
		return nil
	},
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+defaultConfigPath+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	rootCmd.AddCommand(segmentCmd)
	rootCmd.AddCommand(rehearseCmd)
	rootCmd.AddCommand(performCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadedConfig caches the config for the running command.
var loadedConfig *config.Config

// loadConfig reads the config named by --config, or the default file when
// it exists, and applies --log-level.
func loadConfig() (*config.Config, error) {
	if loadedConfig != nil {
		return loadedConfig, nil
	}

	path := configPath()
	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	if logLevel != "" {
		lvl := config.LogLevel(logLevel)
		if !lvl.IsValid() {
			return nil, fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	loadedConfig = cfg
	return cfg, nil
}

// configPath returns the file to load, or "" for built-in defaults.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return defaultConfigPath
}

// levelVar lets a config reload change the level of the installed logger.
var levelVar = new(slog.LevelVar)

func newLogger(level config.LogLevel) *slog.Logger {
	return newLoggerTo(os.Stderr, level)
}

func newLoggerTo(w io.Writer, level config.LogLevel) *slog.Logger {
	levelVar.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
