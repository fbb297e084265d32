// streamguard generates synthetic journal entries through a rate-limited,
// backpressured pipeline that degrades its output as disk, memory and CPU
// run short.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/constants"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "streamguard",
		Short: "Resource-governed synthetic data pipeline",
		Long: `streamguard generates balanced journal entries with configurable anomaly
injection and writes them to segment or Parquet files.

Producers are paced by a token bucket, decoupled from the writer by a bounded
channel, and the output is degraded step by step as free disk, memory or CPU
headroom shrinks.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "streamguard.yaml", "config file path")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format (auto, text, json); overrides config")

	root.AddCommand(
		newRunCmd(g),
		newPlanCmd(g),
		newProbeCmd(),
		newInspectCmd(),
	)
	return root
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, and applies the logging flag overrides.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = config.DefaultConfig()
	}

	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	return cfg, nil
}

// setupLogging initializes the global logger. The auto format writes text
// to a terminal and JSON otherwise.
func setupLogging(cfg config.LoggingConfig, stderr *os.File) io.Closer {
	json := cfg.Format == constants.LogFormatJSON
	if cfg.Format == "" || cfg.Format == constants.LogFormatAuto {
		json = !term.IsTerminal(int(stderr.Fd()))
	}

	return logging.InitWithOptions(logging.Options{
		Level:      logging.ParseLevel(cfg.Level),
		JSON:       json,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
}
