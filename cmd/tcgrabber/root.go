package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"tcgrabber/pkg/config"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/ui"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tcgrabber",
	Short: "Incremental photo downloader for the Transparent Classroom portal",
	Long: `tcgrabber keeps a local photo archive in sync with a child's
Transparent Classroom feed.

Features:
  - Incremental sync: each photo is downloaded exactly once
  - EXIF metadata embedded from post captions, authors, and dates
  - Secure credential storage using the system keychain
  - Scheduled runs with cron expressions or simple intervals
  - Optional Telegram delivery of new photos`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "completion" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .tcgrabber.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show all output")

	rootCmd.SetVersionTemplate(`tcgrabber {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig builds the effective configuration from file, environment
// and global flags, and initializes the logger from it.
func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose && cfg.Logging.Level != "debug" {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.Init(logger.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return nil, nil, err
	}

	return cfg, log, nil
}
