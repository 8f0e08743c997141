package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tcgrabber/pkg/config"
	"tcgrabber/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage tcgrabber configuration files.

Configuration is loaded from (highest priority first):
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as '.tcgrabber.yaml' in the current directory
unless a different path is given with the --config flag.`,
	Run: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration merged from all sources.

The portal password and bot token are masked.`,
	Run: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".tcgrabber.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	cfg.Portal.Email = "parent@example.com"
	cfg.Portal.Password = "YOUR_PASSWORD"
	cfg.Portal.SchoolID = 1234
	cfg.Portal.ChildID = 5678

	if err := cfg.Save(configPath); err != nil {
		ui.PrintError("Failed to write configuration", err.Error())
		os.Exit(1)
	}

	abs, _ := filepath.Abs(configPath)
	ui.PrintSuccess("Configuration file created: " + abs)
	fmt.Println("\nEdit the file to set your portal credentials, or store them")
	fmt.Println("securely with 'tcgrabber auth login' and leave them out of the file.")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, _, err := loadConfig()
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		ui.PrintError("Failed to render configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println(string(out))
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	cfg, _, err := loadConfig()
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		ui.PrintError("Configuration is invalid", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration is valid")
}
