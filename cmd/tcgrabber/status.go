package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tcgrabber/pkg/cache"
	"tcgrabber/pkg/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local archive state",
	Long:  `Show how many photos the local ledger has recorded and where they live.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	ledger, err := cache.Open(cfg.Cache.Directory)
	if err != nil {
		ui.PrintError("Failed to open ledger", err.Error())
		os.Exit(1)
	}
	defer ledger.Close()

	count, err := ledger.Count()
	if err != nil {
		ui.PrintError("Failed to query ledger", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Photos recorded", fmt.Sprintf("%d", count))
	ui.PrintInfo("Photo directory", cfg.Output.Directory)
	ui.PrintInfo("Ledger directory", cfg.Cache.Directory)
	return nil
}
