package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tcgrabber/pkg/auth"
	"tcgrabber/pkg/config"
	"tcgrabber/pkg/grabber"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/settings"
	"tcgrabber/pkg/ui"
)

var (
	// Sync command flags
	dryRun      bool
	outputDir   string
	cacheDir    string
	accountName string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass against the classroom feed",
	Long: `Crawl the classroom posts feed, compare each photo against the
local ledger, and download only the photos not seen before.

Credentials come from (in order):
  - Stored accounts (use 'tcgrabber auth login' to store)
  - Environment variables (TC_EMAIL and TC_PASSWORD)
  - Configuration file`,
	Example: `  # One-shot sync using default settings
  tcgrabber sync

  # Preview what would be downloaded without writing anything
  tcgrabber sync --dry-run

  # Sync to a specific directory with a stored account
  tcgrabber sync --output ./photos --account parent@example.com`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be downloaded without downloading")
	syncCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for photos")
	syncCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory for the dedup ledger and page cache")
	syncCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored account (email)")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if outputDir != "" {
		cfg.Output.Directory = outputDir
	}
	if cacheDir != "" {
		cfg.Cache.Directory = cacheDir
	}

	if err := resolveCredentials(cfg, log); err != nil {
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		ui.PrintError("Invalid configuration", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := settings.NewStore(cfg.Cache.Directory, log)
	if err != nil {
		ui.PrintError("Failed to open settings store", err.Error())
		os.Exit(1)
	}

	g, err := grabber.New(cfg, store, log, grabber.Options{})
	if err != nil {
		ui.PrintError("Failed to initialize", err.Error())
		os.Exit(1)
	}
	defer g.Close()

	if dryRun {
		ui.PrintHighlight("[DRY RUN]")
	}

	summary, err := g.Run(ctx, grabber.RunOptions{DryRun: dryRun})
	printSummary(summary)
	if err != nil {
		log.WithError(err).Error("sync failed")
		ui.PrintError("Sync failed", err.Error())
		os.Exit(1)
	}

	if !dryRun && cfg.Telegram.Enabled() {
		notifyRun(cfg, store, summary, log)
	}

	return nil
}

// resolveCredentials fills in portal credentials from the credential
// manager when the config has none.
func resolveCredentials(cfg *config.Config, log logger.Logger) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	var account *auth.Account
	switch {
	case accountName != "":
		account, err = manager.Retrieve(accountName)
		if err != nil {
			ui.PrintError("Account not found", accountName)
			ui.PrintInfo("Available accounts", "Use 'tcgrabber auth list' to see stored accounts")
			return err
		}
	case cfg.Portal.Email != "" && cfg.Portal.Password != "":
		// Config or environment already carries credentials.
		return nil
	default:
		account, err = manager.RetrieveDefault()
		if err != nil {
			ui.PrintError("No portal credentials found", "")
			fmt.Println("\nTo store credentials securely, run:")
			fmt.Println("  tcgrabber auth login")
			fmt.Println("\nOr set environment variables:")
			fmt.Println("  export TC_EMAIL=parent@example.com")
			fmt.Println("  export TC_PASSWORD=...")
			return err
		}
	}

	cfg.Portal.Email = account.Email
	cfg.Portal.Password = account.Password
	if cfg.Portal.SchoolID == 0 {
		cfg.Portal.SchoolID = account.SchoolID
	}
	if cfg.Portal.ChildID == 0 {
		cfg.Portal.ChildID = account.ChildID
	}

	log.WithField("account", account.Email).Info("using stored credentials")
	ui.PrintInfo("Using account", account.Email)
	return nil
}

func printSummary(s *models.RunSummary) {
	if s == nil {
		return
	}

	verb := "downloaded"
	if s.DryRun {
		verb = "would download"
	}

	ui.PrintSuccess(fmt.Sprintf("%d new photos %s, %d scanned across %d pages", s.Downloaded, verb, s.Scanned, s.PagesFetched))
	if s.Failed > 0 {
		ui.PrintWarning(fmt.Sprintf("%d photos failed and will be retried next run", s.Failed))
	}
	if s.TagWarnings > 0 {
		ui.PrintWarning(fmt.Sprintf("%d photos saved without embedded metadata", s.TagWarnings))
	}
	if s.Truncated {
		ui.PrintWarning("feed scan ended early, remaining photos will be picked up next run")
	}
}
