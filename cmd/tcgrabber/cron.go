package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tcgrabber/pkg/grabber"
	"tcgrabber/pkg/schedule"
	"tcgrabber/pkg/settings"
	"tcgrabber/pkg/telegram"
	"tcgrabber/pkg/ui"
)

var (
	// Cron command flags
	scheduleSpec   string
	cronExpression string
	runNow         bool
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Run continuously, syncing on a schedule",
	Long: `Run as a long-lived process that syncs on a schedule and, when
Telegram is configured, delivers new photos and answers bot commands.

A sync that is still running when the next trigger fires causes that
trigger to be dropped, never queued. Stopping the process waits for
any in-flight sync to finish.`,
	Example: `  # Sync daily at 02:00 (the default schedule)
  tcgrabber cron

  # Sync every 6 hours, starting with an immediate run
  tcgrabber cron --schedule "every 6 hours" --run-now

  # Full cron expression in the configured timezone
  tcgrabber cron --cron-expression "0 7 * * 1-5"`,
	Args: cobra.NoArgs,
	RunE: runCron,
}

func init() {
	rootCmd.AddCommand(cronCmd)

	cronCmd.Flags().StringVar(&scheduleSpec, "schedule", "", `simple schedule: hourly, daily, weekly, "every 6 hours"`)
	cronCmd.Flags().StringVar(&cronExpression, "cron-expression", "", "cron expression (overrides --schedule)")
	cronCmd.Flags().BoolVar(&runNow, "run-now", false, "run one sync immediately on startup")
}

func runCron(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if scheduleSpec != "" {
		cfg.Schedule.Spec = scheduleSpec
	}
	if cronExpression != "" {
		cfg.Schedule.CronExpression = cronExpression
	}
	if runNow {
		cfg.Schedule.RunOnStart = true
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

	var notifier *telegram.Notifier
	var bot *telegram.Bot
	if cfg.Telegram.Enabled() {
		api, err := newBotAPI(cfg, log)
		if err != nil {
			ui.PrintError("Failed to reach telegram", err.Error())
			os.Exit(1)
		}
		notifier = telegram.NewNotifier(api, cfg.Telegram, store, log)
		bot = telegram.NewBot(api, cfg.Telegram, store, cfg.Output.Directory, log)
	}

	job := func(ctx context.Context) {
		summary, err := g.Run(ctx, grabber.RunOptions{})
		if err != nil {
			log.WithError(err).Error("scheduled sync failed")
		}
		if bot != nil {
			bot.SetLastSummary(summary)
		}
		if notifier != nil {
			if err := notifier.NotifyRun(summary); err != nil {
				log.WithError(err).Error("failed to send run notification")
			}
		}
	}

	sched := schedule.New(job, cfg.Schedule, log)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return sched.Start(ctx) })
	if bot != nil {
		group.Go(func() error { return bot.Run(ctx) })
	}

	if err := group.Wait(); err != nil {
		ui.PrintError("Scheduler stopped", err.Error())
		os.Exit(1)
	}

	log.Info("shutdown complete")
	return nil
}
