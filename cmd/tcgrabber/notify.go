package main

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tcgrabber/pkg/config"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/settings"
	"tcgrabber/pkg/telegram"
)

func newBotAPI(cfg *config.Config, log logger.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, err
	}
	log.WithField("bot", api.Self.UserName).Debug("telegram bot authorized")
	return api, nil
}

// notifyRun delivers a one-shot run's results. Delivery failures are
// logged, not fatal; the photos are already safe on disk.
func notifyRun(cfg *config.Config, store *settings.Store, summary *models.RunSummary, log logger.Logger) {
	api, err := newBotAPI(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to reach telegram")
		return
	}

	notifier := telegram.NewNotifier(api, cfg.Telegram, store, log)
	if err := notifier.NotifyRun(summary); err != nil {
		log.WithError(err).Error("failed to send run notification")
	}
}
