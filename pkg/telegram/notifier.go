// Package telegram delivers freshly downloaded photos to a single
// configured chat and accepts a small command set for controlling
// delivery. Only the configured chat is ever served; messages from
// anyone else are dropped.
package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tcgrabber/pkg/config"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/settings"
)

// Telegram caps photo/document captions at 1024 characters.
const maxCaptionLength = 1024

// Notifier pushes run results to the configured chat. A run with zero
// new downloads produces no messages at all.
type Notifier struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	maxPhotos int
	store     *settings.Store
	logger    logger.Logger
}

// NewNotifier builds a notifier on an already-authorized bot API.
func NewNotifier(api *tgbotapi.BotAPI, cfg config.TelegramConfig, store *settings.Store, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Notifier{
		api:       api,
		chatID:    cfg.ChatID,
		maxPhotos: cfg.MaxPhotosPerRun,
		store:     store,
		logger:    log,
	}
}

// NotifyRun sends a summary line followed by the downloaded photos,
// capped at the configured per-run maximum. Per-photo delivery
// failures are logged and skipped so one bad upload cannot block the
// rest of the batch.
func (n *Notifier) NotifyRun(summary *models.RunSummary) error {
	if summary == nil || summary.Downloaded == 0 {
		n.logger.Debug("no new photos, skipping notification")
		return nil
	}

	if _, err := n.api.Send(tgbotapi.NewMessage(n.chatID, formatSummary(summary))); err != nil {
		return fmt.Errorf("sending summary message: %w", err)
	}

	asFile := n.store.SendAsFile()

	items := summary.Items
	overflow := 0
	if n.maxPhotos > 0 && len(items) > n.maxPhotos {
		overflow = len(items) - n.maxPhotos
		items = items[:n.maxPhotos]
	}

	for _, item := range items {
		if err := n.sendPhoto(item.Path, item.Description, asFile); err != nil {
			n.logger.WithError(err).WithField("path", item.Path).Error("failed to deliver photo")
		}
	}

	if overflow > 0 {
		msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("...and %d more new photos were saved locally.", overflow))
		if _, err := n.api.Send(msg); err != nil {
			n.logger.WithError(err).Error("failed to send overflow message")
		}
	}

	return nil
}

func (n *Notifier) sendPhoto(path, caption string, asFile bool) error {
	caption = truncateCaption(caption)

	var msg tgbotapi.Chattable
	if asFile {
		doc := tgbotapi.NewDocument(n.chatID, tgbotapi.FilePath(path))
		doc.Caption = caption
		msg = doc
	} else {
		photo := tgbotapi.NewPhoto(n.chatID, tgbotapi.FilePath(path))
		photo.Caption = caption
		msg = photo
	}

	_, err := n.api.Send(msg)
	return err
}

func formatSummary(s *models.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Downloaded %d new photos (%d scanned).", s.Downloaded, s.Scanned)
	if s.Failed > 0 {
		fmt.Fprintf(&b, " %d failed and will be retried next run.", s.Failed)
	}
	if s.TagWarnings > 0 {
		fmt.Fprintf(&b, " %d saved without embedded metadata.", s.TagWarnings)
	}
	if s.Truncated {
		b.WriteString(" The feed scan ended early; remaining photos will be picked up next run.")
	}
	return b.String()
}

func truncateCaption(s string) string {
	if len(s) <= maxCaptionLength {
		return s
	}
	// Cut on a rune boundary.
	runes := []rune(s)
	for len(string(runes)) > maxCaptionLength-3 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
