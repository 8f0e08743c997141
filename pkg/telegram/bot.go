package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tcgrabber/pkg/config"
	"tcgrabber/pkg/exif"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/settings"
)

const unknownCommandReply = "Command not understood. Available commands: /sendfile, /sendphoto, /status, /photos <YYYY-MM-DD>"

// Bot long-polls for commands from the configured chat. It shares the
// delivery-mode store with the notifier so /sendfile and /sendphoto
// take effect on the very next run.
type Bot struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	store     *settings.Store
	photosDir string
	logger    logger.Logger

	mu          sync.RWMutex
	lastSummary *models.RunSummary
}

// NewBot builds the command bot on an already-authorized bot API.
// photosDir is the local photo directory served by /photos.
func NewBot(api *tgbotapi.BotAPI, cfg config.TelegramConfig, store *settings.Store, photosDir string, log logger.Logger) *Bot {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Bot{
		api:       api,
		chatID:    cfg.ChatID,
		store:     store,
		photosDir: photosDir,
		logger:    log,
	}
}

// SetLastSummary records the most recent run result for /status.
func (b *Bot) SetLastSummary(s *models.RunSummary) {
	b.mu.Lock()
	b.lastSummary = s
	b.mu.Unlock()
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	b.logger.WithField("bot", b.api.Self.UserName).Info("command bot listening")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(update.Message)
		}
	}
}

func (b *Bot) registerCommands() {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "sendfile", Description: "Deliver new photos as original-quality files"},
		tgbotapi.BotCommand{Command: "sendphoto", Description: "Deliver new photos as compressed photos"},
		tgbotapi.BotCommand{Command: "status", Description: "Show the last sync result"},
		tgbotapi.BotCommand{Command: "photos", Description: "Resend photos from a given date (YYYY-MM-DD)"},
	)
	if _, err := b.api.Request(cmds); err != nil {
		b.logger.WithError(err).Warn("failed to register bot commands")
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.Chat.ID != b.chatID {
		b.logger.WithField("chat_id", msg.Chat.ID).Debug("ignoring message from unconfigured chat")
		return
	}

	switch msg.Command() {
	case "sendfile":
		b.setDeliveryMode(true)
	case "sendphoto":
		b.setDeliveryMode(false)
	case "status":
		b.reply(b.statusText())
	case "photos":
		b.sendPhotosForDate(strings.TrimSpace(msg.CommandArguments()))
	default:
		b.reply(unknownCommandReply)
	}
}

func (b *Bot) setDeliveryMode(asFile bool) {
	if err := b.store.SetSendAsFile(asFile); err != nil {
		b.logger.WithError(err).Error("failed to persist delivery mode")
		b.reply("Could not save the setting, please try again.")
		return
	}
	if asFile {
		b.reply("New photos will be sent as original-quality files.")
	} else {
		b.reply("New photos will be sent as compressed photos.")
	}
}

func (b *Bot) statusText() string {
	b.mu.RLock()
	s := b.lastSummary
	b.mu.RUnlock()

	mode := "compressed photos"
	if b.store.SendAsFile() {
		mode = "original files"
	}

	if s == nil {
		return fmt.Sprintf("No sync has completed yet. Delivery mode: %s.", mode)
	}

	return fmt.Sprintf(
		"Last sync finished %s: %d new, %d failed, %d scanned across %d pages. Delivery mode: %s.",
		s.Finished.Format("2006-01-02 15:04"),
		s.Downloaded, s.Failed, s.Scanned, s.PagesFetched, mode,
	)
}

// sendPhotosForDate resends every locally saved photo from the given
// day, with its embedded description as the caption. Photo filenames
// start with the post date, so a prefix scan of the output directory
// is enough.
func (b *Bot) sendPhotosForDate(arg string) {
	if _, err := time.Parse("2006-01-02", arg); err != nil {
		b.reply("Please give a date as /photos YYYY-MM-DD")
		return
	}

	entries, err := os.ReadDir(b.photosDir)
	if err != nil {
		b.logger.WithError(err).Error("failed to read photo directory")
		b.reply("Could not read the photo directory.")
		return
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), arg+"_") {
			paths = append(paths, filepath.Join(b.photosDir, e.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		b.reply(fmt.Sprintf("No photos found for %s.", arg))
		return
	}

	asFile := b.store.SendAsFile()
	for _, path := range paths {
		caption, err := exif.ReadDescription(path)
		if err != nil {
			b.logger.WithError(err).WithField("path", path).Debug("failed to read embedded description")
		}
		if err := b.sendOne(path, caption, asFile); err != nil {
			b.logger.WithError(err).WithField("path", path).Error("failed to resend photo")
		}
	}
}

func (b *Bot) sendOne(path, caption string, asFile bool) error {
	caption = truncateCaption(caption)

	var msg tgbotapi.Chattable
	if asFile {
		doc := tgbotapi.NewDocument(b.chatID, tgbotapi.FilePath(path))
		doc.Caption = caption
		msg = doc
	} else {
		photo := tgbotapi.NewPhoto(b.chatID, tgbotapi.FilePath(path))
		photo.Caption = caption
		msg = photo
	}

	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) reply(text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		b.logger.WithError(err).Error("failed to send reply")
	}
}
