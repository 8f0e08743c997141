// Package settings holds the small mutable record shared between the
// Telegram bot and the download pipeline: whether photos are handled
// at original quality ("send as file") or as compressed variants.
//
// The record is guarded by a lock and persisted on every write, so a
// mode chosen over the bot survives process restarts. A pipeline read
// during an in-flight item may be one item stale; a mode change takes
// effect with the next item.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tcgrabber/pkg/logger"
)

const settingsFileName = "settings.json"

// Record is the persisted settings snapshot.
type Record struct {
	// SendAsFile selects original quality: fetch the original photo
	// variant and deliver Telegram attachments as documents.
	SendAsFile bool      `json:"send_as_file"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store owns the settings record. All access goes through Get/Set.
type Store struct {
	path   string
	logger logger.Logger

	mu     sync.RWMutex
	record Record
}

// NewStore loads the settings record from dir, creating the default
// record (send as file) when none exists.
func NewStore(dir string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	s := &Store{
		path:   filepath.Join(dir, settingsFileName),
		logger: log,
		record: Record{SendAsFile: true},
	}

	if err := s.load(); err != nil {
		// A corrupt settings file falls back to defaults rather than
		// blocking startup.
		log.WithError(err).Warn("failed to load settings, using defaults")
	}

	return s, nil
}

// Get returns a copy of the current record.
func (s *Store) Get() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// SendAsFile reports the current fidelity mode.
func (s *Store) SendAsFile() bool {
	return s.Get().SendAsFile
}

// SetSendAsFile updates the fidelity mode and persists immediately.
func (s *Store) SetSendAsFile(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record.SendAsFile = v
	s.record.UpdatedAt = time.Now()

	if err := s.persist(); err != nil {
		return err
	}

	s.logger.InfoWithFields("updated settings", map[string]interface{}{
		"send_as_file": v,
	})
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}

	s.mu.Lock()
	s.record = rec
	s.mu.Unlock()
	return nil
}

// persist writes the record atomically. Caller holds s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	return nil
}
