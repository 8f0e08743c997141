package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tcgrabber/pkg/errors"
	"tcgrabber/pkg/models"
)

// Manager writes downloaded photos to the output directory.
//
// Filenames are deterministic, derived from the capture date and the
// photo's stable id, so reprocessing an item after a crash overwrites
// the orphaned file instead of producing a duplicate.
type Manager struct {
	outputDir string
}

// WriteResult describes a completed file write.
type WriteResult struct {
	Path        string
	Fingerprint string // sha256 of the written bytes
	Size        int64
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{outputDir: outputDir}, nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// FileName returns the deterministic output name for a photo. The
// extension comes from the actual content, not the download URL; CDN
// URLs carry signed query strings and lie about formats often enough
// that sniffing is the only reliable source.
func (m *Manager) FileName(photo models.PhotoRecord, data []byte) (string, error) {
	ext, err := sniffExtension(data)
	if err != nil {
		return "", err
	}
	date := photo.CreatedAt.Format("2006-01-02")
	return fmt.Sprintf("%s_%s.%s", date, photo.StableID(), ext), nil
}

// Write persists photo bytes under the deterministic filename,
// overwriting any previous file for the same stable id. The write
// goes through a temp file and rename so readers never observe a
// partial file.
func (m *Manager) Write(photo models.PhotoRecord, data []byte) (*WriteResult, error) {
	name, err := m.FileName(photo, data)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(m.outputDir, name)

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return nil, errors.Newf(errors.ErrorTypeStorage, "failed to write photo file: %v", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return nil, errors.Newf(errors.ErrorTypeStorage, "failed to rename photo file: %v", err)
	}

	// Match the file's timestamps to the capture time so photo
	// managers sort by when the picture was taken.
	if !photo.CreatedAt.IsZero() {
		_ = os.Chtimes(path, photo.CreatedAt, photo.CreatedAt)
	}

	sum := sha256.Sum256(data)
	return &WriteResult{
		Path:        path,
		Fingerprint: hex.EncodeToString(sum[:]),
		Size:        int64(len(data)),
	}, nil
}

// Touch re-applies the capture time after tagging rewrote the file.
func (m *Manager) Touch(path string, when time.Time) {
	if !when.IsZero() {
		_ = os.Chtimes(path, when, when)
	}
}

// sniffExtension maps the detected content type to a file extension.
// Non-image payloads (error pages, expired CDN links) are rejected.
func sniffExtension(data []byte) (string, error) {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "jpg", nil
	case "image/png":
		return "png", nil
	case "image/gif":
		return "gif", nil
	case "image/webp":
		return "webp", nil
	case "image/bmp":
		return "bmp", nil
	default:
		return "", errors.New(errors.ErrorTypeParsing, "payload is not a recognized image format")
	}
}
