// Package exif embeds descriptive metadata into downloaded photos and
// reads it back for the Telegram bot's photo browsing.
//
// Embedding shells out to exiftool, which handles EXIF, IPTC and XMP
// across every image format the portal serves. When the binary is not
// installed the tagger degrades to a no-op: the photo itself is the
// primary deliverable, metadata is best-effort.
package exif

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"tcgrabber/pkg/errors"
	"tcgrabber/pkg/logger"
)

// Fields is the metadata embedded into one photo.
type Fields struct {
	Caption   string
	Author    string
	CreatedAt time.Time
	Lat       float64
	Lng       float64
	Keywords  string
}

// Tagger embeds metadata into an image file on disk.
type Tagger interface {
	Embed(ctx context.Context, path string, fields Fields) error
	// Available reports whether embedding actually happens.
	Available() bool
}

// NewTagger returns the exiftool-backed tagger when the binary is on
// PATH and the no-op tagger otherwise.
func NewTagger(log logger.Logger) Tagger {
	if log == nil {
		log = logger.GetLogger()
	}
	if _, err := exec.LookPath("exiftool"); err != nil {
		log.Warn("exiftool not found, photos will be saved without embedded metadata")
		return NoopTagger{}
	}
	return &ExiftoolTagger{logger: log}
}

// ExiftoolTagger embeds metadata by invoking exiftool.
type ExiftoolTagger struct {
	logger logger.Logger
}

// Available always reports true for the exiftool tagger.
func (t *ExiftoolTagger) Available() bool { return true }

// Embed writes caption, author, timestamp and GPS data into the file.
func (t *ExiftoolTagger) Embed(ctx context.Context, path string, fields Fields) error {
	latRef := "N"
	if fields.Lat < 0 {
		latRef = "S"
	}
	lngRef := "E"
	if fields.Lng < 0 {
		lngRef = "W"
	}

	args := []string{
		"-overwrite_original",
		"-ignoreMinorErrors",
		// EXIF tags (widely supported)
		fmt.Sprintf("-EXIF:ImageDescription=%s", fields.Caption),
		fmt.Sprintf("-EXIF:Artist=%s", fields.Author),
		fmt.Sprintf("-EXIF:DateTimeOriginal=%s", fields.CreatedAt.Format("2006:01:02 15:04:05")),
		// GPS data
		fmt.Sprintf("-EXIF:GPSLatitude=%f", abs(fields.Lat)),
		fmt.Sprintf("-EXIF:GPSLatitudeRef=%s", latRef),
		fmt.Sprintf("-EXIF:GPSLongitude=%f", abs(fields.Lng)),
		fmt.Sprintf("-EXIF:GPSLongitudeRef=%s", lngRef),
		// IPTC tags (JPEG/TIFF, ignored for PNG)
		fmt.Sprintf("-IPTC:Caption-Abstract=%s", fields.Caption),
		fmt.Sprintf("-IPTC:ObjectName=%s", fields.Caption),
		fmt.Sprintf("-IPTC:By-line=%s", fields.Author),
		fmt.Sprintf("-IPTC:Keywords=%s", fields.Keywords),
		// XMP tags (universal)
		fmt.Sprintf("-XMP:Description=%s", fields.Caption),
		fmt.Sprintf("-XMP:Title=%s", fields.Caption),
		fmt.Sprintf("-XMP:Creator=%s", fields.Author),
		fmt.Sprintf("-XMP:Subject=%s", fields.Keywords),
		path,
	}

	cmd := exec.CommandContext(ctx, "exiftool", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Newf(errors.ErrorTypeTagging, "exiftool failed: %v: %s",
			err, strings.TrimSpace(string(output)))
	}

	t.logger.DebugWithFields("metadata embedded", map[string]interface{}{
		"path": path,
	})
	return nil
}

// NoopTagger is used when no metadata tool is installed.
type NoopTagger struct{}

// Available reports that no embedding happens.
func (NoopTagger) Available() bool { return false }

// Embed does nothing.
func (NoopTagger) Embed(context.Context, string, Fields) error { return nil }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
