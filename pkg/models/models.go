package models

import (
	"fmt"
	"time"
)

// AccountScope identifies one child within one school, plus the
// geographic hint and keywords embedded into downloaded photos.
// Immutable for the duration of a run.
type AccountScope struct {
	SchoolID int
	ChildID  int
	Lat      float64
	Lng      float64
	Keywords string
}

// PostRecord is one entry of the classroom posts feed. Post records
// are ephemeral; only the PhotoRecords derived from them are tracked.
type PostRecord struct {
	ID        int64
	CreatedAt time.Time
	Author    string
	Caption   string
	Photos    []PhotoRecord
}

// PhotoRecord describes a single downloadable photo within a post.
type PhotoRecord struct {
	PostID        int64
	Index         int
	URL           string // original quality variant
	CompressedURL string // smaller variant, empty when the feed offers only one
	Caption       string
	Author        string
	CreatedAt     time.Time
}

// StableID returns the deterministic dedup key for this photo.
// It is derived from the remote post id and the photo's position
// inside the post, so repeated crawls of the same remote state always
// produce the same key regardless of CDN URL rotation.
func (p PhotoRecord) StableID() string {
	return fmt.Sprintf("%d-%d", p.PostID, p.Index)
}

// DownloadURL returns the URL matching the requested fidelity. When
// the feed does not offer a compressed variant the original is used
// for both modes.
func (p PhotoRecord) DownloadURL(original bool) string {
	if !original && p.CompressedURL != "" {
		return p.CompressedURL
	}
	return p.URL
}

// CacheEntry is the durable proof that a photo was fully written and
// tagged. Entries are created once, after success, and never mutated.
type CacheEntry struct {
	StableID    string
	LocalPath   string
	Fingerprint string // sha256 of file contents
	Size        int64
	FirstSeen   time.Time
}

// Outcome is the terminal state of one pipeline item.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeDownloaded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DownloadedItem points at a photo materialized during the current run,
// used by the notification sink.
type DownloadedItem struct {
	StableID    string
	Path        string
	Description string
}

// RunSummary is the per-execution report handed to the notification
// sink. Owned by the run that produced it.
type RunSummary struct {
	RunID        string
	Started      time.Time
	Finished     time.Time
	Scanned      int // photos seen in the feed
	PostsScanned int
	PagesFetched int
	Downloaded   int
	Failed       int
	TagWarnings  int
	Truncated    bool // crawl ended early (retries exhausted)
	DryRun       bool
	Items        []DownloadedItem
}
