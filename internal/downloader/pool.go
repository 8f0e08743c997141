// Package downloader runs the per-photo pipeline on a small worker
// pool: dedup check, fetch, write, tag, record. Each photo moves
// through the pipeline exactly once per run, and a successful photo
// produces exactly one file write and one cache record.
package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tcgrabber/pkg/errors"
	"tcgrabber/pkg/exif"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/retry"
	"tcgrabber/pkg/storage"
)

// PhotoFetcher retrieves photo bytes from the portal.
type PhotoFetcher interface {
	FetchPhoto(ctx context.Context, url string) ([]byte, error)
}

// Ledger is the dedup cache surface the pipeline needs.
type Ledger interface {
	Contains(stableID string) (bool, error)
	Record(entry models.CacheEntry) error
}

// Writer persists photo bytes to the output directory.
type Writer interface {
	Write(photo models.PhotoRecord, data []byte) (*storage.WriteResult, error)
	Touch(path string, when time.Time)
}

// SettingsReader exposes the live fidelity mode. Read once per item,
// at fetch time, so a mode change takes effect with the next item.
type SettingsReader interface {
	SendAsFile() bool
}

// Result is the terminal state of one pipeline item.
type Result struct {
	Photo      models.PhotoRecord
	Outcome    models.Outcome
	TagWarning bool
	Path       string
	Err        error
	Duration   time.Duration
}

// Tags carries the run-scoped metadata defaults (GPS hint, keywords).
type Tags struct {
	Lat      float64
	Lng      float64
	Keywords string
}

// WorkerPool manages concurrent photo pipeline workers.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan models.PhotoRecord
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context

	fetcher  PhotoFetcher
	ledger   Ledger
	writer   Writer
	tagger   exif.Tagger
	settings SettingsReader
	tags     Tags
	logger   logger.Logger

	// seen guards against the same stable id being processed twice in
	// one run when the feed delivers overlapping pages.
	mu   sync.Mutex
	seen map[string]bool
}

// NewWorkerPool creates a pipeline pool. The pool reads the live
// settings at the start of each item, never mid-item.
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	fetcher PhotoFetcher,
	ledger Ledger,
	writer Writer,
	tagger exif.Tagger,
	settings SettingsReader,
	tags Tags,
	log logger.Logger,
) *WorkerPool {
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan models.PhotoRecord, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		fetcher:     fetcher,
		ledger:      ledger,
		writer:      writer,
		tagger:      tagger,
		settings:    settings,
		tags:        tags,
		logger:      log,
		seen:        make(map[string]bool),
	}
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop signals that no more jobs will arrive, waits for the workers
// to drain the queue, then closes the result channel.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
}

// Submit queues a photo for processing. Returns an error when the run
// context has been cancelled.
func (wp *WorkerPool) Submit(photo models.PhotoRecord) error {
	select {
	case wp.jobQueue <- photo:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the channel of terminal item states.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for photo := range wp.jobQueue {
		// A cancelled run abandons queued items; the item currently
		// being processed was already completed before we got here.
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		start := time.Now()
		result := wp.process(photo)
		result.Duration = time.Since(start)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// process runs one photo through the pipeline state machine:
// Pending -> Fetching -> Writing -> Tagging -> Done. Any terminal
// failure reports which stage it happened in via the error type.
func (wp *WorkerPool) process(photo models.PhotoRecord) Result {
	stableID := photo.StableID()
	log := wp.logger.WithField("stable_id", stableID)

	// Within-run duplicate guard: pagination overlap can deliver the
	// same photo twice.
	wp.mu.Lock()
	if wp.seen[stableID] {
		wp.mu.Unlock()
		return Result{Photo: photo, Outcome: models.OutcomeSkipped}
	}
	wp.seen[stableID] = true
	wp.mu.Unlock()

	// Pending: the cache is the authority for new vs. seen.
	present, err := wp.ledger.Contains(stableID)
	if err != nil {
		return Result{Photo: photo, Outcome: models.OutcomeFailed,
			Err: errors.Newf(errors.ErrorTypeStorage, "cache lookup failed: %v", err)}
	}
	if present {
		log.Debug("photo already processed, skipping")
		return Result{Photo: photo, Outcome: models.OutcomeSkipped}
	}

	// Fetching: the fidelity mode is read here, once, for this item.
	original := wp.settings.SendAsFile()
	url := photo.DownloadURL(original)

	data, err := retry.DoWithResult(func() ([]byte, error) {
		return wp.fetcher.FetchPhoto(wp.ctx, url)
	}, &retry.Config{
		MaxAttempts: 2,
		Backoff:     &retry.ConstantBackoff{Delay: 2 * time.Second},
		RetryIf:     retry.DefaultRetryIf,
		Context:     wp.ctx,
		Logger:      log,
	})
	if err != nil {
		return Result{Photo: photo, Outcome: models.OutcomeFailed, Err: err}
	}

	// Writing: deterministic name, atomic rename. No cache entry yet.
	written, err := wp.writer.Write(photo, data)
	if err != nil {
		return Result{Photo: photo, Outcome: models.OutcomeFailed, Err: err}
	}

	// Tagging: best-effort. The file stays on disk either way.
	tagWarning := false
	if err := wp.tagger.Embed(wp.ctx, written.Path, exif.Fields{
		Caption:   photo.Caption,
		Author:    photo.Author,
		CreatedAt: photo.CreatedAt,
		Lat:       wp.tags.Lat,
		Lng:       wp.tags.Lng,
		Keywords:  wp.tags.Keywords,
	}); err != nil {
		log.WithError(err).Warn("failed to embed metadata")
		tagWarning = true
	}
	wp.writer.Touch(written.Path, photo.CreatedAt)

	// Done: the cache entry is created only now, after write and tag.
	if err := wp.ledger.Record(models.CacheEntry{
		StableID:    stableID,
		LocalPath:   written.Path,
		Fingerprint: written.Fingerprint,
		Size:        written.Size,
		FirstSeen:   time.Now(),
	}); err != nil {
		// The file exists but the ledger entry does not; the next run
		// will see the photo as new and reprocess it under the same
		// filename.
		return Result{Photo: photo, Outcome: models.OutcomeFailed, Path: written.Path,
			Err: errors.Newf(errors.ErrorTypeStorage, "failed to record cache entry: %v", err)}
	}

	log.InfoWithFields("photo downloaded", map[string]interface{}{
		"path":     written.Path,
		"size":     written.Size,
		"original": original,
	})

	return Result{
		Photo:      photo,
		Outcome:    models.OutcomeDownloaded,
		TagWarning: tagWarning,
		Path:       written.Path,
	}
}
