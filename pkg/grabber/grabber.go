// Package grabber orchestrates one synchronization run: authenticate,
// crawl the posts feed, route unseen photos through the download
// pipeline, and produce the run summary.
package grabber

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tcgrabber/internal/downloader"
	"tcgrabber/pkg/cache"
	"tcgrabber/pkg/classroom"
	"tcgrabber/pkg/config"
	"tcgrabber/pkg/exif"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/ratelimit"
	"tcgrabber/pkg/settings"
	"tcgrabber/pkg/storage"
)

// Grabber owns the long-lived pieces of the sync engine. One Grabber
// serves many runs; the scheduler guarantees runs never overlap.
type Grabber struct {
	cfg       *config.Config
	client    *classroom.Client
	ledger    *cache.Cache
	store     *storage.Manager
	tagger    exif.Tagger
	settings  *settings.Store
	pageCache *classroom.PageCache
	logger    logger.Logger
}

// RunOptions tunes a single run.
type RunOptions struct {
	// DryRun crawls and compares against the ledger but performs no
	// fetch, write, tag, or record step.
	DryRun bool
}

// Options overrides dependency construction, used by tests.
type Options struct {
	BaseURL string
	Tagger  exif.Tagger
}

// New wires a Grabber from configuration.
func New(cfg *config.Config, settingsStore *settings.Store, log logger.Logger, opts Options) (*Grabber, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	clientOpts := []classroom.Option{
		classroom.WithRateLimiter(ratelimit.NewTokenBucket(cfg.Download.RequestsPerMinute, time.Minute)),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, classroom.WithBaseURL(opts.BaseURL))
	}

	client, err := classroom.NewClient(classroom.Credentials{
		Email:    cfg.Portal.Email,
		Password: cfg.Portal.Password,
	}, cfg.Download.Timeout, log, clientOpts...)
	if err != nil {
		return nil, err
	}

	ledger, err := cache.Open(cfg.Cache.Directory)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewManager(cfg.Output.Directory)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	pageCache, err := classroom.NewPageCache(cfg.Cache.Directory, cfg.Cache.PageTTL, log)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	tagger := opts.Tagger
	if tagger == nil {
		tagger = exif.NewTagger(log)
	}

	return &Grabber{
		cfg:       cfg,
		client:    client,
		ledger:    ledger,
		store:     store,
		tagger:    tagger,
		settings:  settingsStore,
		pageCache: pageCache,
		logger:    log,
	}, nil
}

// Close flushes and releases the dedup ledger.
func (g *Grabber) Close() error {
	return g.ledger.Close()
}

// Ledger exposes the dedup cache for status queries.
func (g *Grabber) Ledger() *cache.Cache {
	return g.ledger
}

// Run performs one synchronization pass. A summary is always
// returned, even when the run ends early; the error reports why the
// run was cut short.
func (g *Grabber) Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:   uuid.New().String(),
		Started: time.Now(),
		DryRun:  opts.DryRun,
	}
	defer func() { summary.Finished = time.Now() }()

	log := g.logger.WithField("run_id", summary.RunID)
	log.InfoWithFields("starting run", map[string]interface{}{
		"dry_run": opts.DryRun,
	})

	if err := g.client.Login(ctx); err != nil {
		log.WithError(err).Error("authentication failed")
		return summary, err
	}

	scope := models.AccountScope{
		SchoolID: g.cfg.Portal.SchoolID,
		ChildID:  g.cfg.Portal.ChildID,
		Lat:      g.cfg.Location.Lat,
		Lng:      g.cfg.Location.Lng,
		Keywords: g.cfg.Location.Keywords,
	}

	it := g.client.Crawl(ctx, scope, classroom.CrawlOptions{
		MaxRetries: g.cfg.Download.MaxRetries,
		PageCache:  g.pageCache,
	})

	var err error
	if opts.DryRun {
		err = g.runDry(it, summary, log)
	} else {
		err = g.runLive(ctx, it, summary, log)
	}

	summary.PagesFetched = it.PagesFetched()

	log.InfoWithFields("run finished", map[string]interface{}{
		"scanned":    summary.Scanned,
		"downloaded": summary.Downloaded,
		"failed":     summary.Failed,
		"truncated":  summary.Truncated,
	})
	return summary, err
}

// runDry walks the feed and reports what a live run would do, without
// touching the filesystem or the ledger.
func (g *Grabber) runDry(it *classroom.PostIterator, summary *models.RunSummary, log logger.Logger) error {
	seen := make(map[string]bool)

	for it.Next() {
		post := it.Post()
		summary.PostsScanned++

		for _, photo := range post.Photos {
			id := photo.StableID()
			if seen[id] {
				continue
			}
			seen[id] = true
			summary.Scanned++

			present, err := g.ledger.Contains(id)
			if err != nil {
				return err
			}
			if present {
				continue
			}

			summary.Downloaded++
			summary.Items = append(summary.Items, models.DownloadedItem{
				StableID:    id,
				Description: photo.Caption,
			})
			log.InfoWithFields("would download", map[string]interface{}{
				"stable_id": id,
			})
		}
	}

	if err := it.Err(); err != nil {
		summary.Truncated = true
		return err
	}
	return nil
}

// runLive routes unseen photos through the worker pool.
func (g *Grabber) runLive(ctx context.Context, it *classroom.PostIterator, summary *models.RunSummary, log logger.Logger) error {
	pool := downloader.NewWorkerPool(
		ctx,
		g.cfg.Download.ConcurrentDownloads,
		g.client,
		g.ledger,
		g.store,
		g.tagger,
		g.settings,
		downloader.Tags{
			Lat:      g.cfg.Location.Lat,
			Lng:      g.cfg.Location.Lng,
			Keywords: g.cfg.Location.Keywords,
		},
		log,
	)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range pool.Results() {
			switch result.Outcome {
			case models.OutcomeDownloaded:
				summary.Downloaded++
				if result.TagWarning {
					summary.TagWarnings++
				}
				summary.Items = append(summary.Items, models.DownloadedItem{
					StableID:    result.Photo.StableID(),
					Path:        result.Path,
					Description: result.Photo.Caption,
				})
			case models.OutcomeFailed:
				summary.Failed++
				log.WithError(result.Err).WithField("stable_id", result.Photo.StableID()).
					Error("photo processing failed")
			}
		}
	}()

	seen := make(map[string]bool)
	var crawlErr error

	for it.Next() {
		post := it.Post()
		summary.PostsScanned++

		for _, photo := range post.Photos {
			id := photo.StableID()
			if seen[id] {
				continue
			}
			seen[id] = true
			summary.Scanned++

			if err := pool.Submit(photo); err != nil {
				crawlErr = err
				break
			}
		}
		if crawlErr != nil {
			break
		}
	}
	if crawlErr == nil {
		crawlErr = it.Err()
	}

	pool.Stop()
	wg.Wait()

	if crawlErr != nil {
		summary.Truncated = true
		return crawlErr
	}
	return nil
}
