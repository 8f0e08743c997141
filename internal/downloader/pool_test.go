package downloader

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcgrabber/pkg/errors"
	"tcgrabber/pkg/exif"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/storage"
)

type fakeFetcher struct {
	mu      sync.Mutex
	photos  map[string][]byte
	failErr error
	calls   []string
}

func (f *fakeFetcher) FetchPhoto(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.failErr != nil {
		return nil, f.failErr
	}
	data, ok := f.photos[url]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no photo at %s", url)
	}
	return data, nil
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeLedger struct {
	mu        sync.Mutex
	entries   map[string]models.CacheEntry
	recordErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]models.CacheEntry)}
}

func (l *fakeLedger) Contains(stableID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[stableID]
	return ok, nil
}

func (l *fakeLedger) Record(entry models.CacheEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	if _, ok := l.entries[entry.StableID]; !ok {
		l.entries[entry.StableID] = entry
	}
	return nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type fakeWriter struct {
	mu      sync.Mutex
	writes  int
	touched map[string]time.Time
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{touched: make(map[string]time.Time)}
}

func (w *fakeWriter) Write(photo models.PhotoRecord, data []byte) (*storage.WriteResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	return &storage.WriteResult{
		Path:        "/photos/" + photo.StableID() + ".jpg",
		Fingerprint: fmt.Sprintf("fp-%s", photo.StableID()),
		Size:        int64(len(data)),
	}, nil
}

func (w *fakeWriter) Touch(path string, when time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touched[path] = when
}

func (w *fakeWriter) writeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

type fakeSettings struct{ asFile bool }

func (s fakeSettings) SendAsFile() bool { return s.asFile }

type failingTagger struct{}

func (failingTagger) Available() bool { return true }

func (failingTagger) Embed(context.Context, string, exif.Fields) error {
	return errors.New(errors.ErrorTypeTagging, "exiftool exploded")
}

func testPhoto(postID int64, index int) models.PhotoRecord {
	return models.PhotoRecord{
		PostID:        postID,
		Index:         index,
		URL:           fmt.Sprintf("https://portal.test/photos/%d-%d/original", postID, index),
		CompressedURL: fmt.Sprintf("https://portal.test/photos/%d-%d/small", postID, index),
		Caption:       "Working with the pink tower",
		Author:        "Ms. Rivera",
		CreatedAt:     time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
	}
}

type fixture struct {
	fetcher  *fakeFetcher
	ledger   *fakeLedger
	writer   *fakeWriter
	tagger   exif.Tagger
	settings fakeSettings
}

func newFixture(photos ...models.PhotoRecord) *fixture {
	f := &fixture{
		fetcher:  &fakeFetcher{photos: make(map[string][]byte)},
		ledger:   newFakeLedger(),
		writer:   newFakeWriter(),
		tagger:   exif.NoopTagger{},
		settings: fakeSettings{asFile: true},
	}
	for _, p := range photos {
		f.fetcher.photos[p.URL] = []byte("original bytes")
		f.fetcher.photos[p.CompressedURL] = []byte("small")
	}
	return f
}

// run pushes every photo through a pool and collects terminal states
// keyed by stable id.
func (f *fixture) run(t *testing.T, photos ...models.PhotoRecord) map[string]Result {
	t.Helper()

	pool := NewWorkerPool(context.Background(), 2,
		f.fetcher, f.ledger, f.writer, f.tagger, f.settings, Tags{}, logger.NewTestLogger())
	pool.Start()

	go func() {
		for _, p := range photos {
			if err := pool.Submit(p); err != nil {
				t.Errorf("submit failed: %v", err)
			}
		}
		pool.Stop()
	}()

	results := make(map[string]Result)
	for res := range pool.Results() {
		key := res.Photo.StableID()
		// Duplicate submissions produce one skip alongside the real
		// outcome; keep whichever is not the skip.
		if _, ok := results[key]; ok && res.Outcome == models.OutcomeSkipped {
			continue
		}
		results[key] = res
	}
	return results
}

func TestDownloadsNewPhoto(t *testing.T) {
	photo := testPhoto(42, 0)
	f := newFixture(photo)

	results := f.run(t, photo)

	require.Len(t, results, 1)
	res := results["42-0"]
	assert.Equal(t, models.OutcomeDownloaded, res.Outcome)
	assert.False(t, res.TagWarning)
	assert.Equal(t, "/photos/42-0.jpg", res.Path)

	assert.Equal(t, 1, f.ledger.count())
	when, ok := f.writer.touched[res.Path]
	require.True(t, ok, "mtime should be backdated to the post timestamp")
	assert.Equal(t, photo.CreatedAt, when)
}

func TestSkipsPhotoAlreadyInLedger(t *testing.T) {
	photo := testPhoto(42, 0)
	f := newFixture(photo)
	require.NoError(t, f.ledger.Record(models.CacheEntry{StableID: "42-0"}))

	results := f.run(t, photo)

	assert.Equal(t, models.OutcomeSkipped, results["42-0"].Outcome)
	assert.Empty(t, f.fetcher.fetched(), "cached photos must not be fetched")
	assert.Zero(t, f.writer.writeCount())
}

func TestDuplicateSubmissionProcessedOnce(t *testing.T) {
	photo := testPhoto(42, 0)
	f := newFixture(photo)

	pool := NewWorkerPool(context.Background(), 2,
		f.fetcher, f.ledger, f.writer, f.tagger, f.settings, Tags{}, logger.NewTestLogger())
	pool.Start()
	go func() {
		for i := 0; i < 2; i++ {
			if err := pool.Submit(photo); err != nil {
				t.Errorf("submit failed: %v", err)
			}
		}
		pool.Stop()
	}()

	var downloaded, skipped int
	for res := range pool.Results() {
		switch res.Outcome {
		case models.OutcomeDownloaded:
			downloaded++
		case models.OutcomeSkipped:
			skipped++
		}
	}

	assert.Equal(t, 1, downloaded)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, f.writer.writeCount())
	assert.Equal(t, 1, f.ledger.count())
}

func TestFetchFailureIsTerminal(t *testing.T) {
	photo := testPhoto(42, 0)
	f := newFixture(photo)
	f.fetcher.failErr = errors.New(errors.ErrorTypeAuth, "session rejected")

	results := f.run(t, photo)

	res := results["42-0"]
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeAuth))
	assert.Len(t, f.fetcher.fetched(), 1, "auth failures are not retried")
	assert.Zero(t, f.ledger.count())
}

func TestTagFailureStillCountsAsDownloaded(t *testing.T) {
	photo := testPhoto(42, 0)
	f := newFixture(photo)
	f.tagger = failingTagger{}

	results := f.run(t, photo)

	res := results["42-0"]
	assert.Equal(t, models.OutcomeDownloaded, res.Outcome)
	assert.True(t, res.TagWarning)
	assert.Equal(t, 1, f.ledger.count(), "untagged photos still enter the ledger")
}

func TestRecordFailureIsFailed(t *testing.T) {
	photo := testPhoto(42, 0)
	f := newFixture(photo)
	f.ledger.recordErr = fmt.Errorf("disk full")

	results := f.run(t, photo)

	res := results["42-0"]
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeStorage))
	assert.Equal(t, "/photos/42-0.jpg", res.Path, "the file was written before the ledger refused")
}

func TestFidelityModeSelectsURL(t *testing.T) {
	photo := testPhoto(42, 0)

	f := newFixture(photo)
	f.settings = fakeSettings{asFile: true}
	f.run(t, photo)
	require.Len(t, f.fetcher.fetched(), 1)
	assert.Equal(t, photo.URL, f.fetcher.fetched()[0])

	f = newFixture(photo)
	f.settings = fakeSettings{asFile: false}
	f.run(t, photo)
	require.Len(t, f.fetcher.fetched(), 1)
	assert.Equal(t, photo.CompressedURL, f.fetcher.fetched()[0])
}
