package grabber

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcgrabber/pkg/config"
	"tcgrabber/pkg/exif"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/settings"
)

// testPortal is a minimal portal: cookie sessions behind a CSRF
// sign-in form, a paginated feed, and photo bodies by path.
type testPortal struct {
	srv *httptest.Server

	mu     sync.Mutex
	pages  map[int]string
	photos map[string][]byte
}

func newTestPortal(t *testing.T) *testPortal {
	p := &testPortal{
		pages:  make(map[int]string),
		photos: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/souls/sign_in", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<html><head><meta name="csrf-token" content="tok-1"></head></html>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			http.Redirect(w, r, "/souls/sign_in", http.StatusFound)
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if data, ok := p.photos[r.URL.Path]; ok {
			w.Write(data)
			return
		}

		page := 0
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		body, ok := p.pages[page]
		if !ok {
			body = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// addPhotoPost publishes a single-photo post and its image body.
func (p *testPortal) addPhotoPost(page int, postID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := fmt.Sprintf("/photos/%d/original.jpg", postID)
	p.photos[path] = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x11}, 64)...)

	post := fmt.Sprintf(`{"id": %d, "created_at": "2024-05-01T10:00:00Z",
		"html": "Post %d", "author": "Ms. Rivera",
		"photo_url": "%s%s", "original_photo_url": "%s%s"}`,
		postID, postID, p.srv.URL, path, p.srv.URL, path)

	existing := p.pages[page]
	if existing == "" {
		p.pages[page] = "[" + post + "]"
	} else {
		p.pages[page] = existing[:len(existing)-1] + "," + post + "]"
	}
}

func testGrabber(t *testing.T, portal *testPortal) (*Grabber, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Portal.Email = "parent@example.com"
	cfg.Portal.Password = "secret"
	cfg.Portal.SchoolID = 1
	cfg.Portal.ChildID = 2
	cfg.Output.Directory = t.TempDir()
	cfg.Cache.Directory = t.TempDir()

	store, err := settings.NewStore(cfg.Cache.Directory, logger.NewTestLogger())
	require.NoError(t, err)

	g, err := New(cfg, store, logger.NewTestLogger(), Options{
		BaseURL: portal.srv.URL,
		Tagger:  exif.NoopTagger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g, cfg
}

func TestRunDownloadsOnlyNewPhotos(t *testing.T) {
	portal := newTestPortal(t)
	portal.addPhotoPost(1, 42)
	portal.addPhotoPost(1, 43)
	portal.addPhotoPost(2, 44)

	g, cfg := testGrabber(t, portal)

	// Photo 42-0 was downloaded by an earlier run.
	require.NoError(t, g.Ledger().Record(models.CacheEntry{
		StableID:  "42-0",
		FirstSeen: time.Now(),
	}))

	summary, err := g.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 3, summary.PostsScanned)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 0, summary.Failed)
	assert.False(t, summary.Truncated)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Items, 2)

	entries, err := os.ReadDir(cfg.Output.Directory)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"2024-05-01_43-0.jpg", "2024-05-01_44-0.jpg"}, names)
}

func TestRunIsIdempotent(t *testing.T) {
	portal := newTestPortal(t)
	portal.addPhotoPost(1, 42)

	g, cfg := testGrabber(t, portal)

	first, err := g.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Downloaded)

	second, err := g.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Downloaded)
	assert.Equal(t, 1, second.Scanned)

	entries, err := os.ReadDir(cfg.Output.Directory)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDryRunTouchesNothing(t *testing.T) {
	portal := newTestPortal(t)
	portal.addPhotoPost(1, 42)
	portal.addPhotoPost(1, 43)

	g, cfg := testGrabber(t, portal)

	summary, err := g.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 2, summary.Downloaded, "dry run reports what it would download")

	entries, err := os.ReadDir(cfg.Output.Directory)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry run must not write files")

	count, err := g.Ledger().Count()
	require.NoError(t, err)
	assert.Zero(t, count, "dry run must not record cache entries")

	live, err := g.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, live.Downloaded, "everything is still new after a dry run")
}

func TestRunWithBadCredentials(t *testing.T) {
	// A portal that never hands out a session cookie.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<html><head><meta name="csrf-token" content="tok-1"></head></html>`)
			return
		}
		fmt.Fprint(w, "You need to sign in or sign up before continuing.")
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Portal.Email = "parent@example.com"
	cfg.Portal.Password = "secret"
	cfg.Portal.SchoolID = 1
	cfg.Portal.ChildID = 2
	cfg.Output.Directory = t.TempDir()
	cfg.Cache.Directory = t.TempDir()

	store, err := settings.NewStore(cfg.Cache.Directory, logger.NewTestLogger())
	require.NoError(t, err)
	g, err := New(cfg, store, logger.NewTestLogger(), Options{
		BaseURL: srv.URL,
		Tagger:  exif.NoopTagger{},
	})
	require.NoError(t, err)
	defer g.Close()

	summary, err := g.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	require.NotNil(t, summary, "a summary is returned even for a failed run")
	assert.Zero(t, summary.Downloaded)
	assert.False(t, summary.Finished.IsZero())
}

func TestRunBackdatesFileModTime(t *testing.T) {
	portal := newTestPortal(t)
	portal.addPhotoPost(1, 42)

	g, cfg := testGrabber(t, portal)

	_, err := g.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(cfg.Output.Directory, "2024-05-01_42-0.jpg"))
	require.NoError(t, err)
	expected := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, info.ModTime().Equal(expected), "mtime %v, want %v", info.ModTime(), expected)
}
