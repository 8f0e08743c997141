package classroom

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcgrabber/pkg/models"
)

const (
	pageOne = `[
		{"id": 1, "created_at": "2024-05-01T10:00:00Z", "html": "<p>Working with beads</p>", "author": "Ms. Smith",
		 "photo_url": "PHOTO/1s.jpg", "original_photo_url": "PHOTO/1o.jpg"},
		{"id": 2, "created_at": "2024-05-01T11:00:00Z", "html": "Snack announcement", "author": "Ms. Smith"}
	]`
	pageTwo = `[
		{"id": 3, "created_at": "2024-05-02T09:00:00Z", "html": "Garden day", "author": "Mr. Jones",
		 "photo_urls": ["PHOTO/3s-0.jpg", "PHOTO/3s-1.jpg"],
		 "original_photo_urls": ["PHOTO/3o-0.jpg", "PHOTO/3o-1.jpg"]}
	]`
)

func crawlAll(t *testing.T, client *Client, opts CrawlOptions) ([]models.PostRecord, *PostIterator) {
	t.Helper()

	scope := models.AccountScope{SchoolID: 1, ChildID: 2}
	it := client.Crawl(context.Background(), scope, opts)

	var posts []models.PostRecord
	for it.Next() {
		posts = append(posts, it.Post())
	}
	return posts, it
}

func TestCrawlPaginatesUntilEmptyPage(t *testing.T) {
	portal := newMockPortal(t)
	portal.pages[1] = pageOne
	portal.pages[2] = pageTwo
	// Page 3 is implicitly empty, terminating the crawl.

	client := newTestClient(t, portal)
	posts, it := crawlAll(t, client, CrawlOptions{MaxRetries: 1})

	require.NoError(t, it.Err())
	require.Len(t, posts, 2, "the text-only post carries no photos and is dropped")
	assert.Equal(t, 3, it.PagesFetched())

	assert.Equal(t, int64(1), posts[0].ID)
	assert.Equal(t, "Working with beads", posts[0].Caption)
	assert.Equal(t, "Ms. Smith", posts[0].Author)
	require.Len(t, posts[0].Photos, 1)
	assert.Equal(t, "PHOTO/1o.jpg", posts[0].Photos[0].URL)
	assert.Equal(t, "PHOTO/1s.jpg", posts[0].Photos[0].CompressedURL)

	require.Len(t, posts[1].Photos, 2, "gallery posts expand to one record per photo")
	assert.Equal(t, "3-0", posts[1].Photos[0].StableID())
	assert.Equal(t, "3-1", posts[1].Photos[1].StableID())
}

func TestCrawlSkipsMalformedPage(t *testing.T) {
	portal := newMockPortal(t)
	portal.pages[1] = pageOne
	portal.pages[2] = `{"this is": "not a feed page"}`
	portal.pages[3] = pageTwo

	client := newTestClient(t, portal)
	posts, it := crawlAll(t, client, CrawlOptions{MaxRetries: 1})

	require.NoError(t, it.Err(), "a single malformed page is skipped, not fatal")
	require.Len(t, posts, 2)
	assert.Equal(t, int64(1), posts[0].ID)
	assert.Equal(t, int64(3), posts[1].ID)
}

func TestCrawlAbortsAfterConsecutiveMalformedPages(t *testing.T) {
	portal := newMockPortal(t)
	for page := 1; page <= 5; page++ {
		portal.pages[page] = `"garbage"`
	}

	client := newTestClient(t, portal)
	posts, it := crawlAll(t, client, CrawlOptions{MaxRetries: 1})

	assert.Empty(t, posts)
	require.Error(t, it.Err(), "an endless run of malformed pages must not loop forever")
}

func TestCrawlEmptyFeed(t *testing.T) {
	portal := newMockPortal(t)

	client := newTestClient(t, portal)
	posts, it := crawlAll(t, client, CrawlOptions{MaxRetries: 1})

	require.NoError(t, it.Err())
	assert.Empty(t, posts)
	assert.Equal(t, 1, it.PagesFetched())
}

func TestGetPostsServesFromPageCache(t *testing.T) {
	portal := newMockPortal(t)
	portal.pages[1] = pageOne
	client := newTestClient(t, portal)

	pc, err := NewPageCache(t.TempDir(), time.Minute, nil)
	require.NoError(t, err)

	scope := models.AccountScope{SchoolID: 1, ChildID: 2}
	opts := CrawlOptions{MaxRetries: 1, PageCache: pc}

	first, err := client.GetPosts(context.Background(), scope, 1, opts)
	require.NoError(t, err)

	// The portal forgets the page; the cache still serves it.
	portal.pages[1] = "[]"
	second, err := client.GetPosts(context.Background(), scope, 1, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
