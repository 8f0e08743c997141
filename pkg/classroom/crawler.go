package classroom

import (
	"context"
	"fmt"
	"net/url"

	"tcgrabber/pkg/errors"
	"tcgrabber/pkg/models"
	"tcgrabber/pkg/retry"
)

// maxConsecutiveParseFailures bounds how many malformed pages in a row
// are skipped before the crawl gives up. Without a bound a portal
// serving garbage on every page would never hit the empty-page
// terminator.
const maxConsecutiveParseFailures = 3

// CrawlOptions tunes one crawl.
type CrawlOptions struct {
	// MaxRetries bounds per-page fetch attempts.
	MaxRetries int
	// PageCache, when set, serves unexpired pages from disk.
	PageCache *PageCache
}

// PostIterator walks the paginated posts feed lazily, one page at a
// time, in the feed's reverse-chronological order. The feed reports
// no page count up front; an empty page is the authoritative
// terminator.
//
// Usage follows the scanner pattern:
//
//	it := client.Crawl(ctx, scope, opts)
//	for it.Next() {
//		post := it.Post()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type PostIterator struct {
	ctx    context.Context
	client *Client
	scope  models.AccountScope
	opts   CrawlOptions

	page          int
	buf           []models.PostRecord
	cur           models.PostRecord
	done          bool
	err           error
	pagesFetched  int
	parseFailures int
}

// Crawl starts a lazy crawl of the posts feed for the given scope.
func (c *Client) Crawl(ctx context.Context, scope models.AccountScope, opts CrawlOptions) *PostIterator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &PostIterator{
		ctx:    ctx,
		client: c,
		scope:  scope,
		opts:   opts,
	}
}

// Next advances to the next post, fetching further pages on demand.
// It returns false when the feed is exhausted or a run-ending error
// occurred; check Err to tell the two apart.
func (it *PostIterator) Next() bool {
	for len(it.buf) == 0 {
		if it.done || it.err != nil {
			return false
		}
		it.fetchNextPage()
	}

	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Post returns the record produced by the last successful Next.
func (it *PostIterator) Post() models.PostRecord {
	return it.cur
}

// Err returns the error that truncated the crawl, if any. A crawl
// that reached the empty page returns nil.
func (it *PostIterator) Err() error {
	return it.err
}

// PagesFetched returns how many pages were retrieved so far, for the
// run summary.
func (it *PostIterator) PagesFetched() int {
	return it.pagesFetched
}

func (it *PostIterator) fetchNextPage() {
	it.page++

	posts, err := it.client.GetPosts(it.ctx, it.scope, it.page, it.opts)
	if err != nil {
		// Malformed pages are skipped, not retried: the shape will
		// not change on a refetch.
		if errors.IsType(err, errors.ErrorTypeParsing) {
			it.parseFailures++
			it.client.logger.WarnWithFields("skipping malformed feed page", map[string]interface{}{
				"page":  it.page,
				"error": err.Error(),
			})
			if it.parseFailures >= maxConsecutiveParseFailures {
				it.err = fmt.Errorf("too many consecutive malformed pages: %w", err)
			}
			return
		}
		it.err = err
		return
	}

	it.parseFailures = 0
	it.pagesFetched++

	if len(posts) == 0 {
		it.done = true
		return
	}
	it.buf = append(it.buf, posts...)
}

// GetPosts fetches one page of the posts feed, serving from the page
// cache when possible. Transport failures are retried with backoff up
// to opts.MaxRetries attempts.
func (c *Client) GetPosts(ctx context.Context, scope models.AccountScope, page int, opts CrawlOptions) ([]models.PostRecord, error) {
	if data := opts.PageCache.Get(page); data != nil {
		posts, err := parsePosts(data)
		if err == nil {
			c.logger.DebugWithFields("feed page served from cache", map[string]interface{}{
				"page": page,
			})
			return posts, nil
		}
		// A corrupt cache file falls through to a live fetch.
	}

	postsURL := fmt.Sprintf("%s/s/%d/children/%d/posts.json?%s",
		c.baseURL, scope.SchoolID, scope.ChildID,
		url.Values{"locale": {"en"}, "page": {fmt.Sprint(page)}}.Encode())

	body, err := retry.DoWithResult(func() ([]byte, error) {
		return c.authenticatedGet(ctx, postsURL)
	}, &retry.Config{
		MaxAttempts: opts.MaxRetries,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, err
	}

	posts, err := parsePosts(body)
	if err != nil {
		return nil, err
	}

	opts.PageCache.Put(page, body)

	c.logger.InfoWithFields("retrieved feed page", map[string]interface{}{
		"page":  page,
		"posts": len(posts),
	})
	return posts, nil
}
