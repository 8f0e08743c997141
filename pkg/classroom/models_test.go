package classroom

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/net/html"

	"tcgrabber/pkg/errors"
)

func TestParsePostsSinglePhoto(t *testing.T) {
	posts, err := parsePosts([]byte(`[
		{"id": 10, "created_at": "2024-05-01T10:00:00Z",
		 "html": "<div><p>Practical life: <b>pouring</b></p></div>", "author": "<span>Ms. Smith</span>",
		 "photo_url": "small.jpg", "original_photo_url": "orig.jpg"}
	]`))
	require.NoError(t, err)
	require.Len(t, posts, 1)

	post := posts[0]
	assert.Equal(t, "Practical life: pouring", post.Caption)
	assert.Equal(t, "Ms. Smith", post.Author)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), post.CreatedAt)

	require.Len(t, post.Photos, 1)
	photo := post.Photos[0]
	assert.Equal(t, "orig.jpg", photo.URL)
	assert.Equal(t, "small.jpg", photo.CompressedURL)
	assert.Equal(t, post.Caption, photo.Caption)
}

func TestParsePostsGallery(t *testing.T) {
	posts, err := parsePosts([]byte(`[
		{"id": 11, "created_at": "2024-05-01T10:00:00Z", "html": "Outside", "author": "A",
		 "photo_urls": ["s0.jpg", "s1.jpg", "s2.jpg"],
		 "original_photo_urls": ["o0.jpg", "o1.jpg", "o2.jpg"]}
	]`))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Len(t, posts[0].Photos, 3)

	for i, photo := range posts[0].Photos {
		assert.Equal(t, i, photo.Index)
		assert.Equal(t, int64(11), photo.PostID)
	}
}

func TestParsePostsDropsTextOnly(t *testing.T) {
	posts, err := parsePosts([]byte(`[
		{"id": 12, "created_at": "2024-05-01T10:00:00Z", "html": "Reminder: no school Friday", "author": "Office"}
	]`))
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestParsePostsMalformed(t *testing.T) {
	_, err := parsePosts([]byte(`{"unexpected": "object"}`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParsing))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00-05:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("", -5*3600))},
		{"2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"not a date", time.Time{}},
	}

	for _, test := range tests {
		got := parseTimestamp(test.input)
		assert.True(t, got.Equal(test.expected), "parseTimestamp(%q) = %v, want %v", test.input, got, test.expected)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"<p>hello <b>world</b></p>", "hello world"},
		{"<div>one</div><div>two</div>", "onetwo"},
		{"&amp; friends", "& friends"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, StripHTML(test.input), "input %q", test.input)
	}
}

func TestFindCSRFToken(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<html><head><meta charset="utf-8"><meta name="csrf-token" content="abc-123"></head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "abc-123", findCSRFToken(doc))

	empty, err := html.Parse(strings.NewReader(`<html><head></head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "", findCSRFToken(empty))
}
