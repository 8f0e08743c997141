package classroom

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/net/html"

	"tcgrabber/pkg/errors"
	"tcgrabber/pkg/models"
)

// postPayload mirrors one element of the posts.json feed.
type postPayload struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	HTML      string `json:"html"`
	Author    string `json:"author"`

	// Most posts carry a single photo. Gallery posts list every
	// variant pair in the plural fields instead.
	PhotoURL          string   `json:"photo_url"`
	OriginalPhotoURL  string   `json:"original_photo_url"`
	PhotoURLs         []string `json:"photo_urls"`
	OriginalPhotoURLs []string `json:"original_photo_urls"`
}

// parsePosts decodes one feed page into post records. A payload that
// is not valid JSON is a parse error, distinct from transport
// failures so callers can skip a malformed page without retrying it.
func parsePosts(data []byte) ([]models.PostRecord, error) {
	var payloads []postPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, errors.Newf(errors.ErrorTypeParsing, "unexpected feed page shape: %v", err)
	}

	records := make([]models.PostRecord, 0, len(payloads))
	for _, p := range payloads {
		rec, ok := p.toRecord()
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// toRecord converts a wire payload into a PostRecord. Posts without
// any photo (plain text announcements) report ok=false.
func (p postPayload) toRecord() (models.PostRecord, bool) {
	createdAt := parseTimestamp(p.CreatedAt)
	caption := StripHTML(p.HTML)
	author := StripHTML(p.Author)

	originals := p.OriginalPhotoURLs
	compressed := p.PhotoURLs
	if len(originals) == 0 && p.OriginalPhotoURL != "" {
		originals = []string{p.OriginalPhotoURL}
		compressed = []string{p.PhotoURL}
	}
	if len(originals) == 0 {
		return models.PostRecord{}, false
	}

	rec := models.PostRecord{
		ID:        p.ID,
		CreatedAt: createdAt,
		Author:    author,
		Caption:   caption,
	}
	for i, url := range originals {
		photo := models.PhotoRecord{
			PostID:    p.ID,
			Index:     i,
			URL:       url,
			Caption:   caption,
			Author:    author,
			CreatedAt: createdAt,
		}
		if i < len(compressed) {
			photo.CompressedURL = compressed[i]
		}
		rec.Photos = append(rec.Photos, photo)
	}
	return rec, true
}

// parseTimestamp handles the feed's ISO timestamps, with and without
// the trailing Z.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(s, "Z")); err == nil {
		return t
	}
	return time.Time{}
}

// StripHTML flattens an HTML fragment to its text content. Captions
// and author names arrive as markup in the feed.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String())
}

// findCSRFToken extracts the content of the csrf-token meta tag from
// a sign-in page.
func findCSRFToken(doc *html.Node) string {
	var token string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if token != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if name == "csrf-token" {
				token = content
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return token
}
