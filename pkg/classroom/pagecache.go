package classroom

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tcgrabber/pkg/logger"
)

// PageCache stores raw feed pages on disk with a TTL, so back-to-back
// runs (or a sync right after a dry-run) do not re-fetch the entire
// feed from the portal.
type PageCache struct {
	dir    string
	ttl    time.Duration
	logger logger.Logger
}

// NewPageCache creates a page cache in dir. A zero ttl disables
// caching entirely.
func NewPageCache(dir string, ttl time.Duration, log logger.Logger) (*PageCache, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create page cache directory: %w", err)
	}
	return &PageCache{dir: dir, ttl: ttl, logger: log}, nil
}

func (pc *PageCache) pagePath(page int) string {
	return filepath.Join(pc.dir, fmt.Sprintf("cache_page_%d.json", page))
}

// Get returns the cached page body, or nil when absent or expired.
// Expired pages are removed on the way out.
func (pc *PageCache) Get(page int) []byte {
	if pc == nil || pc.ttl <= 0 {
		return nil
	}

	path := pc.pagePath(page)
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	if time.Since(info.ModTime()) > pc.ttl {
		pc.logger.DebugWithFields("page cache expired", map[string]interface{}{
			"page": page,
		})
		_ = os.Remove(path)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}

// Put stores a page body. Failures are logged, not fatal; the cache
// is an optimization.
func (pc *PageCache) Put(page int, data []byte) {
	if pc == nil || pc.ttl <= 0 {
		return
	}
	if err := os.WriteFile(pc.pagePath(page), data, 0644); err != nil {
		pc.logger.WithError(err).Warn("failed to write page cache")
	}
}
