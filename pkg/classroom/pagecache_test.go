package classroom

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcgrabber/pkg/logger"
)

func TestPageCacheRoundTrip(t *testing.T) {
	pc, err := NewPageCache(t.TempDir(), time.Hour, logger.NewTestLogger())
	require.NoError(t, err)

	assert.Nil(t, pc.Get(1))

	pc.Put(1, []byte(`[{"id": 1}]`))
	assert.Equal(t, []byte(`[{"id": 1}]`), pc.Get(1))
	assert.Nil(t, pc.Get(2))
}

func TestPageCacheExpiry(t *testing.T) {
	dir := t.TempDir()
	pc, err := NewPageCache(dir, 50*time.Millisecond, logger.NewTestLogger())
	require.NoError(t, err)

	pc.Put(3, []byte("[]"))
	require.NotNil(t, pc.Get(3))

	// Backdate the file past the TTL instead of sleeping.
	path := filepath.Join(dir, "cache_page_3.json")
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.Nil(t, pc.Get(3))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "expired pages are removed")
}

func TestPageCacheDisabled(t *testing.T) {
	pc, err := NewPageCache(t.TempDir(), 0, logger.NewTestLogger())
	require.NoError(t, err)

	pc.Put(1, []byte("[]"))
	assert.Nil(t, pc.Get(1))

	var nilCache *PageCache
	nilCache.Put(1, []byte("[]"))
	assert.Nil(t, nilCache.Get(1))
}
