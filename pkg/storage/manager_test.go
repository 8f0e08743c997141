package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcgrabber/pkg/errors"
	"tcgrabber/pkg/models"
)

// jpegBytes returns a minimal payload that sniffs as image/jpeg.
func jpegBytes() []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 16)...)
}

// pngBytes returns a minimal payload that sniffs as image/png.
func pngBytes() []byte {
	return append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, make([]byte, 16)...)
}

func testPhoto() models.PhotoRecord {
	return models.PhotoRecord{
		PostID:    42,
		Index:     0,
		URL:       "https://cdn.example.com/a.jpg",
		CreatedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestFileNameDeterministic(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	name1, err := m.FileName(testPhoto(), jpegBytes())
	require.NoError(t, err)
	name2, err := m.FileName(testPhoto(), jpegBytes())
	require.NoError(t, err)

	assert.Equal(t, name1, name2)
	assert.Equal(t, "2024-05-01_42-0.jpg", name1)
}

func TestFileNameExtensionFromContent(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	// The URL says .jpg but the bytes are PNG; the bytes win.
	name, err := m.FileName(testPhoto(), pngBytes())
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01_42-0.png", name)
}

func TestFileNameRejectsNonImage(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.FileName(testPhoto(), []byte("<html>expired link</html>"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParsing))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	data := jpegBytes()
	result, err := m.Write(testPhoto(), data)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "2024-05-01_42-0.jpg"), result.Path)
	assert.Equal(t, int64(len(data)), result.Size)
	assert.NotEmpty(t, result.Fingerprint)

	onDisk, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	// No leftover temp file.
	_, err = os.Stat(result.Path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteSetsModTime(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	photo := testPhoto()
	result, err := m.Write(photo, jpegBytes())
	require.NoError(t, err)

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(photo.CreatedAt),
		"file mtime should match the capture time, got %v", info.ModTime())
}

func TestWriteOverwritesOrphan(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	// A crash after write but before the ledger record leaves an
	// orphaned file; reprocessing must overwrite it, not duplicate it.
	first, err := m.Write(testPhoto(), jpegBytes())
	require.NoError(t, err)
	second, err := m.Write(testPhoto(), jpegBytes())
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)

	entries, err := os.ReadDir(m.OutputDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
