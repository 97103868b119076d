package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/models"
)

func newTestCatalog(t *testing.T) (*EvidenceCatalog, *models.Person) {
	t.Helper()
	s := newTestStore(t)
	p, err := s.Create(context.Background(), "Jane Doe")
	require.NoError(t, err)
	return NewEvidenceCatalog(s), p
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestCopiesSource(t *testing.T) {
	c, p := newTestCatalog(t)
	src := writeSource(t, "photo.jpg", "jpeg-bytes")

	ef, err := c.Ingest(context.Background(), p.ID, src, models.EvidenceImage)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", ef.OriginalName)
	assert.Equal(t, "images/photo.jpg", ef.StoredPath)
	assert.Equal(t, int64(len("jpeg-bytes")), ef.Size)
	assert.Equal(t, models.EvidenceImage, ef.FileType)

	_, err = os.Stat(src)
	require.NoError(t, err, "source must not be moved")
}

func TestIngestSameNameKeepsBoth(t *testing.T) {
	c, p := newTestCatalog(t)
	first := writeSource(t, "photo.jpg", "first")
	second := writeSource(t, "photo.jpg", "second")

	_, err := c.Ingest(context.Background(), p.ID, first, models.EvidenceImage)
	require.NoError(t, err)
	ef, err := c.Ingest(context.Background(), p.ID, second, models.EvidenceImage)
	require.NoError(t, err)
	assert.Equal(t, "images/photo_1.jpg", ef.StoredPath)

	files, err := c.Scan(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "photo.jpg", files[0].OriginalName)
	assert.Equal(t, "photo_1.jpg", files[1].OriginalName)
}

func TestIngestRejectsWrongExtension(t *testing.T) {
	c, p := newTestCatalog(t)
	src := writeSource(t, "notes.exe", "MZ")

	_, err := c.Ingest(context.Background(), p.ID, src, models.EvidenceImage)
	assert.True(t, apperr.Is(err, apperr.UnsupportedFileType))

	files, err := c.Scan(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestIngestErrors(t *testing.T) {
	c, p := newTestCatalog(t)
	src := writeSource(t, "a.pdf", "pdf")

	_, err := c.Ingest(context.Background(), p.ID, filepath.Join(t.TempDir(), "missing.pdf"), models.EvidenceDocument)
	assert.True(t, apperr.Is(err, apperr.SourceNotFound))

	_, err = c.Ingest(context.Background(), uuid.New(), src, models.EvidenceDocument)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	_, err = c.Ingest(context.Background(), p.ID, src, models.EvidenceType("sculpture"))
	assert.True(t, apperr.Is(err, apperr.UnsupportedFileType))
}

func TestIngestExtensionCaseInsensitive(t *testing.T) {
	c, p := newTestCatalog(t)
	src := writeSource(t, "SCAN.PDF", "pdf")

	ef, err := c.Ingest(context.Background(), p.ID, src, models.EvidenceDocument)
	require.NoError(t, err)
	assert.Equal(t, "documents/SCAN.PDF", ef.StoredPath)
}

func TestScanOrderAndMime(t *testing.T) {
	c, p := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.IngestReader(ctx, p.ID, "b.txt", strings.NewReader("hello"), models.EvidenceDocument)
	require.NoError(t, err)
	_, err = c.IngestReader(ctx, p.ID, "z.png", strings.NewReader("\x89PNG\r\n\x1a\n"), models.EvidenceImage)
	require.NoError(t, err)
	_, err = c.IngestReader(ctx, p.ID, "a.txt", strings.NewReader("hi"), models.EvidenceDocument)
	require.NoError(t, err)

	files, err := c.Scan(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "images/z.png", files[0].StoredPath)
	assert.Equal(t, "image/png", files[0].MimeType)
	assert.Equal(t, "documents/a.txt", files[1].StoredPath)
	assert.Equal(t, "documents/b.txt", files[2].StoredPath)
}

func TestScanToleratesMissingSubfolders(t *testing.T) {
	c, p := newTestCatalog(t)
	dir, err := c.persons.Dir(p.ID)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "videos")))

	files, err := c.Scan(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestContainsMatchesVariants(t *testing.T) {
	c, p := newTestCatalog(t)
	ctx := context.Background()
	_, err := c.IngestReader(ctx, p.ID, "a.jpg", strings.NewReader("old"), models.EvidenceImage)
	require.NoError(t, err)
	_, err = c.IngestReader(ctx, p.ID, "a.jpg", strings.NewReader("newer"), models.EvidenceImage)
	require.NoError(t, err)

	ok, err := c.Contains(p.ID, models.EvidenceImage, "a.jpg", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Contains(p.ID, models.EvidenceImage, "a.jpg", 5)
	require.NoError(t, err)
	assert.True(t, ok, "collision copy a_1.jpg counts")

	ok, err = c.Contains(p.ID, models.EvidenceImage, "a.jpg", 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenameAndDelete(t *testing.T) {
	c, p := newTestCatalog(t)
	ctx := context.Background()
	_, err := c.IngestReader(ctx, p.ID, "a.jpg", strings.NewReader("a"), models.EvidenceImage)
	require.NoError(t, err)
	_, err = c.IngestReader(ctx, p.ID, "b.jpg", strings.NewReader("b"), models.EvidenceImage)
	require.NoError(t, err)

	_, err = c.Rename(p.ID, "images/a.jpg", "a.mp3")
	assert.True(t, apperr.Is(err, apperr.UnsupportedFileType))

	ef, err := c.Rename(p.ID, "images/a.jpg", "b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "images/b_1.jpg", ef.StoredPath)

	require.NoError(t, c.Delete(p.ID, "images/b.jpg"))
	err = c.Delete(p.ID, "images/b.jpg")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	err = c.Delete(p.ID, "../person_data.json")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	files, err := c.Scan(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b_1.jpg", files[0].OriginalName)
}

func TestDetachRestoreAndPurge(t *testing.T) {
	c, p := newTestCatalog(t)
	ctx := context.Background()
	_, err := c.IngestReader(ctx, p.ID, "a.jpg", strings.NewReader("a"), models.EvidenceImage)
	require.NoError(t, err)

	restore, _, err := c.Detach(p.ID, "images/a.jpg")
	require.NoError(t, err)
	files, err := c.Scan(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, restore())
	abs, _, err := c.Path(p.ID, "images/a.jpg")
	require.NoError(t, err)

	_, purge, err := c.Detach(p.ID, "images/a.jpg")
	require.NoError(t, err)
	require.NoError(t, purge())
	entries, err := os.ReadDir(filepath.Dir(abs))
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, _, err = c.Detach(p.ID, "images/a.jpg")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}
