package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosync/pkg/index"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog_PutAndAll(t *testing.T) {
	c := openTestCatalog(t)

	size := int64(1024)
	require.NoError(t, c.Put(index.Item{
		Path:           "docs/a.txt",
		SizeBytes:      &size,
		DownloadStatus: index.StatusCurrent,
	}))
	require.NoError(t, c.Put(index.Item{
		Path:           "docs/b.txt",
		DownloadStatus: index.StatusNotDownloaded,
	}))

	items, err := c.All()
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "docs/a.txt", items[0].Path)
	assert.Equal(t, index.StatusCurrent, items[0].DownloadStatus)
	require.NotNil(t, items[0].SizeBytes)
	assert.Equal(t, size, *items[0].SizeBytes)
}

func TestCatalog_PutReplacesExisting(t *testing.T) {
	c := openTestCatalog(t)

	require.NoError(t, c.Put(index.Item{Path: "x.txt", DownloadStatus: index.StatusNotDownloaded}))
	require.NoError(t, c.Put(index.Item{Path: "x.txt", DownloadStatus: index.StatusCurrent}))

	items, err := c.All()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, index.StatusCurrent, items[0].DownloadStatus)
}

func TestCatalog_Delete(t *testing.T) {
	c := openTestCatalog(t)

	require.NoError(t, c.Put(index.Item{Path: "gone.txt"}))
	require.NoError(t, c.Delete("gone.txt"))
	require.NoError(t, c.Delete("never-existed.txt"))

	items, err := c.All()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCatalog_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, c.Put(index.Item{Path: "durable.txt", DownloadStatus: index.StatusCurrent}))
	require.NoError(t, c.Close())

	reopened, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	items, err := reopened.All()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "durable.txt", items[0].Path)
}
