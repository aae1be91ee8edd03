package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosync/pkg/index"
)

func item(path string) index.Item {
	return index.Item{Path: path, DownloadStatus: index.StatusCurrent}
}

func TestSnapshot_FiltersByQuery(t *testing.T) {
	ix := New()
	defer ix.Close()

	ix.SetItem(item("docs/a.txt"))
	ix.SetItem(item("docs/b.txt"))
	ix.SetItem(item("photos/c.jpg"))

	entries, err := ix.Snapshot(context.Background(), index.Query{Path: "docs", Recursive: true})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSnapshot_OrderedByPath(t *testing.T) {
	ix := New()
	defer ix.Close()

	ix.SetItem(item("z.txt"))
	ix.SetItem(item("a.txt"))
	ix.SetItem(item("m.txt"))

	entries, err := ix.Snapshot(context.Background(), index.Query{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a.txt", entries[0]["path"])
	assert.Equal(t, "m.txt", entries[1]["path"])
	assert.Equal(t, "z.txt", entries[2]["path"])
}

func TestSubscribe_InitialBatchBeforeUpdates(t *testing.T) {
	ix := New()
	defer ix.Close()

	ix.SetItem(item("pre.txt"))

	sub, err := ix.Subscribe(index.Query{})
	require.NoError(t, err)
	defer sub.Stop()

	ix.SetItem(item("post.txt"))

	first := <-sub.Updates()
	assert.True(t, first.Initial)
	assert.Len(t, first.Entries, 1)

	second := <-sub.Updates()
	assert.False(t, second.Initial)
	assert.Len(t, second.Entries, 2)
}

func TestSubscribe_OnlyMatchingUpdatesDelivered(t *testing.T) {
	ix := New()
	defer ix.Close()

	sub, err := ix.Subscribe(index.Query{Path: "docs/tracked.txt"})
	require.NoError(t, err)
	defer sub.Stop()

	<-sub.Updates() // initial

	ix.SetItem(item("unrelated.txt"))
	ix.SetItem(item("docs/tracked.txt"))

	batch := <-sub.Updates()
	require.Len(t, batch.Entries, 1)
	assert.Equal(t, "docs/tracked.txt", batch.Entries[0]["path"])
}

func TestSubscription_StopClosesChannel(t *testing.T) {
	ix := New()
	defer ix.Close()

	sub, err := ix.Subscribe(index.Query{})
	require.NoError(t, err)

	sub.Stop()
	sub.Stop() // idempotent

	for range sub.Updates() {
	}
	// Publishing after stop must not panic on the closed channel.
	ix.SetItem(item("late.txt"))
}

func TestClose_StopsSubscriptionsAndRejectsUse(t *testing.T) {
	ix := New()

	sub, err := ix.Subscribe(index.Query{})
	require.NoError(t, err)

	ix.Close()
	ix.Close() // idempotent

	for range sub.Updates() {
	}

	_, err = ix.Snapshot(context.Background(), index.Query{})
	assert.ErrorIs(t, err, index.ErrStopped)

	_, err = ix.Subscribe(index.Query{})
	assert.ErrorIs(t, err, index.ErrStopped)
}

func TestSetEntry_AllowsMalformedRecords(t *testing.T) {
	ix := New()
	defer ix.Close()

	ix.SetEntry("broken", index.RawEntry{"download_status": "current"})

	entries, err := ix.Snapshot(context.Background(), index.Query{})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "malformed records stay visible for listings to report")

	_, ok := ix.Get("broken")
	assert.False(t, ok)
}

func TestGet_RoundTrip(t *testing.T) {
	ix := New()
	defer ix.Close()

	size := int64(512)
	now := time.Now().Truncate(time.Second)
	ix.SetItem(index.Item{
		Path:           "full.txt",
		SizeBytes:      &size,
		ModifiedAt:     &now,
		DownloadStatus: index.StatusDownloaded,
		IsUploaded:     true,
	})

	got, ok := ix.Get("full.txt")
	require.True(t, ok)
	assert.Equal(t, index.StatusDownloaded, got.DownloadStatus)
	require.NotNil(t, got.SizeBytes)
	assert.Equal(t, size, *got.SizeBytes)
	assert.True(t, got.IsUploaded)
}

// ============================================================================
// Persistence
// ============================================================================

type recordingPersister struct {
	puts    []string
	deletes []string
	fail    bool
}

func (p *recordingPersister) Put(item index.Item) error {
	if p.fail {
		return errors.New("disk full")
	}
	p.puts = append(p.puts, item.Path)
	return nil
}

func (p *recordingPersister) Delete(path string) error {
	if p.fail {
		return errors.New("disk full")
	}
	p.deletes = append(p.deletes, path)
	return nil
}

func TestPersistent_WritesThrough(t *testing.T) {
	p := &recordingPersister{}
	ix := NewPersistent(p, nil)
	defer ix.Close()

	ix.SetItem(item("a.txt"))
	ix.Remove("a.txt")

	assert.Equal(t, []string{"a.txt"}, p.puts)
	assert.Equal(t, []string{"a.txt"}, p.deletes)
}

func TestPersistent_SeededFromCatalog(t *testing.T) {
	ix := NewPersistent(&recordingPersister{}, []index.Item{item("warm.txt")})
	defer ix.Close()

	got, ok := ix.Get("warm.txt")
	require.True(t, ok)
	assert.Equal(t, "warm.txt", got.Path)
}

func TestPersistent_CatalogFailureDoesNotBlockServing(t *testing.T) {
	ix := NewPersistent(&recordingPersister{fail: true}, nil)
	defer ix.Close()

	ix.SetItem(item("survives.txt"))

	_, ok := ix.Get("survives.txt")
	assert.True(t, ok, "the live index keeps serving when the catalog fails")
}
