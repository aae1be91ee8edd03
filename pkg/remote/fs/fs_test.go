package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
)

// recordingPublisher collects published item transitions.
type recordingPublisher struct {
	mu    sync.Mutex
	items []index.Item
}

func (p *recordingPublisher) SetItem(item index.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
}

func (p *recordingPublisher) last() (index.Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return index.Item{}, false
	}
	return p.items[len(p.items)-1], true
}

func newTestStore(t *testing.T) (*Store, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	store, err := New(t.TempDir(), pub)
	require.NoError(t, err)
	return store, pub
}

func writeItem(t *testing.T, s *Store, path, content string) {
	t.Helper()
	f, err := s.Open(context.Background(), path, remote.ModeWrite)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func readItem(t *testing.T, s *Store, path string) string {
	t.Helper()
	f, err := s.Open(context.Background(), path, remote.ModeRead)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

// ============================================================================
// Coordinated Open
// ============================================================================

func TestOpen_WriteThenRead(t *testing.T) {
	store, _ := newTestStore(t)

	writeItem(t, store, "note.txt", "hello")
	assert.Equal(t, "hello", readItem(t, store, "note.txt"))
}

func TestOpen_ReadMissingIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Open(context.Background(), "missing.txt", remote.ModeRead)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestOpen_WriteMissingParentIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Open(context.Background(), "no/such/dir/file.txt", remote.ModeWrite)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestOpen_WriteIsNotObservableUntilClose(t *testing.T) {
	store, _ := newTestStore(t)

	f, err := store.Open(context.Background(), "partial.txt", remote.ModeWrite)
	require.NoError(t, err)
	_, err = f.Write([]byte("half-written"))
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(store.Root(), "partial.txt"))
	assert.True(t, os.IsNotExist(statErr), "uncommitted writes must not appear under the final path")

	require.NoError(t, f.Close())
	assert.Equal(t, "half-written", readItem(t, store, "partial.txt"))
}

func TestOpen_WriteReplacesAtomically(t *testing.T) {
	store, _ := newTestStore(t)

	writeItem(t, store, "swap.txt", "old")
	writeItem(t, store, "swap.txt", "new")
	assert.Equal(t, "new", readItem(t, store, "swap.txt"))
}

func TestOpen_InvalidPathsRejected(t *testing.T) {
	store, _ := newTestStore(t)

	for _, path := range []string{"", "/etc/passwd", "../escape", "a/./b", "dir/"} {
		_, err := store.Open(context.Background(), path, remote.ModeRead)
		assert.ErrorIs(t, err, remote.ErrInvalidPath, "path %q", path)
	}
}

func TestOpen_WrongDirectionOnHandles(t *testing.T) {
	store, _ := newTestStore(t)
	writeItem(t, store, "x.txt", "data")

	r, err := store.Open(context.Background(), "x.txt", remote.ModeRead)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Write([]byte("nope"))
	assert.Error(t, err)

	w, err := store.Open(context.Background(), "x.txt", remote.ModeWrite)
	require.NoError(t, err)
	defer w.Close()
	_, err = w.Read(make([]byte, 4))
	assert.Error(t, err)
}

// ============================================================================
// Fetch / Push
// ============================================================================

func TestRequestFetch_LocalItemPublishedAsCurrent(t *testing.T) {
	store, pub := newTestStore(t)
	writeItem(t, store, "have.txt", "content")

	require.NoError(t, store.RequestFetch(context.Background(), "have.txt"))

	item, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, "have.txt", item.Path)
	assert.Equal(t, index.StatusCurrent, item.DownloadStatus)
	require.NotNil(t, item.SizeBytes)
	assert.Equal(t, int64(len("content")), *item.SizeBytes)
}

func TestRequestFetch_AbsentItemPublishesNothing(t *testing.T) {
	store, pub := newTestStore(t)

	require.NoError(t, store.RequestFetch(context.Background(), "nowhere.txt"))

	_, ok := pub.last()
	assert.False(t, ok, "an unfetchable item stays silent; the watchdog handles it")
}

func TestRequestPush_PublishesUploadedFlag(t *testing.T) {
	store, pub := newTestStore(t)
	writeItem(t, store, "out.txt", "payload")

	require.NoError(t, store.RequestPush(context.Background(), "out.txt"))

	item, ok := pub.last()
	require.True(t, ok)
	assert.True(t, item.IsUploaded)
	assert.Equal(t, index.StatusCurrent, item.DownloadStatus)
}

func TestRequestPush_MissingItemIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.RequestPush(context.Background(), "never-written.txt")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

// ============================================================================
// Structural Operations
// ============================================================================

func TestExists(t *testing.T) {
	store, _ := newTestStore(t)
	writeItem(t, store, "here.txt", "x")

	ok, err := store.Exists(context.Background(), "here.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	store, _ := newTestStore(t)
	writeItem(t, store, "doomed.txt", "x")

	require.NoError(t, store.Remove(context.Background(), "doomed.txt"))

	ok, err := store.Exists(context.Background(), "doomed.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, store.Remove(context.Background(), "doomed.txt"), remote.ErrNotFound)
}

func TestRename(t *testing.T) {
	store, _ := newTestStore(t)
	writeItem(t, store, "from.txt", "moving")

	require.NoError(t, store.Rename(context.Background(), "from.txt", "to.txt"))
	assert.Equal(t, "moving", readItem(t, store, "to.txt"))

	_, err := store.Open(context.Background(), "from.txt", remote.ModeRead)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	assert.ErrorIs(t, store.Rename(context.Background(), "from.txt", "elsewhere.txt"), remote.ErrNotFound)
}

func TestCopy(t *testing.T) {
	store, _ := newTestStore(t)
	writeItem(t, store, "orig.txt", strings.Repeat("data", 256))

	require.NoError(t, store.Copy(context.Background(), "orig.txt", "dup.txt"))
	assert.Equal(t, readItem(t, store, "orig.txt"), readItem(t, store, "dup.txt"))

	assert.ErrorIs(t, store.Copy(context.Background(), "ghost.txt", "dup2.txt"), remote.ErrNotFound)
}

func TestContextCancellationRejected(t *testing.T) {
	store, _ := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Open(ctx, "x.txt", remote.ModeRead)
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, store.RequestFetch(ctx, "x.txt"), context.Canceled)
}
