package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelete_UnknownItemIsNotFound(t *testing.T) {
	eng, idx, coord := newTestEngine()
	defer idx.Close()

	err := eng.Delete(context.Background(), "never/existed.txt")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Empty(t, coord.removes, "nothing must be mutated for an unknown item")
}

func TestDelete_KnownItemGoesThroughCoordinator(t *testing.T) {
	eng, idx, coord := newTestEngine()
	defer idx.Close()

	idx.SetItem(currentItem("docs/doomed.txt"))

	require.NoError(t, eng.Delete(context.Background(), "docs/doomed.txt"))
	assert.Equal(t, []string{"docs/doomed.txt"}, coord.removes)
}

func TestMove_UnknownSourceIsNotFound(t *testing.T) {
	eng, idx, _ := newTestEngine()
	defer idx.Close()

	err := eng.Move(context.Background(), "missing.txt", "elsewhere.txt")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestMove_ValidatesBothPaths(t *testing.T) {
	eng, idx, _ := newTestEngine()
	defer idx.Close()

	idx.SetItem(currentItem("src.txt"))

	err := eng.Move(context.Background(), "src.txt", "/absolute")
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}

func TestCopy_KnownSourceSucceeds(t *testing.T) {
	eng, idx, _ := newTestEngine()
	defer idx.Close()

	idx.SetItem(currentItem("src.txt"))

	assert.NoError(t, eng.Copy(context.Background(), "src.txt", "dst.txt"))
}

// Exists speaks about local bytes, not container knowledge: an item the
// index lists can still be locally unavailable.
func TestExists_IndependentOfIndexKnowledge(t *testing.T) {
	eng, idx, coord := newTestEngine()
	defer idx.Close()

	idx.SetItem(currentItem("remote-only.txt"))
	coord.existsFn = func(path string) (bool, error) {
		return false, nil
	}

	ok, err := eng.Exists(context.Background(), "remote-only.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	items, _, err := eng.Gather(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, items, 1, "the listing still reports the item")
}

func TestExists_FalseDoesNotPreventDownload(t *testing.T) {
	eng, idx, coord := newTestEngine()
	defer idx.Close()

	// The item is remote-only: no local bytes yet, so Exists says no. A
	// fetch request brings it current, so a download right after must still
	// succeed.
	coord.existsFn = func(path string) (bool, error) {
		return false, nil
	}
	coord.fetchFn = func(path string) error {
		idx.SetItem(currentItem(path))
		return nil
	}

	ok, err := eng.Exists(context.Background(), "remote-only.txt")
	require.NoError(t, err)
	require.False(t, ok)

	available, err := eng.Download(context.Background(), "remote-only.txt", nil)
	require.NoError(t, err)
	assert.True(t, available, "local absence at observation time must not doom the fetch")
}

func TestExists_InvalidPathRejected(t *testing.T) {
	eng, idx, _ := newTestEngine()
	defer idx.Close()

	_, err := eng.Exists(context.Background(), "../outside")
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}
