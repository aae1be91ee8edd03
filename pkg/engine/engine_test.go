package engine

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/index/memory"
	"github.com/marmos91/dittosync/pkg/remote"
	"github.com/marmos91/dittosync/pkg/retry"
)

// ============================================================================
// Test Fixtures
// ============================================================================

// fastOptions keeps watchdog-driven tests quick.
func fastOptions() Options {
	return Options{
		IdleInterval: 25 * time.Millisecond,
		MaxAttempts:  2,
		Backoff: retry.Backoff{
			Initial:    time.Millisecond,
			Max:        2 * time.Millisecond,
			Multiplier: 1.0,
		},
	}
}

// memFile is an in-memory remote.File.
type memFile struct {
	bytes.Buffer
}

func (f *memFile) Close() error {
	return nil
}

// fakeCoordinator is a scriptable remote.Coordinator. Unscripted methods
// succeed: Open returns an empty in-memory file, fetch and push requests are
// recorded and acknowledged.
type fakeCoordinator struct {
	mu      sync.Mutex
	fetches []string
	pushes  []string
	removes []string

	openFn   func(path string, mode remote.Mode) (remote.File, error)
	fetchFn  func(path string) error
	pushFn   func(path string) error
	existsFn func(path string) (bool, error)
}

func (c *fakeCoordinator) Open(ctx context.Context, path string, mode remote.Mode) (remote.File, error) {
	if c.openFn != nil {
		return c.openFn(path, mode)
	}
	return &memFile{}, nil
}

func (c *fakeCoordinator) RequestFetch(ctx context.Context, path string) error {
	c.mu.Lock()
	c.fetches = append(c.fetches, path)
	c.mu.Unlock()

	if c.fetchFn != nil {
		return c.fetchFn(path)
	}
	return nil
}

func (c *fakeCoordinator) RequestPush(ctx context.Context, path string) error {
	c.mu.Lock()
	c.pushes = append(c.pushes, path)
	c.mu.Unlock()

	if c.pushFn != nil {
		return c.pushFn(path)
	}
	return nil
}

func (c *fakeCoordinator) Exists(ctx context.Context, path string) (bool, error) {
	if c.existsFn != nil {
		return c.existsFn(path)
	}
	return false, nil
}

func (c *fakeCoordinator) Remove(ctx context.Context, path string) error {
	c.mu.Lock()
	c.removes = append(c.removes, path)
	c.mu.Unlock()
	return nil
}

func (c *fakeCoordinator) Rename(ctx context.Context, from, to string) error {
	return nil
}

func (c *fakeCoordinator) Copy(ctx context.Context, from, to string) error {
	return nil
}

func (c *fakeCoordinator) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fetches)
}

// silentView is an index whose live queries never deliver anything, not
// even the initial gathering batch.
type silentView struct{}

func (silentView) Snapshot(ctx context.Context, q index.Query) ([]index.RawEntry, error) {
	return nil, nil
}

func (silentView) Subscribe(q index.Query) (index.Subscription, error) {
	return &silentSubscription{ch: make(chan index.Batch)}, nil
}

type silentSubscription struct {
	ch   chan index.Batch
	once sync.Once
}

func (s *silentSubscription) Updates() <-chan index.Batch {
	return s.ch
}

func (s *silentSubscription) Stop() {
	s.once.Do(func() { close(s.ch) })
}

// newTestEngine wires an engine onto a fresh memory index and fake
// coordinator with fast timings.
func newTestEngine() (*Engine, *memory.Index, *fakeCoordinator) {
	idx := memory.New()
	coord := &fakeCoordinator{}
	return New(idx, coord, fastOptions()), idx, coord
}

func currentItem(path string) index.Item {
	return index.Item{Path: path, DownloadStatus: index.StatusCurrent}
}

func downloadingItem(path string, pct float64) index.Item {
	return index.Item{
		Path:           path,
		DownloadStatus: index.StatusNotDownloaded,
		IsDownloading:  true,
		Progress:       &pct,
	}
}

// collectEvents drains a transfer's stream and splits it into progress
// percentages and terminal events.
func collectEvents(t *Transfer) (progress []float64, terminals []ProgressEvent) {
	for ev := range t.Events() {
		switch ev.Kind {
		case EventProgress:
			progress = append(progress, ev.Percent)
		default:
			terminals = append(terminals, ev)
		}
	}
	return progress, terminals
}
