// Package memory implements an in-process live metadata index.
//
// The memory index is the notification hub of the engine: fetchers and
// uploaders publish item state transitions into it, and every transfer or
// listing operation observes them through per-operation subscriptions. It is
// also the index used by the test suites, where raw (possibly malformed)
// entries can be injected directly.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/index"
)

// Persister is the write-through hook for durable catalogs (see
// pkg/index/badger). Persistence failures are logged, never propagated: the
// live index must keep serving even when the catalog disk is unhappy.
type Persister interface {
	Put(item index.Item) error
	Delete(path string) error
}

// subscriberBuffer is the per-subscription channel capacity. Batches beyond
// it are dropped rather than blocking the publisher: the index is a producer
// the engine must never stall.
const subscriberBuffer = 64

// Index is an in-memory implementation of index.View.
//
// Thread safety: all methods are safe for concurrent use. Publish never
// blocks on slow subscribers.
type Index struct {
	persist Persister

	mu      sync.RWMutex
	entries map[string]index.RawEntry
	subs    map[*subscription]struct{}
	closed  bool
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		entries: make(map[string]index.RawEntry),
		subs:    make(map[*subscription]struct{}),
	}
}

// NewPersistent creates an index that writes every item transition through to
// the given catalog and warms itself from its current contents.
func NewPersistent(p Persister, seed []index.Item) *Index {
	ix := New()
	for _, item := range seed {
		ix.entries[item.Path] = encodeItem(item)
	}
	ix.persist = p
	return ix
}

// Snapshot returns the raw entries matching the query, ordered by path.
// Entries without a well-formed path field are always included (position at
// the end, insertion order not preserved): filtering them out here would hide
// them from listings, which must report them as invalid instead.
func (ix *Index) Snapshot(ctx context.Context, q index.Query) ([]index.RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return nil, index.ErrStopped
	}

	return ix.collect(q), nil
}

// Subscribe starts a live query. The initial batch is delivered before
// Subscribe returns, so a subscriber that drains the channel always observes
// "initial before updates".
func (ix *Index) Subscribe(q index.Query) (index.Subscription, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return nil, index.ErrStopped
	}

	sub := &subscription{
		ix:      ix,
		query:   q,
		updates: make(chan index.Batch, subscriberBuffer),
	}
	ix.subs[sub] = struct{}{}

	sub.updates <- index.Batch{Initial: true, Entries: ix.collect(q)}

	return sub, nil
}

// SetEntry inserts or replaces a raw entry keyed by the given path and
// notifies matching subscribers. The path key is independent of the entry's
// own path field so tests can register malformed records.
func (ix *Index) SetEntry(path string, raw index.RawEntry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return
	}

	ix.entries[path] = raw
	ix.notify(path)

	if ix.persist != nil {
		if item, err := index.Decode(raw); err == nil {
			if err := ix.persist.Put(item); err != nil {
				logger.Warn("failed to persist catalog entry %q: %v", path, err)
			}
		}
	}
}

// SetItem encodes an item and publishes it under its path.
func (ix *Index) SetItem(item index.Item) {
	ix.SetEntry(item.Path, encodeItem(item))
}

// Remove deletes the entry for path and notifies matching subscribers.
func (ix *Index) Remove(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return
	}

	delete(ix.entries, path)
	ix.notify(path)

	if ix.persist != nil {
		if err := ix.persist.Delete(path); err != nil {
			logger.Warn("failed to delete catalog entry %q: %v", path, err)
		}
	}
}

// Get returns the decoded item for path, if present and well-formed.
func (ix *Index) Get(path string) (index.Item, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	raw, ok := ix.entries[path]
	if !ok {
		return index.Item{}, false
	}
	item, err := index.Decode(raw)
	if err != nil {
		return index.Item{}, false
	}
	return item, true
}

// Close stops every live subscription and rejects further use.
func (ix *Index) Close() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return
	}
	ix.closed = true

	for sub := range ix.subs {
		sub.stopped = true
		close(sub.updates)
		delete(ix.subs, sub)
	}
	ix.entries = nil
}

// collect gathers matching entries. Caller must hold at least a read lock.
func (ix *Index) collect(q index.Query) []index.RawEntry {
	paths := make([]string, 0, len(ix.entries))
	for path := range ix.entries {
		if q.Matches(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	entries := make([]index.RawEntry, 0, len(paths))
	for _, path := range paths {
		entries = append(entries, ix.entries[path])
	}
	return entries
}

// notify publishes a fresh batch to every subscription whose query covers
// path. Caller must hold the write lock.
func (ix *Index) notify(path string) {
	for sub := range ix.subs {
		if !sub.query.Matches(path) {
			continue
		}
		batch := index.Batch{Entries: ix.collect(sub.query)}
		select {
		case sub.updates <- batch:
		default:
			// Drop for slow consumer.
		}
	}
}

// subscription is one live query over the memory index.
type subscription struct {
	ix      *Index
	query   index.Query
	updates chan index.Batch
	stopped bool
}

func (s *subscription) Updates() <-chan index.Batch {
	return s.updates
}

// Stop detaches the subscription and closes its channel. Idempotent; safe to
// call while the index is publishing.
func (s *subscription) Stop() {
	s.ix.mu.Lock()
	defer s.ix.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	delete(s.ix.subs, s)
	close(s.updates)
}

// encodeItem converts an item into the raw record shape the index stores.
func encodeItem(item index.Item) index.RawEntry {
	raw := index.RawEntry{
		"path":                     item.Path,
		"is_directory":             item.IsDirectory,
		"download_status":          string(item.DownloadStatus),
		"is_downloading":           item.IsDownloading,
		"is_uploading":             item.IsUploading,
		"is_uploaded":              item.IsUploaded,
		"has_unresolved_conflicts": item.HasUnresolvedConflicts,
	}
	if item.SizeBytes != nil {
		raw["size_bytes"] = *item.SizeBytes
	}
	if item.CreatedAt != nil {
		raw["created_at"] = *item.CreatedAt
	}
	if item.ModifiedAt != nil {
		raw["modified_at"] = *item.ModifiedAt
	}
	if item.Progress != nil {
		raw["progress"] = *item.Progress
	}
	return raw
}
