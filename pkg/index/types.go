// Package index defines the metadata index view: a live, queryable catalog of
// the items known to a synchronized container.
//
// The index is advisory by design. Entries describe the last observed sync
// state of an item and may be stale the instant after observation. Consumers
// must never treat an index entry (or its absence) as authoritative proof that
// an item exists, is readable, or is missing - the coordinated-access
// primitive in pkg/remote is the only authoritative signal for readability.
package index

import "time"

// DownloadStatus describes how fresh the local copy of an item is.
type DownloadStatus string

const (
	// StatusNotDownloaded means the item is remote-only; no local bytes exist.
	StatusNotDownloaded DownloadStatus = "not_downloaded"

	// StatusDownloaded means a local copy exists but may be stale relative to
	// the latest known remote version.
	StatusDownloaded DownloadStatus = "downloaded"

	// StatusCurrent means the local copy matches the latest known remote
	// version. This is the only status that guarantees freshness.
	StatusCurrent DownloadStatus = "current"
)

// Item is one entry in the container catalog.
//
// Path is the only stable identity; every other field is a snapshot of the
// sync state at observation time. The transfer flags (IsDownloading,
// IsUploading, IsUploaded) are independent of DownloadStatus: an item can be
// current while a newer remote change is mid-download.
type Item struct {
	// Path is the item path relative to the container root. Unique key.
	Path string `mapstructure:"path"`

	// IsDirectory is true for directory entries.
	IsDirectory bool `mapstructure:"is_directory"`

	// SizeBytes is the item size. Nil for directories or when the index has
	// no size information yet.
	SizeBytes *int64 `mapstructure:"size_bytes"`

	// CreatedAt and ModifiedAt are the item timestamps as known to the index.
	// Nil when the index has not observed them.
	CreatedAt  *time.Time `mapstructure:"created_at"`
	ModifiedAt *time.Time `mapstructure:"modified_at"`

	// DownloadStatus reports local copy freshness.
	DownloadStatus DownloadStatus `mapstructure:"download_status"`

	// Transfer flags, independent of DownloadStatus.
	IsDownloading bool `mapstructure:"is_downloading"`
	IsUploading   bool `mapstructure:"is_uploading"`
	IsUploaded    bool `mapstructure:"is_uploaded"`

	// HasUnresolvedConflicts is true when the item has sync conflicts that
	// require resolution.
	HasUnresolvedConflicts bool `mapstructure:"has_unresolved_conflicts"`

	// Progress is the fractional transfer progress in [0, 100] when the
	// backend reports one. Nil when no transfer is in flight or the backend
	// gave no figure.
	Progress *float64 `mapstructure:"progress"`
}

// RawEntry is an undecoded catalog record as delivered by the backing index.
//
// Live indexes can contain malformed records (missing path, wrong field
// types). Decoding is therefore a separate per-entry step (see Decode) so
// that one bad record never poisons a whole listing.
type RawEntry map[string]any

// Batch is one delivery from a subscription.
//
// The first batch on every subscription has Initial set: it carries the
// result of the initial gathering pass. Subsequent batches are updates. No
// ordering is guaranteed beyond "initial before updates".
type Batch struct {
	Initial bool
	Entries []RawEntry
}

// Query selects the entries a snapshot or subscription covers.
//
// A zero Query matches the whole container. With Path set and Recursive
// false, only the entry with exactly that path matches; with Recursive true,
// the path is treated as a directory prefix.
type Query struct {
	Path      string
	Recursive bool
}

// Matches reports whether the entry path falls under the query.
func (q Query) Matches(path string) bool {
	if q.Path == "" {
		return true
	}
	if path == q.Path {
		return true
	}
	if q.Recursive {
		prefix := q.Path
		if prefix[len(prefix)-1] != '/' {
			prefix += "/"
		}
		return len(path) > len(prefix) && path[:len(prefix)] == prefix
	}
	return false
}
