// Package remote defines the coordinated-access primitive: the boundary the
// sync engine uses to read, write and mutate container items with exclusive,
// conflict-safe access.
//
// The engine treats this boundary as authoritative. Where the metadata index
// (pkg/index) only describes what was last observed, a coordinated open
// either yields real bytes or a real, classifiable failure.
package remote

import (
	"context"
	"io"
)

// Mode selects the access direction of a coordinated open.
type Mode int

const (
	// ModeRead opens an item for reading.
	ModeRead Mode = iota

	// ModeWrite opens an item for writing. Implementations must make the
	// write conflict-safe: partial writes are never observable under the
	// final path.
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// File is an open coordinated handle. Read handles implement Read; write
// handles implement Write. Close commits a write handle and releases the
// coordination in both modes.
type File interface {
	io.Reader
	io.Writer
	io.Closer
}

// Coordinator is the coordinated-access primitive.
//
// All methods are safe for concurrent use and may block for arbitrary
// durations; callers must not hold engine-wide locks across them.
type Coordinator interface {
	// Open performs a coordinated open of path for the given mode.
	// A missing item yields an error wrapping ErrNotFound, distinguishable
	// from every other cause.
	Open(ctx context.Context, path string, mode Mode) (File, error)

	// RequestFetch asynchronously hints the backend to begin materializing a
	// remote-only item locally. Completion and progress surface through the
	// metadata index, not through this call.
	RequestFetch(ctx context.Context, path string) error

	// RequestPush asynchronously hints the backend to begin pushing local
	// bytes for path to the remote. Completion surfaces through the metadata
	// index upload flags.
	RequestPush(ctx context.Context, path string) error

	// Exists reports local availability of path. It says nothing about
	// remote existence: false does not mean the item cannot be fetched.
	Exists(ctx context.Context, path string) (bool, error)

	// Remove, Rename and Copy are the coordinated structural mutations.
	Remove(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Copy(ctx context.Context, from, to string) error
}
