package remote

import "errors"

// Standard coordinator errors.
//
// These are the only failure shapes the engine inspects; implementations wrap
// them with context so callers can use errors.Is:
//
//	f, err := coord.Open(ctx, path, remote.ModeRead)
//	if errors.Is(err, remote.ErrNotFound) { ... }
var (
	// ErrNotFound indicates the item genuinely does not exist at the
	// coordinated layer. This is the authoritative "no such file" - not a
	// sync artifact like a placeholder entry without local bytes.
	ErrNotFound = errors.New("item not found")

	// ErrUnavailable indicates the container backend is inaccessible
	// (authentication, permission or connectivity failure). Transient at
	// the deployment level but never retried inside a single operation.
	ErrUnavailable = errors.New("container unavailable")

	// ErrInvalidPath indicates a malformed container path (empty, absolute,
	// or escaping the container root).
	ErrInvalidPath = errors.New("invalid path")
)
