package index

import (
	"context"
	"errors"
)

// Standard index errors.
//
// Implementations wrap these with context so callers can use errors.Is:
//
//	if errors.Is(err, index.ErrUnavailable) { ... }
var (
	// ErrUnavailable indicates the backing index cannot be reached
	// (container inaccessible, auth failure, backend offline).
	ErrUnavailable = errors.New("index unavailable")

	// ErrStopped indicates an operation was attempted on a stopped
	// subscription or a closed view.
	ErrStopped = errors.New("index subscription stopped")
)

// View is the engine-facing interface over the live metadata index.
//
// Snapshot may return stale or partial data; an empty result is never proof
// that a remote-only item does not exist. Subscribe starts a running query
// against the backing index - external resource usage that must be matched by
// exactly one Stop call on the returned subscription.
type View interface {
	// Snapshot returns the raw entries currently matching the query.
	Snapshot(ctx context.Context, q Query) ([]RawEntry, error)

	// Subscribe starts a live query. The returned subscription delivers an
	// initial batch (the gathering pass) followed by zero or more update
	// batches on its Updates channel.
	Subscribe(q Query) (Subscription, error)
}

// Subscription is one running live query against the index.
//
// Updates must be drained by the owner; implementations are free to drop
// batches for slow consumers rather than block the notification source.
// Stop is idempotent. After Stop returns, no further batch is delivered and
// the Updates channel is closed.
type Subscription interface {
	Updates() <-chan Batch
	Stop()
}

// ItemsForPath decodes the entries of a batch and returns the item matching
// path, if present and well-formed. Malformed entries are skipped: transfer
// operations only care about the one path they track, and a bad record for
// that path will surface through the coordinated open instead.
func ItemsForPath(batch Batch, path string) (Item, bool) {
	for _, raw := range batch.Entries {
		item, err := Decode(raw)
		if err != nil {
			continue
		}
		if item.Path == path {
			return item, true
		}
	}
	return Item{}, false
}
