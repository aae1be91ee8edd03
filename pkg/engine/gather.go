package engine

import (
	"context"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
)

// Gather enumerates the container below root ("" for the whole container).
//
// Every raw entry is decoded independently: malformed records (missing path,
// wrong field types) land in the invalid side list with their position and a
// description, and never abort the listing. Partial success is the expected
// outcome for a live, possibly-malformed index - a listing only fails
// outright when the index itself cannot be queried.
func (e *Engine) Gather(ctx context.Context, root string) ([]index.Item, []index.InvalidEntry, error) {
	q, err := listingQuery(root)
	if err != nil {
		return nil, nil, err
	}

	entries, serr := e.view.Snapshot(ctx, q)
	if serr != nil {
		return nil, nil, Classify(root, AccessNeutral, serr)
	}

	items, invalid := index.DecodeAll(entries)
	return items, invalid, nil
}

// Listing is one live gather: the initial result plus a subscription that
// re-emits fresh (items, invalid) pairs on every index update until
// cancelled.
type Listing struct {
	token   Token
	eng     *Engine
	items   []index.Item
	invalid []index.InvalidEntry
}

// Items and Invalid return the initial gathering result.
func (l *Listing) Items() []index.Item {
	return l.items
}

func (l *Listing) Invalid() []index.InvalidEntry {
	return l.invalid
}

// Cancel stops the live stream. The underlying index subscription is
// released before Cancel returns; an already-dispatched update callback may
// still complete, but no new one starts afterwards. Idempotent.
func (l *Listing) Cancel() {
	if l.eng.reg.Claim(l.token) {
		l.eng.reg.Release(l.token)
	}
}

// GatherLive enumerates the container and stays subscribed: onUpdate is
// invoked (from a dedicated goroutine) with a fresh (items, invalid) pair on
// every index update until the returned listing is cancelled or ctx ends.
// The initial pair is available on the listing itself, not replayed through
// onUpdate.
func (e *Engine) GatherLive(ctx context.Context, root string, onUpdate func(items []index.Item, invalid []index.InvalidEntry)) (*Listing, error) {
	q, err := listingQuery(root)
	if err != nil {
		return nil, err
	}

	sub, serr := e.view.Subscribe(q)
	if serr != nil {
		return nil, Classify(root, AccessNeutral, serr)
	}

	l := &Listing{
		token: e.reg.Register(sub.Stop),
		eng:   e,
	}

	// The initial batch arrives before any update; consume it synchronously
	// so the caller gets a complete first result.
	select {
	case <-ctx.Done():
		l.Cancel()
		return nil, ctx.Err()
	case batch, ok := <-sub.Updates():
		if !ok {
			l.Cancel()
			return nil, Classify(root, AccessNeutral, index.ErrStopped)
		}
		l.items, l.invalid = index.DecodeAll(batch.Entries)
	}

	go func() {
		defer l.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-sub.Updates():
				if !ok {
					return
				}
				// Cancel releases the token before returning, so this check
				// bounds the grace window to at most one in-flight callback.
				if !l.eng.reg.Active(l.token) {
					return
				}
				items, invalid := index.DecodeAll(batch.Entries)
				onUpdate(items, invalid)
			}
		}
	}()

	return l, nil
}

func listingQuery(root string) (index.Query, error) {
	if root == "" {
		return index.Query{Recursive: true}, nil
	}
	if err := remote.ValidatePath(root); err != nil {
		return index.Query{}, Classify(root, AccessNeutral, err)
	}
	return index.Query{Path: root, Recursive: true}, nil
}
