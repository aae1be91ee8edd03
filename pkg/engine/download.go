package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
)

// Download fetches a container item until it is locally readable, blocking
// until the operation reaches its terminal state. onProgress, when non-nil,
// receives every stream event including the terminal one.
//
// The returned bool reports local availability: true exactly when a
// coordinated open of the item succeeded. Metadata alone never short-
// circuits the result - a placeholder index entry can exist long before any
// local bytes do, so the open attempt is the authoritative signal.
func (e *Engine) Download(ctx context.Context, path string, onProgress func(ProgressEvent)) (bool, error) {
	t, err := e.StartDownload(ctx, path)
	if err != nil {
		return false, err
	}

	var terminal *ProgressEvent
	for ev := range t.Events() {
		if onProgress != nil {
			onProgress(ev)
		}
		if ev.Terminal() {
			ev := ev
			terminal = &ev
		}
	}

	if terminal == nil {
		// Cancelled: the stream closed without a terminal event.
		return false, ctx.Err()
	}
	if terminal.Kind == EventError {
		return false, terminal.Err
	}
	return true, nil
}

// StartDownload begins an asynchronous download and returns its transfer
// handle. The handle's event stream delivers progress and exactly one
// terminal event unless the transfer is cancelled first.
func (e *Engine) StartDownload(ctx context.Context, path string) (*Transfer, error) {
	if err := remote.ValidatePath(path); err != nil {
		return nil, Classify(path, AccessNeutral, err)
	}

	sub, err := e.view.Subscribe(index.Query{Path: path})
	if err != nil {
		return nil, Classify(path, AccessNeutral, err)
	}

	opCtx, cancel := context.WithCancel(ctx)
	t := &Transfer{
		token:     e.reg.Register(sub.Stop),
		path:      path,
		direction: "download",
		eng:       e,
		events:    make(chan ProgressEvent, eventBuffer),
		cancel:    cancel,
		started:   time.Now(),
		attempt:   1,
	}

	go t.runDownload(opCtx, sub)
	return t, nil
}

// runDownload drives the download state machine. It is the only goroutine
// that touches the transfer state and the only one that closes the event
// stream; coordinated opens run on side goroutines so an index notification
// is never blocked behind I/O.
func (t *Transfer) runDownload(ctx context.Context, sub index.Subscription) {
	defer close(t.events)
	defer t.cancel()

	dog := newWatchdog(t.eng.opts.IdleInterval)
	defer dog.Stop()

	openResults := make(chan error, 1)
	openInFlight := false

	tryOpen := func() {
		if openInFlight {
			return
		}
		openInFlight = true
		go func() {
			f, err := t.eng.coord.Open(ctx, t.path, remote.ModeRead)
			if err == nil {
				f.Close()
			}
			openResults <- err
		}()
	}

	// handleItem folds one observed item state into the operation: progress
	// and status transitions rearm the watchdog, and a current status
	// triggers the authoritative open attempt.
	handleItem := func(item index.Item, present bool) {
		if !present {
			return
		}
		if t.observe(item) {
			dog.Reset()
		}
		if item.DownloadStatus == index.StatusCurrent {
			tryOpen()
		}
	}

	// The first batch is the initial gathering pass: an item already marked
	// current goes straight to the open attempt; anything else (stale,
	// remote-only, or entirely unknown to the index) gets a fetch request.
	// Absence from the index is not proof of remote absence, so the fetch is
	// issued regardless. The wait for that batch runs inside the main select
	// so the watchdog covers an index that never finishes gathering.
	awaitingInitial := true

	for {
		select {
		case <-ctx.Done():
			t.abandon()
			return

		case batch, ok := <-sub.Updates():
			if !ok {
				// Torn down underneath us: either our own release after a
				// claimed terminal, or the index shutting down. The latch
				// sorts the two out.
				t.finalize(errorEvent(Classify(t.path, AccessNeutral, index.ErrStopped)))
				return
			}
			item, present := index.ItemsForPath(batch, t.path)
			handleItem(item, present)
			if awaitingInitial {
				awaitingInitial = false
				if !present || item.DownloadStatus != index.StatusCurrent {
					if err := t.eng.coord.RequestFetch(ctx, t.path); err != nil {
						t.finalize(errorEvent(Classify(t.path, AccessNeutral, err)))
						return
					}
				}
			}

		case err := <-openResults:
			openInFlight = false
			if err == nil {
				t.finalize(doneEvent())
				return
			}
			if errors.Is(err, context.Canceled) {
				t.abandon()
				return
			}
			// A not-found open after the index reported current is genuine
			// absence, not a sync artifact. Everything else is native.
			t.finalize(errorEvent(Classify(t.path, AccessRead, err)))
			return

		case <-dog.C():
			t.eng.opts.Metrics.ObserveWatchdogFire()
			if t.attempt >= t.eng.opts.MaxAttempts {
				t.finalize(errorEvent(&Error{
					Kind:  KindTimeout,
					Path:  t.path,
					Cause: fmt.Errorf("no progress within %s after %d attempts", t.eng.opts.IdleInterval, t.attempt),
				}))
				return
			}
			t.attempt++
			t.eng.opts.Metrics.ObserveRetry()
			logger.Debug("download of %q stalled, retrying (attempt %d/%d)", t.path, t.attempt, t.eng.opts.MaxAttempts)

			select {
			case <-ctx.Done():
				t.abandon()
				return
			case <-time.After(t.eng.opts.Backoff.Delay(t.attempt - 1)):
			}

			newSub, err := t.eng.view.Subscribe(index.Query{Path: t.path})
			if err != nil {
				t.finalize(errorEvent(Classify(t.path, AccessNeutral, err)))
				return
			}
			t.eng.reg.Swap(t.token, newSub.Stop)
			sub = newSub

			if err := t.eng.coord.RequestFetch(ctx, t.path); err != nil {
				t.finalize(errorEvent(Classify(t.path, AccessNeutral, err)))
				return
			}
			dog.Reset()
		}
	}
}
