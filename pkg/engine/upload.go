package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
)

// Upload pushes a local file into the container at cloudPath, blocking until
// the operation reaches its terminal state. onProgress, when non-nil,
// receives every stream event including the terminal one.
func (e *Engine) Upload(ctx context.Context, localPath, cloudPath string, onProgress func(ProgressEvent)) error {
	t, err := e.StartUpload(ctx, localPath, cloudPath)
	if err != nil {
		return err
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
		return ctx.Err()
	}
	if terminal.Kind == EventError {
		return terminal.Err
	}
	return nil
}

// StartUpload begins an asynchronous upload and returns its transfer handle.
//
// Completion has two independently sufficient signals: the coordinated write
// (plus push request) reporting success, or the index observing the uploaded
// flag set with the uploading flag clear. Backend ordering between file
// write completion and metadata flag propagation is unspecified, so whichever
// signal arrives first wins the one-shot latch; the other is absorbed.
func (e *Engine) StartUpload(ctx context.Context, localPath, cloudPath string) (*Transfer, error) {
	if localPath == "" {
		return nil, &Error{Kind: KindInvalidArgument, Path: localPath, Cause: errors.New("empty local path")}
	}
	if err := remote.ValidatePath(cloudPath); err != nil {
		return nil, Classify(cloudPath, AccessNeutral, err)
	}

	sub, err := e.view.Subscribe(index.Query{Path: cloudPath})
	if err != nil {
		return nil, Classify(cloudPath, AccessNeutral, err)
	}

	opCtx, cancel := context.WithCancel(ctx)
	t := &Transfer{
		token:     e.reg.Register(sub.Stop),
		path:      cloudPath,
		direction: "upload",
		eng:       e,
		events:    make(chan ProgressEvent, eventBuffer),
		cancel:    cancel,
		started:   time.Now(),
		attempt:   1,
	}

	go t.runUpload(opCtx, sub, localPath)
	return t, nil
}

func (t *Transfer) runUpload(ctx context.Context, sub index.Subscription, localPath string) {
	defer close(t.events)
	defer t.cancel()

	dog := newWatchdog(t.eng.opts.IdleInterval)
	defer dog.Stop()

	writeResults := make(chan error, 1)
	go func() {
		writeResults <- t.performWrite(ctx, localPath)
	}()

	for {
		select {
		case <-ctx.Done():
			t.abandon()
			return

		case batch, ok := <-sub.Updates():
			if !ok {
				t.finalize(errorEvent(Classify(t.path, AccessNeutral, index.ErrStopped)))
				return
			}
			item, present := index.ItemsForPath(batch, t.path)
			if !present {
				continue
			}
			if t.observe(item) || item.IsUploading {
				dog.Reset()
			}
			if item.IsUploaded && !item.IsUploading {
				t.finalize(doneEvent())
				return
			}

		case err := <-writeResults:
			if err == nil {
				t.finalize(doneEvent())
				return
			}
			if errors.Is(err, context.Canceled) {
				t.abandon()
				return
			}
			t.finalize(errorEvent(Classify(t.path, AccessWrite, err)))
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
			logger.Debug("upload of %q stalled, retrying (attempt %d/%d)", t.path, t.attempt, t.eng.opts.MaxAttempts)

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

			// Re-hint the push; before the coordinated write has committed
			// there is nothing to push yet, which is not an error.
			if err := t.eng.coord.RequestPush(ctx, t.path); err != nil && !errors.Is(err, remote.ErrNotFound) {
				t.finalize(errorEvent(Classify(t.path, AccessNeutral, err)))
				return
			}
			dog.Reset()
		}
	}
}

// performWrite copies the local source through a coordinated write and hints
// the backend to push the committed bytes. Runs off the operation loop so a
// blocking coordinated open never stalls notification handling.
func (t *Transfer) performWrite(ctx context.Context, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Classify(localPath, AccessRead, fmt.Errorf("local source %s: %w", localPath, remote.ErrNotFound))
		}
		return fmt.Errorf("failed to open local source: %w", err)
	}
	defer src.Close()

	dst, err := t.eng.coord.Open(ctx, t.path, remote.ModeWrite)
	if err != nil {
		return Classify(t.path, AccessWrite, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write item content: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to commit item content: %w", err)
	}

	return t.eng.coord.RequestPush(ctx, t.path)
}
