package engine

import (
	"time"

	"github.com/marmos91/dittosync/pkg/index"
)

// eventBuffer is the event stream capacity. Two slots stay reserved for the
// final progress report and the terminal event, so a consumer that lags on
// progress events can never block terminal delivery.
const eventBuffer = 64

// Transfer is one in-flight download or upload.
//
// A transfer is driven by a single owning goroutine; Events and Cancel are
// the only methods safe to use from outside it. The stream obeys the
// ProgressEvent contract: monotonic progress, exactly one terminal event,
// closed stream afterwards - or a terminal-free close after cancellation.
type Transfer struct {
	token     Token
	path      string
	direction string
	eng       *Engine
	events    chan ProgressEvent
	cancel    func()
	started   time.Time

	// Owned by the operation goroutine.
	lastProgress float64
	hasProgress  bool
	attempt      int
	lastStatus   index.DownloadStatus
}

// Token returns the operation token.
func (t *Transfer) Token() Token {
	return t.token
}

// Path returns the container path the transfer targets.
func (t *Transfer) Path() string {
	return t.path
}

// Events returns the transfer's event stream. The caller must drain it until
// it closes.
func (t *Transfer) Events() <-chan ProgressEvent {
	return t.events
}

// Cancel aborts the transfer. The index subscription is released before
// Cancel returns; no terminal event is delivered afterwards. Cancelling a
// finished transfer is a no-op.
func (t *Transfer) Cancel() {
	if t.eng.reg.Claim(t.token) {
		t.eng.reg.Release(t.token)
	}
	t.cancel()
}

// emitProgress forwards a progress percentage, enforcing monotonicity:
// a value not above the last delivered one is dropped, not reported.
// Returns whether the value counted as forward progress.
func (t *Transfer) emitProgress(pct float64) bool {
	if pct < 0 {
		return false
	}
	if pct > 100 {
		pct = 100
	}
	if t.hasProgress && pct <= t.lastProgress {
		return false
	}
	t.lastProgress = pct
	t.hasProgress = true

	if len(t.events) < cap(t.events)-2 {
		t.events <- ProgressEvent{Kind: EventProgress, Percent: pct}
	}
	return true
}

// finalize attempts to deliver the terminal event. Only the first
// finalization per token proceeds: the one-shot latch absorbs every racing
// or late duplicate silently. The subscription is released before the result
// is delivered, so no notification can fire once the caller has seen the
// terminal event.
func (t *Transfer) finalize(ev ProgressEvent) bool {
	if !t.eng.reg.Claim(t.token) {
		return false
	}
	t.eng.reg.Release(t.token)

	if ev.Kind == EventDone && t.lastProgress < 100 {
		t.lastProgress = 100
		t.hasProgress = true
		t.events <- ProgressEvent{Kind: EventProgress, Percent: 100}
	}
	t.events <- ev

	outcome := "done"
	if ev.Kind == EventError {
		outcome = ev.Err.Kind.String()
	}
	t.eng.opts.Metrics.ObserveTransfer(t.direction, outcome, time.Since(t.started))
	return true
}

// abandon tears the operation down without a terminal event (cancellation
// path). Safe to call when the latch was already claimed.
func (t *Transfer) abandon() {
	if t.eng.reg.Claim(t.token) {
		t.eng.reg.Release(t.token)
	}
}

// observe folds an index item into the transfer state: forwards progress,
// tracks status transitions, and reports whether any forward activity was
// seen (which rearms the watchdog).
func (t *Transfer) observe(item index.Item) bool {
	activity := false
	if item.Progress != nil && t.emitProgress(*item.Progress) {
		activity = true
	}
	if item.DownloadStatus != t.lastStatus {
		t.lastStatus = item.DownloadStatus
		activity = true
	}
	return activity
}

func errorEvent(err *Error) ProgressEvent {
	return ProgressEvent{Kind: EventError, Err: err}
}

func doneEvent() ProgressEvent {
	return ProgressEvent{Kind: EventDone}
}
