package engine

import "time"

// watchdog detects stalled transfers by absence of forward progress, not by
// absence of time alone: every forwarded progress event and every observed
// status transition rearms it.
//
// Not safe for concurrent use: a watchdog belongs to the single goroutine
// that runs its transfer operation, which both selects on C() and calls
// Reset.
type watchdog struct {
	timer    *time.Timer
	interval time.Duration
}

func newWatchdog(interval time.Duration) *watchdog {
	return &watchdog{
		timer:    time.NewTimer(interval),
		interval: interval,
	}
}

// C fires when the idle interval elapses without a Reset.
func (w *watchdog) C() <-chan time.Time {
	return w.timer.C
}

// Reset rearms the watchdog after observed activity.
func (w *watchdog) Reset() {
	if !w.timer.Stop() {
		// Drain a fire that raced the reset so the next wait starts clean.
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(w.interval)
}

// Stop disarms the watchdog for good.
func (w *watchdog) Stop() {
	w.timer.Stop()
}
