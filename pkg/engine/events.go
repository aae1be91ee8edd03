package engine

// ProgressEventKind tags the variants of a transfer's event stream.
type ProgressEventKind int

const (
	// EventProgress carries a fractional completion percentage.
	EventProgress ProgressEventKind = iota + 1

	// EventDone is the success terminal. At most one terminal event is ever
	// delivered per operation, after which the stream closes.
	EventDone

	// EventError is the failure terminal, carrying the classified error.
	EventError
)

// ProgressEvent is one element of a transfer's event stream.
//
// Stream contract: progress percentages are monotonically non-decreasing
// (out-of-order lower values are dropped at the source, never delivered);
// exactly one Done or Error event terminates the stream; no event follows a
// terminal; a cancelled operation closes the stream with no terminal at all.
type ProgressEvent struct {
	Kind    ProgressEventKind
	Percent float64 // set for EventProgress
	Err     *Error  // set for EventError
}

// Terminal reports whether the event ends the stream.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
