// Package engine implements the sync coordination engine: the component that
// drives downloads, uploads, listings and structural mutations of a
// remotely-synchronized container to a single terminal outcome despite
// multiple asynchronous notification sources.
//
// The engine consumes two collaborators: the live metadata index (pkg/index),
// which is advisory, and the coordinated-access primitive (pkg/remote), which
// is authoritative. Every operation registers exactly one index subscription,
// owns exactly one completion latch, and delivers exactly one terminal
// result.
package engine

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
)

// Kind is the stable failure taxonomy every engine operation resolves into.
//
// Classification happens exactly once, at the point a raw failure first
// crosses into the engine; callers never see backend failure shapes.
type Kind int

const (
	// KindNotFound: item absent, context-neutral (listing, resolution).
	KindNotFound Kind = iota + 1

	// KindNotFoundOnRead: a coordinated open for read found no such file.
	KindNotFoundOnRead

	// KindNotFoundOnWrite: a coordinated open for write found no such file.
	KindNotFoundOnWrite

	// KindTimeout: the idle watchdog exhausted its retries without
	// observing forward progress. Never produced by backend failures.
	KindTimeout

	// KindContainerUnavailable: the backend container is inaccessible
	// (authentication, permission or connectivity). Surfaced immediately,
	// never retried internally.
	KindContainerUnavailable

	// KindNativeFailure: any other backend failure; the original cause is
	// attached for diagnostics.
	KindNativeFailure

	// KindInvalidArgument: the caller passed a malformed path or parameter.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotFoundOnRead:
		return "not_found_on_read"
	case KindNotFoundOnWrite:
		return "not_found_on_write"
	case KindTimeout:
		return "timeout"
	case KindContainerUnavailable:
		return "container_unavailable"
	case KindNativeFailure:
		return "native_failure"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Retryable reports whether a transfer may recover from this failure kind by
// retrying locally. Genuine absence and caller mistakes never heal;
// container unavailability is surfaced immediately by design.
func (k Kind) Retryable() bool {
	switch k {
	case KindNotFound, KindNotFoundOnRead, KindNotFoundOnWrite,
		KindInvalidArgument, KindContainerUnavailable:
		return false
	default:
		return true
	}
}

// Error is a classified engine failure.
type Error struct {
	Kind  Kind
	Path  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the classified kind from an error, or zero when err is not
// an engine error.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return 0
}

// Access is the side of the coordinated-access boundary a raw failure came
// from. It disambiguates "no such file": the identical cause classifies as
// NotFoundOnRead from a read attempt, NotFoundOnWrite from a write attempt,
// and plain NotFound from neither.
type Access int

const (
	AccessNeutral Access = iota
	AccessRead
	AccessWrite
)

// Classify maps a raw failure into the stable taxonomy.
//
// Already-classified errors pass through unchanged, preserving the
// classify-once propagation rule. Watchdog timeouts never reach Classify;
// they are constructed directly with KindTimeout.
func Classify(path string, access Access, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, remote.ErrNotFound):
		kind := KindNotFound
		switch access {
		case AccessRead:
			kind = KindNotFoundOnRead
		case AccessWrite:
			kind = KindNotFoundOnWrite
		}
		return &Error{Kind: kind, Path: path, Cause: err}

	case errors.Is(err, remote.ErrInvalidPath):
		return &Error{Kind: KindInvalidArgument, Path: path, Cause: err}

	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, index.ErrUnavailable):
		return &Error{Kind: KindContainerUnavailable, Path: path, Cause: err}

	default:
		return &Error{Kind: KindNativeFailure, Path: path, Cause: err}
	}
}
