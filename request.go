package copyscheduler

import (
	"context"
	"time"
)

// CopyOutcome is the caller-defined result of a successful copy. The
// scheduler never inspects it; it only ever stores and forwards it.
type CopyOutcome any

// Summary carries admission telemetry a Callback can use for its own
// reporting: how long the request waited to be admitted, and how many
// requests were queued ahead of (and alongside) it in its priority class at
// the moment it entered service.
type Summary struct {
	// QueueWait is the duration between submission and admission.
	QueueWait time.Duration
	// PriorityQueueLength is the length of the request's class queue,
	// observed at the moment this request was admitted (inclusive of this
	// request).
	PriorityQueueLength uint32
}

// ExecutionArgs is passed to a Callback when its request is admitted.
type ExecutionArgs struct {
	// Summary reports queue-wait and queue-depth telemetry.
	Summary Summary
	// Priority is the class this request was classified into.
	Priority PriorityClass
}

// Callback performs the actual copy I/O for one admitted request. It
// receives a context whose cancellation is the logical OR of the caller's
// original context, the scheduler's shutdown signal, and (only while still
// queued) the request's admission timeout — once the callback has started,
// only the caller's context and scheduler shutdown can still cancel it; an
// admission timeout never fires after a callback has begun running.
//
// A Callback's returned error is surfaced to the caller wrapped in
// CallbackFailedError, or as FailureShutdown if scheduler shutdown has begun
// by the time the callback returns; it never influences later scheduling
// decisions.
type Callback func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error)

// request is the scheduler's immutable internal descriptor for one pending
// or in-flight copy. Once constructed it is never mutated except for the
// completion, enqueuedAt and id fields, all of which are set exactly once at
// submission before the request is published to the inbox.
type request struct {
	id        uint64
	direction CopyDirection
	reason    CopyReason
	attempt   int
	source    ProactiveCopyLocationSource
	ctx       context.Context
	callback  Callback
	enqueuedAt time.Time
	class     PriorityClass
	completion *CompletionHandle
}

// deadline returns the wall-clock time by which this request must be
// admitted, given the scheduler's configured admission timeout. A zero
// timeout means the deadline is enqueuedAt itself: the request must be
// admitted in the very first cycle that observes it.
func (r *request) deadline(timeout time.Duration) time.Time {
	return r.enqueuedAt.Add(timeout)
}
