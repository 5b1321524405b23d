package copyscheduler

import (
	"context"
	"sync/atomic"
)

// CompletionHandle is the one-shot sink a caller awaits for a submitted
// request's final outcome. It resolves exactly once, with either a
// caller-provided CopyOutcome, or an error (a SchedulerFailureCode, or a
// *CallbackFailedError wrapping the callback's own error/panic).
type CompletionHandle struct {
	resolved atomic.Bool
	done     chan struct{}
	outcome  CopyOutcome
	err      error
}

// newCompletionHandle returns an unresolved handle.
func newCompletionHandle() *CompletionHandle {
	return &CompletionHandle{done: make(chan struct{})}
}

// resolve settles the handle exactly once. Subsequent and concurrent calls
// are no-ops, so callers composing completion from multiple goroutines
// (e.g. a timeout sweep racing a shutdown drain over the same request)
// never need their own synchronization.
func (h *CompletionHandle) resolve(outcome CopyOutcome, err error) {
	if !h.resolved.CompareAndSwap(false, true) {
		return
	}
	h.outcome = outcome
	h.err = err
	close(h.done)
}

// Done returns a channel closed once the handle has resolved.
func (h *CompletionHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle resolves or ctx is cancelled, whichever
// happens first. On ctx cancellation it returns ctx.Err(); the handle
// itself remains unresolved and a later Wait call can still observe its
// eventual outcome.
func (h *CompletionHandle) Wait(ctx context.Context) (CopyOutcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryResult returns the resolved outcome/error and true, or false if the
// handle has not yet resolved.
func (h *CompletionHandle) TryResult() (CopyOutcome, error, bool) {
	select {
	case <-h.done:
		return h.outcome, h.err, true
	default:
		return nil, nil, false
	}
}
