package copyscheduler

import (
	"context"
	"time"
)

// spawnExecutor admits r: it increments inflight accounting, derives a
// linked-cancellation context, and runs the callback on a goroutine tracked
// by the scheduler's errgroup.Group, exactly the way the teacher package's
// Promisify spawns a tracked, panic-recovering goroutine per in-flight
// operation. Only the dispatcher goroutine calls spawnExecutor.
func (s *Scheduler) spawnExecutor(r *request, queueWait time.Duration, priorityQueueLen uint32) {
	s.inflight[r.class].Add(1)
	s.totalInflight.Add(1)
	s.rates[r.class].record(s.cfg.clock())
	s.telemetry.recordAdmitted(r.class)

	// TryAcquire is a defense-in-depth invariant check: the admission
	// controller already enforces maxInflightGlobal, so this must always
	// succeed. Failure means the controller and the semaphore have drifted
	// out of sync, a scheduler-internal bug rather than a recoverable
	// runtime condition.
	if !s.sem.TryAcquire(1) {
		s.inflight[r.class].Add(-1)
		s.totalInflight.Add(-1)
		panic("copyscheduler: admission invariant violated: inflight exceeds maxInflightGlobal")
	}

	runCtx, cancel := context.WithCancel(r.ctx)
	stopLink := make(chan struct{})
	go linkShutdown(s.shutdownCtx, cancel, stopLink)

	args := ExecutionArgs{
		Summary: Summary{
			QueueWait:           queueWait,
			PriorityQueueLength: priorityQueueLen,
		},
		Priority: r.class,
	}

	s.group.Go(func() error {
		defer close(stopLink)
		defer cancel()
		defer func() {
			s.inflight[r.class].Add(-1)
			s.totalInflight.Add(-1)
		}()
		// Deferred after the counter decrement so it runs before it: the
		// semaphore slot is free by the time a cycle can see the lower count.
		defer s.sem.Release(1)

		outcome, err := runCallback(runCtx, r.callback, args)
		s.telemetry.recordCompleted(r.class)
		s.resolveOutcome(r, outcome, err)
		return nil
	})
}

// linkShutdown cancels cancel as soon as shutdownCtx is done, unless stop
// fires first (the callback already returned on its own).
func linkShutdown(shutdownCtx context.Context, cancel context.CancelFunc, stop <-chan struct{}) {
	select {
	case <-shutdownCtx.Done():
		cancel()
	case <-stop:
	}
}

// runCallback invokes cb, recovering any panic into a callbackPanicError so
// a misbehaving callback can never take down the dispatcher or any other
// in-flight callback.
func runCallback(ctx context.Context, cb Callback, args ExecutionArgs) (outcome CopyOutcome, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &callbackPanicError{value: v}
		}
	}()
	return cb(ctx, args)
}

// resolveOutcome settles r's completion handle. A callback that returns
// successfully always wins, even mid-shutdown — the scheduler never
// overrides a user result. A callback that fails while the shared shutdown
// signal caused (or overlapped) its cancellation is reported as
// FailureShutdown rather than a transparent CallbackFailedError, since the
// scheduler — not the callback — is the reason it didn't finish. Any other
// failure is wrapped transparently.
func (s *Scheduler) resolveOutcome(r *request, outcome CopyOutcome, err error) {
	if err == nil {
		r.completion.resolve(outcome, nil)
		return
	}

	if s.shutdownCtx.Err() != nil {
		r.completion.resolve(nil, FailureShutdown)
		s.telemetry.recordShutdown(r.class)
		return
	}

	s.cfg.logger.callbackFailed(r.class, err)
	r.completion.resolve(nil, &CallbackFailedError{Err: err})
}
