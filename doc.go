// Package copyscheduler implements a prioritized, in-process admission and
// dispatch engine for outbound content copies (pulls and pushes) between
// cache peers.
//
// Callers submit copy requests tagged with a reason, an attempt count, and
// (for pushes) a location source. The scheduler classifies each request into
// a priority class, holds it in a per-class FIFO queue, and periodically
// runs an admission cycle that hands a bounded number of requests to worker
// goroutines for execution. Concurrency is capped globally; each cycle's
// admissions are split across classes by per-class reserved shares and
// weights, and no per-class concurrency cap exists. FIFO order is preserved
// within a class; shutdown deterministically fails both queued and in-flight
// work.
//
// # Architecture
//
// A [Scheduler] owns one goroutine, the dispatcher loop, which is the sole
// mutator of per-class queues after each cycle's inbox drain and the only
// goroutine that admits work; in-flight counters are atomics that a
// callback's goroutine decrements when it returns. Submissions ([Scheduler.ScheduleOutboundPull],
// [Scheduler.ScheduleOutboundPush]) hand requests to the dispatcher through a
// mutex-guarded inbox; the dispatcher drains the inbox and runs the
// admission controller at the start of every cycle.
//
// The dispatcher never awaits a [Callback] directly: each admitted request
// is executed on its own goroutine, so a slow or hung callback cannot stall
// scheduling. Completion is delivered exactly once via a [CompletionHandle].
//
// # Usage
//
//	s := copyscheduler.New(copyscheduler.WithMaxInflightGlobal(8))
//	if err := s.Startup(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Shutdown(context.Background())
//
//	handle := s.ScheduleOutboundPull(ctx, copyscheduler.ReasonPin, 0, func(ctx context.Context, args copyscheduler.ExecutionArgs) (copyscheduler.CopyOutcome, error) {
//	    return fetchFromPeer(ctx)
//	})
//	outcome, err := handle.Wait(ctx)
package copyscheduler
