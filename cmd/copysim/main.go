// Command copysim runs a synthetic load of outbound copy requests against a
// copyscheduler.Scheduler and prints its telemetry once the run finishes.
// It exists to exercise the scheduler under a shaped workload during manual
// testing, not as a production tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/joeycumines/go-copyscheduler"
)

func main() {
	var (
		duration     = flag.Duration("duration", 2*time.Second, "time budget for the run; the context deadline is this plus one second")
		requests     = flag.Int("requests", 500, "number of requests to submit")
		maxInflight  = flag.Uint("max-inflight", 16, "global concurrency cap")
		cycleQuota   = flag.Uint("cycle-quota", 32, "max admissions per cycle")
		workDuration = flag.Duration("work", 5*time.Millisecond, "simulated per-copy work duration")
	)
	flag.Parse()

	s := copyscheduler.New(
		copyscheduler.WithMaxInflightGlobal(uint32(*maxInflight)),
		copyscheduler.WithCycleQuota(uint32(*cycleQuota)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *duration+time.Second)
	defer cancel()

	if err := s.Startup(ctx); err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer s.Shutdown(context.Background())

	reasons := []copyscheduler.CopyReason{
		copyscheduler.ReasonPin,
		copyscheduler.ReasonPlace,
		copyscheduler.ReasonCentralStorage,
		copyscheduler.ReasonProactiveBackground,
	}

	handles := make([]*copyscheduler.CompletionHandle, 0, *requests)
	for i := 0; i < *requests; i++ {
		reason := reasons[rand.Intn(len(reasons))]
		var h *copyscheduler.CompletionHandle
		if rand.Intn(2) == 0 {
			h = s.ScheduleOutboundPull(ctx, reason, 0, simulateCopy(*workDuration))
		} else {
			source := copyscheduler.SourceDesignated
			if rand.Intn(2) == 0 {
				source = copyscheduler.SourceRandom
			}
			h = s.ScheduleOutboundPush(ctx, reason, source, 0, simulateCopy(*workDuration))
		}
		handles = append(handles, h)
	}

	for _, h := range handles {
		h.Wait(ctx)
	}

	m := s.Metrics()
	fmt.Fprintf(os.Stdout, "submitted=%d admitted=%d completed=%d timeout=%d shutdown=%d\n",
		m.RequestsSubmitted, m.RequestsAdmitted, m.RequestsCompleted, m.RequestsTimeout, m.RequestsShutdown)
}

func simulateCopy(work time.Duration) copyscheduler.Callback {
	return func(ctx context.Context, args copyscheduler.ExecutionArgs) (copyscheduler.CopyOutcome, error) {
		select {
		case <-time.After(work):
			return "ok", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
