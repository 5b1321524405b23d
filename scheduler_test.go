package copyscheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestScheduler builds a Scheduler whose background ticker effectively
// never fires and whose automatic wake-triggered cycles admit nothing
// (cycleQuota 0), so the only admissions observed in a test come from an
// explicit runCycleWithBudget call. This makes cycle-by-cycle behavior
// fully deterministic without depending on wall-clock ticker timing.
func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	base := []Option{
		WithCycleInterval(time.Hour),
		WithSchedulerTimeout(time.Hour),
		WithMaxInflightGlobal(1000),
		WithLogger(nil),
	}
	s := New(append(base, opts...)...)
	// New rejects WithCycleQuota(0), so the zero quota is set directly,
	// before Startup launches the dispatcher goroutine that reads it.
	s.cfg.cycleQuota = 0
	require.NoError(t, s.Startup(context.Background()))
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
	})
	return s
}

// Scenario 1: single-copy admission.
func TestScenario_SingleCopyAdmission(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	argsCh := make(chan ExecutionArgs, 1)
	h := s.ScheduleOutboundPull(ctx, ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		argsCh <- args
		return "ok", nil
	})

	n := s.runCycleWithBudget(1)
	require.Equal(t, 1, n)

	args := <-argsCh
	assert.GreaterOrEqual(t, args.Summary.QueueWait, time.Duration(0))
	assert.Equal(t, uint32(1), args.Summary.PriorityQueueLength)

	outcome, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, CopyOutcome("ok"), outcome)
}

// Scenario 2: ordering within a class.
func TestScenario_OrderingWithinClass(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	ch1 := make(chan ExecutionArgs, 1)
	ch2 := make(chan ExecutionArgs, 1)
	h1 := s.ScheduleOutboundPull(ctx, ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		ch1 <- args
		return 1, nil
	})
	h2 := s.ScheduleOutboundPull(ctx, ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		ch2 <- args
		return 2, nil
	})

	n := s.runCycleWithBudget(1)
	require.Equal(t, 1, n)

	args1 := <-ch1
	_, _, resolved2 := h2.TryResult()
	assert.False(t, resolved2, "second request's callback must not run before the next cycle")

	n2 := s.runCycleWithBudget(1)
	require.Equal(t, 1, n2)
	args2 := <-ch2

	outcome1, err1 := h1.Wait(ctx)
	require.NoError(t, err1)
	assert.Equal(t, CopyOutcome(1), outcome1)

	outcome2, err2 := h2.Wait(ctx)
	require.NoError(t, err2)
	assert.Equal(t, CopyOutcome(2), outcome2)

	assert.GreaterOrEqual(t, args2.Summary.QueueWait, args1.Summary.QueueWait)
}

// Scenario 3: priority inversion check.
func TestScenario_PriorityInversion(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	hRetry := s.ScheduleOutboundPull(ctx, ReasonPin, 1, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		return "retry", nil
	})
	hFresh := s.ScheduleOutboundPull(ctx, ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		return "fresh", nil
	})

	n := s.runCycleWithBudget(1)
	require.Equal(t, 1, n)

	outcome, err := hFresh.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, CopyOutcome("fresh"), outcome, "the fresh attempt must be admitted first despite submitting second")

	_, _, resolvedRetry := hRetry.TryResult()
	assert.False(t, resolvedRetry, "the retry must wait for a later cycle")
}

// Scenario 4: throwing callback isolates.
func TestScenario_ThrowingCallbackIsolates(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	hA := s.ScheduleOutboundPull(ctx, ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		return nil, errors.New("boom")
	})
	hB := s.ScheduleOutboundPull(ctx, ReasonPlace, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		return "ok", nil
	})

	n := s.runCycleWithBudget(2)
	require.Equal(t, 2, n)

	outcomeB, errB := hB.Wait(ctx)
	require.NoError(t, errB)
	assert.Equal(t, CopyOutcome("ok"), outcomeB)

	_, errA := hA.Wait(ctx)
	var cf *CallbackFailedError
	require.ErrorAs(t, errA, &cf)
	assert.EqualError(t, cf.Err, "boom")
}

// Scenario 5: timeout zero.
func TestScenario_TimeoutZero(t *testing.T) {
	s := New(WithSchedulerTimeout(0), WithLogger(nil))
	// Deliberately never call Startup or any cycle hook: a zero
	// schedulerTimeout must resolve synchronously at submission.

	h := s.ScheduleOutboundPull(context.Background(), ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		t.Fatal("callback must never run for a zero-timeout request")
		return nil, nil
	})

	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, FailureTimeout)
}

// Scenario 6: shutdown cancels pending and in-flight.
func TestScenario_ShutdownCancelsPendingAndInFlight(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	started := make(chan struct{})
	block := make(chan struct{})
	hR := s.ScheduleOutboundPull(ctx, ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return "done", nil
		}
	})

	n := s.runCycleWithBudget(1)
	require.Equal(t, 1, n)
	<-started

	hP := s.ScheduleOutboundPull(ctx, ReasonPlace, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		return "ok", nil
	})

	require.NoError(t, s.Shutdown(context.Background()))

	_, errP := hP.Wait(context.Background())
	assert.ErrorIs(t, errP, FailureShutdown, "pending request must resolve Shutdown")

	_, errR := hR.Wait(context.Background())
	assert.ErrorIs(t, errR, FailureShutdown, "in-flight callback that honors cancellation must resolve Shutdown")
}

// Scenario 7: submit after shutdown.
func TestScenario_SubmitAfterShutdown(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Shutdown(context.Background()))

	h := s.ScheduleOutboundPull(context.Background(), ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		t.Fatal("callback must never run after shutdown")
		return nil, nil
	})

	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, FailureShutdown)
}

// Scenario 8: slow callback does not block the dispatcher.
func TestScenario_SlowCallbackDoesNotBlockDispatcher(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	startedSlow := make(chan struct{})
	releaseSlow := make(chan struct{})
	doneFast := make(chan struct{})

	hSlow := s.ScheduleOutboundPull(ctx, ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		close(startedSlow)
		<-releaseSlow
		return "slow", nil
	})
	hFast := s.ScheduleOutboundPull(ctx, ReasonPlace, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		close(doneFast)
		return "fast", nil
	})

	n := s.runCycleWithBudget(2)
	require.Equal(t, 2, n)

	<-startedSlow
	select {
	case <-doneFast:
	case <-time.After(2 * time.Second):
		t.Fatal("fast request did not complete while slow one was blocked")
	}

	_, _, resolvedSlow := hSlow.TryResult()
	assert.False(t, resolvedSlow)

	outcomeFast, errFast := hFast.Wait(ctx)
	require.NoError(t, errFast)
	assert.Equal(t, CopyOutcome("fast"), outcomeFast)

	close(releaseSlow)
	outcomeSlow, errSlow := hSlow.Wait(ctx)
	require.NoError(t, errSlow)
	assert.Equal(t, CopyOutcome("slow"), outcomeSlow)
}

// Universal invariant: every submitted request resolves exactly once, even
// under concurrent submission, and after shutdown every queued request has
// been resolved with no work left in flight.
func TestInvariant_ShutdownResolvesEveryPendingRequest(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	const n = 64
	handles := make([]*CompletionHandle, n)
	var mu sync.Mutex
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			h := s.ScheduleOutboundPull(ctx, ReasonPlace, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
				return i, nil
			})
			mu.Lock()
			handles[i] = h
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, s.Shutdown(context.Background()))

	for i, h := range handles {
		_, err := h.Wait(ctx)
		assert.ErrorIsf(t, err, FailureShutdown, "request %d must resolve Shutdown", i)
	}
	assert.Equal(t, int64(0), s.totalInflight.Load())
}

// Universal invariant: Shutdown is idempotent.
func TestInvariant_ShutdownIdempotent(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}

// Universal invariant: a CompletionHandle never resolves twice, even when
// raced.
func TestCompletionHandle_ResolvesExactlyOnce(t *testing.T) {
	h := newCompletionHandle()
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		i := i
		g.Go(func() error {
			h.resolve(i, nil)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	outcome, _, ok := h.TryResult()
	require.True(t, ok)
	assert.NotNil(t, outcome)
}

// Dispatcher progress: with k admittable requests and sufficient quota, one
// cycle admits min(k, budget).
func TestInvariant_DispatcherAdmitsUpToBudget(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	const k = 5
	for i := 0; i < k; i++ {
		s.ScheduleOutboundPull(ctx, ReasonPlace, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
			return nil, nil
		})
	}

	n := s.runCycleWithBudget(3)
	assert.Equal(t, 3, n)

	n2 := s.runCycleWithBudget(100)
	assert.Equal(t, 2, n2)
}

func TestStartup_RejectsDoubleStart(t *testing.T) {
	s := newTestScheduler(t)
	err := s.Startup(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStartup_RejectsAfterTermination(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Shutdown(context.Background()))
	err := s.Startup(context.Background())
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestMetrics_ReflectsSubmissionsAndCompletions(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	done := make(chan struct{})
	s.ScheduleOutboundPull(ctx, ReasonPin, 0, func(ctx context.Context, args ExecutionArgs) (CopyOutcome, error) {
		close(done)
		return nil, nil
	})
	n := s.runCycleWithBudget(1)
	require.Equal(t, 1, n)
	<-done

	require.Eventually(t, func() bool {
		return s.Metrics().RequestsCompleted == 1
	}, time.Second, time.Millisecond)

	m := s.Metrics()
	assert.Equal(t, uint64(1), m.RequestsSubmitted)
	assert.Equal(t, uint64(1), m.RequestsAdmitted)
}
