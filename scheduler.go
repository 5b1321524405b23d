package copyscheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// cycleCmd is a test-only request to the dispatcher goroutine to run exactly
// one admission cycle with an explicit budget, bypassing the configured
// cycleQuota. It lets tests drive deterministic cycles without depending on
// wall-clock ticker timing.
type cycleCmd struct {
	budget uint32
	done   chan int
}

// Scheduler is a prioritized admission-and-dispatch engine for outbound copy
// work. It owns a single dispatcher goroutine (started by Startup) that is
// the sole mutator of every per-class queue and the only goroutine that
// increments the atomic inflight counters (each callback's worker goroutine
// decrements them when it returns); all external interaction — submission, shutdown, test-only cycle commands —
// crosses into that goroutine through channels or an atomically-published
// inbox, mirroring the single-owner-loop-goroutine discipline the teacher
// package's Loop uses for its own task queues.
type Scheduler struct {
	cfg   *config
	state *atomicLifecycle

	classes  []PriorityClass
	queues   []*classQueue
	reserved []uint32
	weight   []uint32
	inflight []atomic.Int64
	rates    []*admissionRing

	totalInflight atomic.Int64
	seq           atomic.Uint64

	telemetry *telemetry
	sem       *semaphore.Weighted
	group     *errgroup.Group

	inboxMu sync.Mutex
	inbox   []*request

	wake       chan struct{}
	cycleCmdCh chan cycleCmd

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	loopDone       chan struct{}
}

// New constructs a Scheduler. The returned Scheduler accepts submissions
// immediately (they queue until Startup runs the dispatcher) but performs no
// admission until Startup is called.
func New(opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		// Invalid configuration is a programmer error caught as early as
		// possible; New has no error return per spec §6, so we panic rather
		// than silently running with nonsensical limits.
		panic(err)
	}

	classes := enumerateClasses()
	n := len(classes)

	reserved := make([]uint32, n)
	weight := make([]uint32, n)
	queues := make([]*classQueue, n)
	inflight := make([]atomic.Int64, n)
	rates := make([]*admissionRing, n)
	for i, c := range classes {
		queues[i] = newClassQueue()
		rates[i] = newAdmissionRing()
		if v, ok := cfg.reservedPerClass[c]; ok {
			reserved[i] = v
		} else {
			reserved[i] = 1
		}
		if v, ok := cfg.weight[c]; ok {
			weight[i] = v
		} else {
			weight[i] = 1
		}
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:            cfg,
		state:          newAtomicLifecycle(),
		classes:        classes,
		queues:         queues,
		reserved:       reserved,
		weight:         weight,
		inflight:       inflight,
		rates:          rates,
		telemetry:      newTelemetry(classes),
		sem:            semaphore.NewWeighted(int64(cfg.maxInflightGlobal)),
		group:          &errgroup.Group{},
		wake:           make(chan struct{}, 1),
		cycleCmdCh:     make(chan cycleCmd),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: cancel,
		loopDone:       make(chan struct{}),
	}
}

// Startup starts the dispatcher goroutine. It returns ErrAlreadyStarted if
// already Running, or ErrTerminated if shutdown has begun or completed.
func (s *Scheduler) Startup(ctx context.Context) error {
	if !s.state.tryTransition(stateNotStarted, stateRunning) {
		switch s.state.load() {
		case stateShuttingDown, stateStopped:
			return ErrTerminated
		default:
			return ErrAlreadyStarted
		}
	}
	s.cfg.logger.startup()
	go s.dispatcherLoop()
	return nil
}

// Shutdown begins (or observes an in-progress) graceful shutdown: every
// queued request is resolved with FailureShutdown, the shared shutdown
// context is cancelled (cancelling every in-flight callback's linked
// context), and Shutdown blocks until every in-flight callback has returned
// or ctx is cancelled. Shutdown is idempotent and safe to call more than
// once or concurrently.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	for {
		switch s.state.load() {
		case stateStopped:
			return nil

		case stateShuttingDown:
			select {
			case <-s.loopDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}

		case stateNotStarted:
			if !s.state.tryTransition(stateNotStarted, stateStopped) {
				continue
			}
			s.cfg.logger.shutdownBegin()
			s.shutdownCancel()
			s.drainAllPending()
			_ = s.group.Wait()
			close(s.loopDone)
			s.cfg.logger.shutdownComplete()
			return nil

		default: // stateRunning
			if !s.state.tryTransition(stateRunning, stateShuttingDown) {
				continue
			}
			s.cfg.logger.shutdownBegin()
			s.shutdownCancel()
			s.wakeDispatcher()
			select {
			case <-s.loopDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Metrics returns a point-in-time snapshot of submission/admission/
// completion counters, globally and per priority class, including each
// class's recent observed admission rate.
func (s *Scheduler) Metrics() Metrics {
	m := s.telemetry.snapshot(s.classes)
	now := s.cfg.clock()
	for c, cm := range m.PerClass {
		cm.RecentAdmissionRate = s.rates[c].ratePerSecond(now)
		m.PerClass[c] = cm
	}
	return m
}

// ScheduleOutboundPull submits a copy-in request for admission.
func (s *Scheduler) ScheduleOutboundPull(ctx context.Context, reason CopyReason, attempt int, cb Callback) *CompletionHandle {
	class := Classify(OutboundPull, reason, attempt, SourceDesignated)
	r := &request{
		direction: OutboundPull,
		reason:    reason,
		attempt:   attempt,
		source:    SourceDesignated,
		ctx:       ctx,
		callback:  cb,
		class:     class,
	}
	return s.submit(r)
}

// ScheduleOutboundPush submits a copy-out request for admission.
func (s *Scheduler) ScheduleOutboundPush(ctx context.Context, reason CopyReason, source ProactiveCopyLocationSource, attempt int, cb Callback) *CompletionHandle {
	class := Classify(OutboundPush, reason, attempt, source)
	r := &request{
		direction: OutboundPush,
		reason:    reason,
		attempt:   attempt,
		source:    source,
		ctx:       ctx,
		callback:  cb,
		class:     class,
	}
	return s.submit(r)
}

// submit finalizes a request's identity and either resolves it immediately
// (shutdown already in progress, or a zero admission timeout that can never
// be met) or publishes it to the inbox for the dispatcher to pick up.
func (s *Scheduler) submit(r *request) *CompletionHandle {
	r.completion = newCompletionHandle()
	r.enqueuedAt = s.cfg.clock()
	s.telemetry.recordSubmitted(r.class)

	if s.cfg.schedulerTimeout == 0 {
		// Admission never happens synchronously with submission in this
		// architecture, so a zero timeout can never be met; resolve now
		// without ever touching the inbox or a class queue. Lifecycle state
		// is irrelevant here, so this needs no lock.
		r.completion.resolve(nil, FailureTimeout)
		s.telemetry.recordTimeout(r.class)
		s.cfg.logger.resolved(r.class, FailureTimeout, 0)
		return r.completion
	}

	// The lifecycle-state check and the inbox append must be one atomic
	// step, guarded by the same lock the dispatcher's terminal drain takes.
	// Checking state, then appending, as two independent steps would let a
	// submission race a concurrent Shutdown: it could read Running, then
	// append after the dispatcher's last drainAllPending has already run and
	// closed loopDone, orphaning the request's completion forever. Holding
	// inboxMu across both the check and the append rules that out: either
	// the append happens-before the terminal drain's own inboxMu-guarded
	// swap (so the drain observes and fails it), or it happens strictly
	// after the drain released the lock, in which case the lifecycle CAS to
	// ShuttingDown/Stopped — which always happens-before that drain runs —
	// is already visible, so the state check below sees it and rejects
	// instead of enqueuing. This mirrors the teacher package's Promisify,
	// which takes a single mutex around its own state check and registration
	// for the identical reason ("Atomic check... to prevent race with
	// shutdown").
	s.inboxMu.Lock()
	switch s.state.load() {
	case stateShuttingDown, stateStopped:
		s.inboxMu.Unlock()
		r.completion.resolve(nil, FailureShutdown)
		s.telemetry.recordShutdown(r.class)
		s.cfg.logger.resolved(r.class, FailureShutdown, 0)
		return r.completion
	}
	r.id = s.seq.Add(1)
	s.inbox = append(s.inbox, r)
	s.inboxMu.Unlock()

	s.wakeDispatcher()
	return r.completion
}

func (s *Scheduler) wakeDispatcher() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// runCycleWithBudget is a test-only hook that asks the running dispatcher
// goroutine to perform exactly one admission cycle using budget instead of
// the configured cycleQuota, and reports how many requests it admitted. It
// requires Startup to have been called; if the dispatcher has already
// exited, it returns 0.
func (s *Scheduler) runCycleWithBudget(budget uint32) int {
	cmd := cycleCmd{budget: budget, done: make(chan int, 1)}
	select {
	case s.cycleCmdCh <- cmd:
	case <-s.loopDone:
		return 0
	}
	select {
	case n := <-cmd.done:
		return n
	case <-s.loopDone:
		return 0
	}
}

// dispatcherLoop is the scheduler's single long-lived goroutine. It is the
// sole owner of every class queue and the only admitter, matching the
// single-goroutine-owns-the-task-queue discipline the teacher package's Loop
// uses internally.
func (s *Scheduler) dispatcherLoop() {
	ticker := time.NewTicker(s.cfg.cycleInterval)
	defer ticker.Stop()

	for {
		ranCmd := false
		select {
		case <-ticker.C:
		case <-s.wake:
		case cmd := <-s.cycleCmdCh:
			ranCmd = true
			s.drainInbox()
			s.sweepExpired()
			n := s.runCycleAdmission(cmd.budget)
			cmd.done <- n
		case <-s.shutdownCtx.Done():
		}

		if s.state.load() == stateShuttingDown {
			s.drainAllPending()
			_ = s.group.Wait()
			s.state.store(stateStopped)
			close(s.loopDone)
			s.cfg.logger.shutdownComplete()
			return
		}

		if !ranCmd {
			s.drainInbox()
			s.sweepExpired()
			admitted := s.runCycleAdmission(s.cfg.cycleQuota)
			s.cfg.logger.cycleSummary(admitted, s.totalQueued())
		}
	}
}

// drainInbox moves every request published to the shared inbox since the
// last cycle into its class queue. Only the dispatcher goroutine calls this.
func (s *Scheduler) drainInbox() {
	s.inboxMu.Lock()
	pending := s.inbox
	s.inbox = nil
	s.inboxMu.Unlock()

	for _, r := range pending {
		s.queues[r.class].push(r)
	}
}

// sweepExpired pops and fails, with FailureTimeout, every request at the
// front of a class queue whose admission deadline has already passed. A
// zero schedulerTimeout is resolved synchronously at submission (such
// requests never reach a queue) and SchedulerTimeoutUnbounded disables
// admission deadlines entirely, so this is a no-op fast path in both cases.
func (s *Scheduler) sweepExpired() {
	if s.cfg.schedulerTimeout <= 0 {
		return
	}
	now := s.cfg.clock()
	for _, q := range s.queues {
		for {
			r, ok := q.peek()
			if !ok || now.Before(r.deadline(s.cfg.schedulerTimeout)) {
				break
			}
			q.pop()
			wait := now.Sub(r.enqueuedAt)
			r.completion.resolve(nil, FailureTimeout)
			s.telemetry.recordTimeout(r.class)
			s.cfg.logger.resolved(r.class, FailureTimeout, wait)
		}
	}
}

// runCycleAdmission runs the admission controller over the current queue
// state and spawns an executor for every admitted request. It returns the
// number admitted.
func (s *Scheduler) runCycleAdmission(budget uint32) int {
	queueLen := make([]int, len(s.classes))
	for i, q := range s.queues {
		queueLen[i] = q.len()
	}

	total := uint32(s.totalInflight.Load())
	assigned := computeAdmission(queueLen, budget, s.cfg.maxInflightGlobal, total, s.reserved, s.weight)

	admitted := 0
	now := s.cfg.clock()
	for i, n := range assigned {
		for j := 0; j < n; j++ {
			qlenBefore := uint32(s.queues[i].len())
			r, ok := s.queues[i].pop()
			if !ok {
				break
			}
			queueWait := now.Sub(r.enqueuedAt)
			s.spawnExecutor(r, queueWait, qlenBefore)
			admitted++
		}
	}
	return admitted
}

func (s *Scheduler) totalQueued() int {
	total := 0
	for _, q := range s.queues {
		total += q.len()
	}
	return total
}

// drainAllPending fails every request not yet admitted — both the shared
// inbox and every class queue — with FailureShutdown. Called once, exactly,
// during shutdown.
func (s *Scheduler) drainAllPending() {
	s.inboxMu.Lock()
	pending := s.inbox
	s.inbox = nil
	s.inboxMu.Unlock()

	for _, r := range pending {
		r.completion.resolve(nil, FailureShutdown)
		s.telemetry.recordShutdown(r.class)
	}

	for _, q := range s.queues {
		for _, r := range q.drainAll() {
			r.completion.resolve(nil, FailureShutdown)
			s.telemetry.recordShutdown(r.class)
		}
	}
}
