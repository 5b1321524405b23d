package copyscheduler

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// defaultCycleInterval is the dispatcher's inter-cycle sleep when no
// submission arrives to wake it early.
const defaultCycleInterval = 5 * time.Millisecond

// defaultCycleQuota is deliberately large but finite, so a single cycle can
// never admit an unbounded number of requests from a burst.
const defaultCycleQuota = 1 << 16

// SchedulerTimeoutUnbounded disables the per-request admission timeout: a
// request waits to be admitted for as long as it takes (bounded only by the
// queue and shutdown), never failing with FailureTimeout on its own. This is
// the default. Per spec §4.6, the literal zero value of schedulerTimeout is
// reserved for the caller's deliberate "must be admitted synchronously, in
// the first cycle that observes it" opt-in, so it is not also the default —
// that would make every zero-config submission fail instantly.
const SchedulerTimeoutUnbounded time.Duration = -1

// config holds the scheduler's resolved, validated configuration.
type config struct {
	cycleInterval     time.Duration
	cycleQuota        uint32
	maxInflightGlobal uint32
	reservedPerClass  map[PriorityClass]uint32
	weight            map[PriorityClass]uint32
	schedulerTimeout  time.Duration
	logger            *schedLogger
	clock             func() time.Time
}

func defaultConfig() *config {
	return &config{
		cycleInterval:     defaultCycleInterval,
		cycleQuota:        defaultCycleQuota,
		maxInflightGlobal: defaultCycleQuota,
		reservedPerClass:  make(map[PriorityClass]uint32),
		weight:            make(map[PriorityClass]uint32),
		schedulerTimeout:  SchedulerTimeoutUnbounded,
		logger:            defaultLogger(),
		clock:             time.Now,
	}
}

func (c *config) validate() error {
	if c.cycleQuota == 0 {
		return fmt.Errorf("%w: cycleQuota must be >= 1", ErrInvalidConfig)
	}
	if c.maxInflightGlobal == 0 {
		return fmt.Errorf("%w: maxInflightGlobal must be >= 1", ErrInvalidConfig)
	}
	if c.cycleInterval <= 0 {
		return fmt.Errorf("%w: cycleInterval must be positive", ErrInvalidConfig)
	}
	if c.schedulerTimeout < 0 && c.schedulerTimeout != SchedulerTimeoutUnbounded {
		return fmt.Errorf("%w: schedulerTimeout must be >= 0 or SchedulerTimeoutUnbounded", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Scheduler constructed via New.
type Option func(*config)

// WithCycleInterval sets how long the dispatcher sleeps between cycles when
// no submission wakes it early. Default: 5ms.
func WithCycleInterval(d time.Duration) Option {
	return func(c *config) { c.cycleInterval = d }
}

// WithCycleQuota bounds the maximum number of new admissions in a single
// cycle, so a burst of submissions cannot exhaust memory or starve fairness
// accounting in one pass. Default: 65536.
func WithCycleQuota(n uint32) Option {
	return func(c *config) { c.cycleQuota = n }
}

// WithMaxInflightGlobal bounds the total number of callbacks the scheduler
// will run concurrently, across all priority classes.
func WithMaxInflightGlobal(n uint32) Option {
	return func(c *config) { c.maxInflightGlobal = n }
}

// WithReservedPerClass overrides the minimum number of slots a class may
// always claim per cycle, if it has pending work. Classes not present in m
// default to 1, per spec: "every priority class makes progress in every
// cycle that has sufficient global quota."
func WithReservedPerClass(m map[PriorityClass]uint32) Option {
	return func(c *config) {
		for k, v := range m {
			c.reservedPerClass[k] = v
		}
	}
}

// WithWeight overrides the relative share used to split residual quota
// across classes once reserved shares are satisfied. Classes not present in
// m default to 1 (uniform).
func WithWeight(m map[PriorityClass]uint32) Option {
	return func(c *config) {
		for k, v := range m {
			c.weight[k] = v
		}
	}
}

// WithSchedulerTimeout sets the per-request admission timeout: the maximum
// time a request may wait to be admitted before it fails with
// FailureTimeout. A value of 0 means a request must be admitted in the
// first cycle that observes it — since admission never happens
// synchronously with submission, a zero timeout can never be met, and
// ScheduleOutboundPull/Push resolve such requests immediately, without
// ever queuing them. SchedulerTimeoutUnbounded (the default) disables the
// timeout entirely: requests wait for admission indefinitely.
func WithSchedulerTimeout(d time.Duration) Option {
	return func(c *config) { c.schedulerTimeout = d }
}

// WithLogger overrides the structured logger used for lifecycle and cycle
// telemetry. Passing a nil Logger disables logging entirely.
func WithLogger(l *logiface.Logger[*stumpy.Event]) Option {
	return func(c *config) { c.logger = &schedLogger{l: l} }
}

// WithClock overrides the function used to read the current time, for
// deterministic tests. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}
