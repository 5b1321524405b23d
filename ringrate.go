package copyscheduler

import (
	"sync"
	"time"
)

// admissionRing is a fixed-capacity ring buffer of admission timestamps for
// one priority class, used only to report a recent-admission-rate in cycle
// telemetry. Adapted from the teacher package's catrate.ringBuffer: a
// power-of-two-sized slice with read/write cursors, so Len/mask are cheap
// bitwise operations rather than a modulo.
//
// Unlike catrate, this ring never rejects an event: it is an observability
// aid, not a limiter, so record always succeeds, evicting the oldest entry
// once full.
//
// record is called from the dispatcher goroutine; ratePerSecond is called
// from whatever goroutine the caller invokes Metrics() on. Those two can run
// concurrently, so — mirroring catrate.limiter's own mu sync.Mutex guarding
// its per-category ring state — a mutex protects every field access here;
// unlike the single-word atomic counters, this multi-field state needs a lock.
type admissionRing struct {
	mu   sync.Mutex
	ts   []int64
	r, w uint
}

// admissionRingCapacity must be a power of two.
const admissionRingCapacity = 32

func newAdmissionRing() *admissionRing {
	return &admissionRing{ts: make([]int64, admissionRingCapacity)}
}

func (a *admissionRing) mask(v uint) uint {
	return v & (uint(len(a.ts)) - 1)
}

func (a *admissionRing) len() int {
	return int(a.w - a.r)
}

// record appends t, evicting the oldest entry if the ring is already at
// capacity.
func (a *admissionRing) record(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.len() == len(a.ts) {
		a.r++
	}
	a.ts[a.mask(a.w)] = t.UnixNano()
	a.w++
}

// ratePerSecond returns the observed admission rate across whatever window
// of recent admissions the ring currently holds, or 0 if fewer than two
// samples have been recorded.
func (a *admissionRing) ratePerSecond(now time.Time) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.len()
	if n < 2 {
		return 0
	}
	oldest := a.ts[a.mask(a.w-uint(n))]
	newest := a.ts[a.mask(a.w-1)]
	elapsed := time.Duration(newest - oldest)
	if elapsed <= 0 {
		elapsed = now.Sub(time.Unix(0, oldest))
		if elapsed <= 0 {
			return 0
		}
	}
	return float64(n-1) / elapsed.Seconds()
}
