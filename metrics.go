package copyscheduler

import "sync/atomic"

// ClassMetrics is a point-in-time snapshot of one priority class's counters.
type ClassMetrics struct {
	Submitted uint64
	Admitted  uint64
	Completed uint64
	Timeout   uint64
	Shutdown  uint64
	// RecentAdmissionRate is the observed admissions-per-second for this
	// class over its most recent admission window (see admissionRing).
	RecentAdmissionRate float64
}

// Metrics is a point-in-time snapshot of the scheduler's telemetry
// counters, both global and broken down per priority class. It is safe to
// retain and inspect after the snapshot is taken; it will not change.
type Metrics struct {
	RequestsSubmitted uint64
	RequestsAdmitted  uint64
	RequestsCompleted uint64
	RequestsTimeout   uint64
	RequestsShutdown  uint64
	PerClass          map[PriorityClass]ClassMetrics
}

// counterSet holds one family of atomic counters, reused for both the
// scheduler-wide totals and each per-class breakdown.
type counterSet struct {
	submitted atomic.Uint64
	admitted  atomic.Uint64
	completed atomic.Uint64
	timeout   atomic.Uint64
	shutdown  atomic.Uint64
}

func (c *counterSet) snapshot() ClassMetrics {
	return ClassMetrics{
		Submitted: c.submitted.Load(),
		Admitted:  c.admitted.Load(),
		Completed: c.completed.Load(),
		Timeout:   c.timeout.Load(),
		Shutdown:  c.shutdown.Load(),
	}
}

// telemetry aggregates the global counters plus one counterSet per
// enumerated priority class.
type telemetry struct {
	global   counterSet
	perClass []counterSet
}

func newTelemetry(classes []PriorityClass) *telemetry {
	return &telemetry{perClass: make([]counterSet, len(classes))}
}

func (t *telemetry) recordSubmitted(c PriorityClass) {
	t.global.submitted.Add(1)
	t.perClass[c].submitted.Add(1)
}

func (t *telemetry) recordAdmitted(c PriorityClass) {
	t.global.admitted.Add(1)
	t.perClass[c].admitted.Add(1)
}

func (t *telemetry) recordCompleted(c PriorityClass) {
	t.global.completed.Add(1)
	t.perClass[c].completed.Add(1)
}

func (t *telemetry) recordTimeout(c PriorityClass) {
	t.global.timeout.Add(1)
	t.perClass[c].timeout.Add(1)
}

func (t *telemetry) recordShutdown(c PriorityClass) {
	t.global.shutdown.Add(1)
	t.perClass[c].shutdown.Add(1)
}

// snapshot returns a point-in-time Metrics value. classes must be the same
// enumeration (and order) used to construct the telemetry.
func (t *telemetry) snapshot(classes []PriorityClass) Metrics {
	m := Metrics{
		RequestsSubmitted: t.global.submitted.Load(),
		RequestsAdmitted:  t.global.admitted.Load(),
		RequestsCompleted: t.global.completed.Load(),
		RequestsTimeout:   t.global.timeout.Load(),
		RequestsShutdown:  t.global.shutdown.Load(),
		PerClass:          make(map[PriorityClass]ClassMetrics, len(classes)),
	}
	for _, c := range classes {
		cm := t.perClass[c].snapshot()
		if cm.Submitted == 0 && cm.Admitted == 0 && cm.Completed == 0 && cm.Timeout == 0 && cm.Shutdown == 0 {
			continue
		}
		m.PerClass[c] = cm
	}
	return m
}
