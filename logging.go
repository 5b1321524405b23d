package copyscheduler

import (
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// schedLogger is the narrow logging surface the scheduler depends on: a
// struct wrapping a *logiface.Logger[*stumpy.Event] with one method per log
// line. Keeping the logging calls behind these methods keeps the rest of the
// package independent of the concrete event type, matching the pattern
// logiface itself encourages for library authors (depend on Logger[E] for a
// fixed E, not the generic machinery).
type schedLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

func defaultLogger() *schedLogger {
	return &schedLogger{l: stumpy.L.New(stumpy.L.WithStumpy())}
}

func (s *schedLogger) startup() {
	if s == nil || s.l == nil {
		return
	}
	s.l.Info().Log("scheduler startup")
}

func (s *schedLogger) shutdownBegin() {
	if s == nil || s.l == nil {
		return
	}
	s.l.Info().Log("scheduler shutdown initiated")
}

func (s *schedLogger) shutdownComplete() {
	if s == nil || s.l == nil {
		return
	}
	s.l.Info().Log("scheduler shutdown complete")
}

func (s *schedLogger) cycleSummary(admitted int, queued int) {
	if s == nil || s.l == nil || (admitted == 0 && queued == 0) {
		return
	}
	s.l.Debug().
		Int(`admitted`, admitted).
		Int(`queued`, queued).
		Log("dispatch cycle")
}

func (s *schedLogger) callbackFailed(class PriorityClass, err error) {
	if s == nil || s.l == nil {
		return
	}
	s.l.Warning().
		Uint64(`class`, uint64(class)).
		Err(err).
		Log("callback failed")
}

func (s *schedLogger) resolved(class PriorityClass, code SchedulerFailureCode, wait time.Duration) {
	if s == nil || s.l == nil {
		return
	}
	s.l.Debug().
		Uint64(`class`, uint64(class)).
		Str(`code`, code.String()).
		Dur(`queue_wait`, wait).
		Log("request resolved without running")
}
