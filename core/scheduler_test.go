package orchestration

import (
	"time"

	"github.com/koscakluka/ema-tutor/core/clock"
)

// clockScheduler schedules straight onto a clock. Callbacks are not
// serialised, so it is only used with the manual clock.
type clockScheduler struct {
	clock clock.Clock
}

func (s clockScheduler) schedule(d time.Duration, f func()) func() {
	cancelled := false
	timer := s.clock.AfterFunc(d, func() {
		if cancelled {
			return
		}
		cancelled = true
		f()
	})

	return func() {
		cancelled = true
		timer.Stop()
	}
}
