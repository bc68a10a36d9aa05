package orchestration

import "time"

// scheduler runs delayed work for the session components. The returned
// function cancels the work; cancelling after it ran is a no-op.
type scheduler interface {
	schedule(d time.Duration, f func()) (cancel func())
}

// sessionScheduler runs callbacks under the manager lock and drops them once
// the owning session stopped accepting events.
type sessionScheduler struct {
	manager *ConversationFlowManager
	session *activeSession
}

func (s sessionScheduler) schedule(d time.Duration, f func()) func() {
	// cancelled is only touched with the manager lock held.
	cancelled := false
	timer := s.manager.clock.AfterFunc(d, func() {
		s.manager.run(func() {
			if cancelled || !s.manager.isCurrent(s.session) {
				return
			}
			cancelled = true
			f()
		})
	})

	return func() {
		cancelled = true
		timer.Stop()
	}
}
