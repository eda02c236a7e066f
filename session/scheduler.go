package session

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-vault-session/internal/clock"
)

type task int

const (
	renewalTask task = iota
	watchdogTask
)

type periodic struct {
	timer clock.Timer
}

// scheduler owns the manager's periodic tasks. Arming a task replaces any
// previous schedule for it, so a task never runs on two schedules at once.
type scheduler struct {
	clock clock.Clock

	mu    sync.Mutex
	tasks map[task]*periodic
}

func newScheduler(c clock.Clock) *scheduler {
	return &scheduler{clock: c, tasks: make(map[task]*periodic)}
}

func (s *scheduler) arm(t task, every time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked(t)
	p := &periodic{}
	s.tasks[t] = p
	s.scheduleLocked(t, p, every, fn)
}

// scheduleLocked sets up the next firing of p. The following firing is
// scheduled before fn runs so that fn may disarm it.
func (s *scheduler) scheduleLocked(t task, p *periodic, every time.Duration, fn func()) {
	p.timer = s.clock.AfterFunc(every, func() {
		s.mu.Lock()
		if s.tasks[t] != p {
			s.mu.Unlock()
			return
		}
		s.scheduleLocked(t, p, every, fn)
		s.mu.Unlock()

		fn()
	})
}

func (s *scheduler) disarmAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.tasks {
		s.disarmLocked(t)
	}
}

func (s *scheduler) disarmLocked(t task) {
	p, ok := s.tasks[t]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(s.tasks, t)
}

func (s *scheduler) armed(t task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[t]
	return ok
}
