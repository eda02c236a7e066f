package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-vault-session/activity"
	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/jrsteele09/go-vault-session/notify"
	"github.com/rs/zerolog/log"
)

// StartLifecycle arms the renewal timer and the inactivity watchdog and
// attaches activity recording. Calling it again rearms rather than stacks.
func (m *Manager) StartLifecycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Live {
		return apperrors.ErrUnauthenticated
	}
	m.startLifecycleLocked()
	return nil
}

// StopLifecycle disarms both timers and detaches activity recording. It is
// a no-op when nothing is running.
func (m *Manager) StopLifecycle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLifecycleLocked()
}

// LifecycleRunning reports whether the renewal timer and watchdog are armed.
func (m *Manager) LifecycleRunning() bool {
	return m.sched.armed(renewalTask) && m.sched.armed(watchdogTask)
}

func (m *Manager) startLifecycleLocked() {
	m.RecordActivity()
	m.sched.arm(renewalTask, m.settings.GetRenewInterval(), m.onRenewalTimer)
	m.sched.arm(watchdogTask, m.settings.GetWatchdogInterval(), m.CheckInactivity)

	if m.activity == nil {
		return
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.unsubscribe = m.activity.Subscribe(activity.Qualifying, func(activity.Kind) {
		m.RecordActivity()
	})
}

func (m *Manager) stopLifecycleLocked() {
	m.sched.disarmAll()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// RecordActivity marks now as the latest user interaction.
func (m *Manager) RecordActivity() {
	m.lastActivity.Store(m.now().UnixNano())
}

func (m *Manager) LastActivity() time.Time {
	return time.Unix(0, m.lastActivity.Load())
}

// CheckInactivity ends a live session whose last interaction is older than
// the inactivity timeout.
func (m *Manager) CheckInactivity() {
	_, gen, live := m.current()
	if !live {
		return
	}
	idle := m.now().Sub(m.LastActivity())
	if idle <= m.settings.GetInactivityTimeout() {
		return
	}
	log.Info().Dur("idle", idle).Msg("Session inactive")
	m.end(gen, ReasonInactivity)
}

func (m *Manager) onRenewalTimer() {
	_, gen, live := m.current()
	if !live {
		return
	}
	// The exchange carries its own request timeout.
	if _, err := m.renew(context.Background()); err != nil {
		// Only a failed exchange ends the session; a renewal that lost the
		// race with logout or a new login has nothing left to end.
		if !apperrors.Is(err, apperrors.ErrRenewalFailed) {
			log.Debug().Err(err).Msg("Renewal timer skipped termination")
			return
		}
		m.end(gen, ReasonExpired)
	}
}

// Terminate ends the current session for reason. It is a no-op when
// logged out.
func (m *Manager) Terminate(reason Reason) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()
	m.end(gen, reason)
}

// end tears down the session identified by gen. Completions that belong to
// an earlier session find a newer generation and do nothing.
func (m *Manager) end(gen uint64, reason Reason) bool {
	m.mu.Lock()
	if m.state != Live || m.generation != gen {
		m.mu.Unlock()
		return false
	}

	m.state = Terminating
	m.stopLifecycleLocked()
	if err := m.store.Delete(); err != nil {
		log.Err(err).Msg("Failed to delete persisted token")
	}
	m.token = ""
	m.user = Identity{}
	m.generation++
	ended := m.generation
	m.state = LoggedOut
	m.mu.Unlock()

	m.metrics.Live.Set(0)
	m.metrics.Terminations.WithLabelValues(string(reason)).Inc()
	log.Info().Str("reason", string(reason)).Msg("Session ended")

	level, message := m.farewell(reason)
	m.notifier.Notify(level, message)

	if reason == ReasonLogout {
		m.enterLoggedOut(ended)
	} else {
		m.clock.AfterFunc(m.settings.GetTerminateDelay(), func() { m.enterLoggedOut(ended) })
	}
	return true
}

// enterLoggedOut runs the logged-out hook unless a new session started in
// the meantime.
func (m *Manager) enterLoggedOut(gen uint64) {
	m.mu.Lock()
	stillOut := m.state == LoggedOut && m.generation == gen
	m.mu.Unlock()

	if stillOut && m.onLoggedOut != nil {
		m.onLoggedOut()
	}
}

func (m *Manager) farewell(reason Reason) (notify.Level, string) {
	switch reason {
	case ReasonLogout:
		return notify.Success, "Logged out successfully."
	case ReasonInactivity:
		return notify.Warning, fmt.Sprintf("You were logged out after %s of inactivity. Please log in again.", m.settings.GetInactivityTimeout())
	default:
		return notify.Error, "Your session has expired. Please log in again."
	}
}
