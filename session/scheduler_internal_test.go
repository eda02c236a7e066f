package session

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-vault-session/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRearmReplacesSchedule(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := newScheduler(c)
	fired := 0

	s.arm(renewalTask, time.Minute, func() { fired++ })
	s.arm(renewalTask, time.Minute, func() { fired++ })
	require.Equal(t, 1, c.Pending())

	c.Advance(3 * time.Minute)
	require.Equal(t, 3, fired)
}

func TestSchedulerDisarmAllStopsEveryTask(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := newScheduler(c)
	fired := 0

	s.arm(renewalTask, time.Minute, func() { fired++ })
	s.arm(watchdogTask, time.Second, func() { fired++ })
	require.True(t, s.armed(renewalTask))
	require.True(t, s.armed(watchdogTask))

	s.disarmAll()
	s.disarmAll()
	c.Advance(time.Hour)

	require.Zero(t, fired)
	require.False(t, s.armed(renewalTask))
	require.False(t, s.armed(watchdogTask))
}

func TestSchedulerTaskCanDisarmItself(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	s := newScheduler(c)
	fired := 0

	s.arm(watchdogTask, time.Second, func() {
		fired++
		s.disarmAll()
	})
	c.Advance(time.Minute)

	require.Equal(t, 1, fired)
	require.Zero(t, c.Pending())
}
