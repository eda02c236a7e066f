package clock_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-vault-session/internal/clock"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestFakeAdvanceFiresDueTimersInOrder(t *testing.T) {
	c := clock.NewFake(epoch)
	var fired []string

	c.AfterFunc(2*time.Second, func() { fired = append(fired, "second") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "first") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "late") })

	c.Advance(3 * time.Second)
	require.Equal(t, []string{"first", "second"}, fired)
	require.Equal(t, epoch.Add(3*time.Second), c.Now())
	require.Equal(t, 1, c.Pending())
}

func TestFakeStop(t *testing.T) {
	c := clock.NewFake(epoch)
	calls := 0
	timer := c.AfterFunc(time.Second, func() { calls++ })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	c.Advance(time.Minute)
	require.Zero(t, calls)
	require.Zero(t, c.Pending())
}

func TestFakeRunsTimersScheduledDuringAdvance(t *testing.T) {
	c := clock.NewFake(epoch)
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	require.Equal(t, 5, ticks)
}

func TestFiredTimerCannotBeStopped(t *testing.T) {
	c := clock.NewFake(epoch)
	timer := c.AfterFunc(time.Millisecond, func() {})
	c.Advance(time.Second)
	require.False(t, timer.Stop())
}
