package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-vault-session/activity"
	"github.com/jrsteele09/go-vault-session/api"
	"github.com/jrsteele09/go-vault-session/backendtest"
	"github.com/jrsteele09/go-vault-session/internal/clock"
	"github.com/jrsteele09/go-vault-session/internal/config"
	"github.com/jrsteele09/go-vault-session/notify/notifyfake"
	"github.com/jrsteele09/go-vault-session/session"
	tokenrepofake "github.com/jrsteele09/go-vault-session/tokenstore/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "alice"
	testEmail    = "alice@example.com"
	testPassword = "password123"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// testFixture wires a manager to an in-process backend with a fake clock.
type testFixture struct {
	clock     *clock.Fake
	server    *backendtest.Server
	client    *api.Client
	store     *tokenrepofake.FakeTokenRepo
	notifier  *notifyfake.Recorder
	bus       *activity.Bus
	metrics   *session.Metrics
	settings  config.Session
	loggedOut atomic.Int32
	manager   *session.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		clock:    clock.NewFake(epoch),
		store:    tokenrepofake.NewFakeTokenRepo(),
		notifier: notifyfake.NewRecorder(),
		bus:      activity.NewBus(),
		metrics:  session.NewMetrics(prometheus.NewRegistry()),
		settings: config.DefaultSession(),
	}

	f.server = backendtest.New(
		backendtest.WithNowFunc(f.clock.Now),
		backendtest.WithTokenValidity(f.settings.GetTokenValidity()),
	)
	t.Cleanup(f.server.Close)
	require.NoError(t, f.server.AddUser(testUsername, testEmail, testPassword))

	var err error
	f.client, err = api.New(f.server.URL, api.WithTimeout(5*time.Second))
	require.NoError(t, err)

	f.manager = session.New(f.client, f.store, f.notifier,
		session.WithClock(f.clock),
		session.WithSettings(f.settings),
		session.WithActivitySource(f.bus),
		session.WithMetrics(f.metrics),
		session.WithOnLoggedOut(func() { f.loggedOut.Add(1) }),
	)
	t.Cleanup(f.manager.StopLifecycle)
	return f
}

// login starts a session and returns its first token.
func (f *testFixture) login(t *testing.T) string {
	t.Helper()
	_, err := f.manager.Login(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	require.Equal(t, session.Live, f.manager.State())
	return f.manager.Token()
}

func (f *testFixture) storedToken(t *testing.T) string {
	t.Helper()
	token, _ := f.store.Load()
	return token
}
