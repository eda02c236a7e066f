// Package session keeps an authenticated client session alive. A Manager
// owns the bearer token, renews it before the server's validity window
// closes, ends the session after prolonged inactivity and is the single
// chokepoint through which authenticated requests pass.
package session

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-vault-session/activity"
	"github.com/jrsteele09/go-vault-session/api"
	"github.com/jrsteele09/go-vault-session/internal/clock"
	"github.com/jrsteele09/go-vault-session/internal/config"
	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/jrsteele09/go-vault-session/notify"
	"github.com/jrsteele09/go-vault-session/tokenstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Backend is the subset of the storage API the manager depends on.
type Backend interface {
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
	UserInfo(ctx context.Context, token string) (*api.UserInfo, error)
	RefreshToken(ctx context.Context, token string) (string, error)
	NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error)
	Do(req *http.Request) (*http.Response, error)
}

var _ Backend = (*api.Client)(nil)

type Manager struct {
	backend     Backend
	store       tokenstore.Repo
	notifier    notify.Notifier
	activity    activity.Source
	clock       clock.Clock
	settings    config.SessionConfig
	metrics     *Metrics
	onLoggedOut func()

	sched        *scheduler
	renewals     singleflight.Group
	renewWaiters atomic.Int32
	lastActivity atomic.Int64

	mu          sync.Mutex
	state       State
	token       string
	user        Identity
	generation  uint64
	unsubscribe func()
}

type ManagerOption func(*Manager)

func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithSettings(settings config.SessionConfig) ManagerOption {
	return func(m *Manager) {
		m.settings = settings
	}
}

// WithActivitySource subscribes RecordActivity to the qualifying interaction
// kinds of source while the lifecycle runs.
func WithActivitySource(source activity.Source) ManagerOption {
	return func(m *Manager) {
		m.activity = source
	}
}

func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithOnLoggedOut sets the callback that moves the UI to its logged-out entry point.
func WithOnLoggedOut(fn func()) ManagerOption {
	return func(m *Manager) {
		m.onLoggedOut = fn
	}
}

func New(backend Backend, store tokenstore.Repo, notifier notify.Notifier, options ...ManagerOption) *Manager {
	m := &Manager{
		backend:  backend,
		store:    store,
		notifier: notifier,
	}
	for _, opt := range options {
		opt(m)
	}

	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.settings == nil {
		m.settings = config.DefaultSession()
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	m.sched = newScheduler(m.clock)
	return m
}

// Login authenticates against the backend and starts a session with the
// returned token.
func (m *Manager) Login(ctx context.Context, username, password string) (Identity, error) {
	resp, err := m.backend.Login(ctx, username, password)
	if err != nil {
		log.Err(err).Str("username", username).Msg("Login failed")
		m.notifier.Notify(notify.Error, "Login failed: "+loginFailureMessage(err))
		return Identity{}, err
	}

	identity := Identity{UserID: resp.UserID, Username: resp.Username}
	if err := m.Establish(resp.AccessToken, identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// Restore resumes a persisted session at startup. A missing or rejected
// token leaves the manager logged out without notifying anyone.
func (m *Manager) Restore(ctx context.Context) bool {
	token, err := m.store.Load()
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrTokenNotFound) {
			log.Err(err).Msg("Failed to load persisted token")
		}
		return false
	}

	info, ok := m.validate(ctx, token)
	if !ok {
		if err := m.store.Delete(); err != nil {
			log.Err(err).Msg("Failed to delete stale token")
		}
		return false
	}

	if err := m.Establish(token, Identity{Username: info.Username}); err != nil {
		log.Err(err).Msg("Failed to restore session")
		return false
	}
	return true
}

// Validate reports whether the server still accepts the current token.
func (m *Manager) Validate(ctx context.Context) bool {
	token := m.Token()
	if token == "" {
		return false
	}
	_, ok := m.validate(ctx, token)
	return ok
}

func (m *Manager) validate(ctx context.Context, token string) (*api.UserInfo, bool) {
	info, err := m.backend.UserInfo(ctx, token)
	if err != nil {
		log.Debug().Err(err).Msg("Token validation failed")
		return nil, false
	}
	return info, true
}

// Establish makes token the live session's credential, persists it and
// starts the lifecycle. A session that was already live is replaced.
func (m *Manager) Establish(token string, identity Identity) error {
	if token == "" {
		return apperrors.Wrapf(apperrors.ErrUnauthenticated, "empty token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Live {
		m.stopLifecycleLocked()
	}
	m.generation++
	m.token = token
	m.user = identity
	m.state = Live
	if err := m.store.Save(token); err != nil {
		log.Err(err).Msg("Failed to persist token")
	}
	m.startLifecycleLocked()
	m.metrics.Live.Set(1)

	log.Info().Str("username", identity.Username).Msg("Session established")
	return nil
}

// Logout ends the session voluntarily.
func (m *Manager) Logout() {
	m.Terminate(ReasonLogout)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the live bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) User() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user, m.state == Live
}

// TokenSource exposes the live token to oauth2-aware HTTP clients. It does
// not renew; renewal stays with the manager.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return tokenSource{m: m}
}

type tokenSource struct {
	m *Manager
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	token := ts.m.Token()
	if token == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

func (m *Manager) current() (string, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.generation, m.state == Live
}

func loginFailureMessage(err error) string {
	var apiErr *api.Error
	if apperrors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if apperrors.Is(err, apperrors.ErrInvalidCredentials) {
		return "invalid credentials"
	}
	return err.Error()
}

func (m *Manager) now() time.Time {
	return m.clock.Now()
}
