package session_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jrsteele09/go-vault-session/api"
	"github.com/jrsteele09/go-vault-session/backendtest"
	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/jrsteele09/go-vault-session/notify"
	"github.com/jrsteele09/go-vault-session/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRequestWithoutSessionMakesNoNetworkCall(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.manager.Request(context.Background(), http.MethodGet, backendtest.PathFiles, nil)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	require.Nil(t, resp)
	require.Zero(t, f.server.Calls(backendtest.PathFiles))
	require.Zero(t, f.server.Calls(api.PathRefreshToken))
}

func TestRequestAttachesBearerToken(t *testing.T) {
	f := setupTestFixture(t)
	token := f.login(t)

	resp, err := f.manager.Request(context.Background(), http.MethodGet, backendtest.PathFiles, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, token, f.server.LastToken(backendtest.PathFiles))
	require.Zero(t, f.server.Calls(api.PathRefreshToken))
}

func TestRequestRetriesOnceAfterRenewal(t *testing.T) {
	f := setupTestFixture(t)
	first := f.login(t)
	f.server.RejectNext(backendtest.PathFiles, 1)

	resp, err := f.manager.Request(context.Background(), http.MethodGet, backendtest.PathFiles, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, f.server.Calls(backendtest.PathFiles))
	require.Equal(t, 1, f.server.Calls(api.PathRefreshToken))

	second := f.manager.Token()
	require.NotEqual(t, first, second)
	require.Equal(t, second, f.server.LastToken(backendtest.PathFiles))
	require.Equal(t, second, f.storedToken(t))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Retries))
	require.Empty(t, f.notifier.Messages())
}

func TestRequestReturnsRetriedResultWithoutRetryingAgain(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.server.RejectNext(backendtest.PathFiles, 2)

	resp, err := f.manager.Request(context.Background(), http.MethodGet, backendtest.PathFiles, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 2, f.server.Calls(backendtest.PathFiles))
	require.Equal(t, 1, f.server.Calls(api.PathRefreshToken))
	require.Equal(t, session.Live, f.manager.State())
}

func TestRequestExpiresSessionWhenRenewalFails(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.server.RejectNext(backendtest.PathFiles, 1)
	f.server.FailRefresh(http.StatusUnauthorized)

	resp, err := f.manager.Request(context.Background(), http.MethodGet, backendtest.PathFiles, nil)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Nil(t, resp)

	require.Equal(t, session.LoggedOut, f.manager.State())
	require.Empty(t, f.storedToken(t))
	require.Equal(t, 1, f.server.Calls(api.PathRefreshToken))
	require.Equal(t, 1, f.server.Calls(backendtest.PathFiles))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Terminations.WithLabelValues(string(session.ReasonExpired))))

	messages := f.notifier.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, notify.Error, messages[0].Level)

	require.Zero(t, f.loggedOut.Load())
	f.clock.Advance(f.settings.GetTerminateDelay())
	require.Equal(t, int32(1), f.loggedOut.Load())
}

func TestApplicationFailuresPassThrough(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	resp, err := f.manager.Request(context.Background(), http.MethodGet, "/api/folders/99", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "not found", body["error"])
	require.Zero(t, f.server.Calls(api.PathRefreshToken))
	require.Equal(t, session.Live, f.manager.State())
}

func TestRetriedRequestReplaysBody(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.server.RejectNext(backendtest.PathFiles, 1)

	// MultiReader hides the concrete type so the request has no GetBody.
	body := io.MultiReader(strings.NewReader(`{"name":"report.pdf"}`))
	resp, err := f.manager.Request(context.Background(), http.MethodPost, backendtest.PathFiles, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, "report.pdf", created["name"])
}

func TestRequestCancelledDuringRenewalKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.server.RejectNext(backendtest.PathFiles, 1)

	ctx, cancel := context.WithCancel(context.Background())
	f.server.OnRefresh(cancel)

	_, err := f.manager.Request(ctx, http.MethodGet, backendtest.PathFiles, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, session.Live, f.manager.State())
	require.Empty(t, f.notifier.Messages())
}

func TestDoRequiresSession(t *testing.T) {
	f := setupTestFixture(t)
	req, err := f.client.NewRequest(context.Background(), http.MethodGet, backendtest.PathFiles, nil)
	require.NoError(t, err)

	_, err = f.manager.Do(req)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	require.Zero(t, f.server.Calls(backendtest.PathFiles))
}
