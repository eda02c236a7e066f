package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-vault-session/api"
	"github.com/jrsteele09/go-vault-session/backendtest"
	"github.com/jrsteele09/go-vault-session/internal/clock"
	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "alice"
	testEmail    = "alice@example.com"
	testPassword = "password123"
)

func setup(t *testing.T, options ...backendtest.Option) (*backendtest.Server, *api.Client) {
	t.Helper()
	srv := backendtest.New(options...)
	t.Cleanup(srv.Close)
	require.NoError(t, srv.AddUser(testUsername, testEmail, testPassword))

	client, err := api.New(srv.URL, api.WithTimeout(5*time.Second))
	require.NoError(t, err)
	return srv, client
}

func TestLoginReturnsToken(t *testing.T) {
	_, client := setup(t)

	resp, err := client.Login(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, testUsername, resp.Username)
	require.Equal(t, int64(1), resp.UserID)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, client := setup(t)

	_, err := client.Login(context.Background(), testUsername, "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Contains(t, err.Error(), "Invalid credentials")
}

func TestUserInfoAndRefresh(t *testing.T) {
	srv, client := setup(t)
	ctx := context.Background()

	token, err := srv.Issue(testUsername)
	require.NoError(t, err)

	info, err := client.UserInfo(ctx, token)
	require.NoError(t, err)
	require.Equal(t, testEmail, info.Email)
	require.Equal(t, token, srv.LastToken(api.PathUserInfo))

	renewed, err := client.RefreshToken(ctx, token)
	require.NoError(t, err)
	require.NotEqual(t, token, renewed)
}

func TestUserInfoReturnsAPIErrorForExpiredToken(t *testing.T) {
	clk := clock.NewFake(time.Now())
	srv, client := setup(t, backendtest.WithNowFunc(clk.Now))

	token, err := srv.Issue(testUsername)
	require.NoError(t, err)
	clk.Advance(11 * time.Minute)

	_, err = client.UserInfo(context.Background(), token)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestRefreshTokenFailureStatus(t *testing.T) {
	srv, client := setup(t)
	srv.FailRefresh(http.StatusInternalServerError)

	token, err := srv.Issue(testUsername)
	require.NoError(t, err)

	_, err = client.RefreshToken(context.Background(), token)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Equal(t, "refresh rejected", apiErr.Message)
}

func TestNewRequestResolvesPaths(t *testing.T) {
	client, err := api.New("https://files.example.com/")
	require.NoError(t, err)

	req, err := client.NewRequest(context.Background(), http.MethodGet, "/api/files?folder=3", nil)
	require.NoError(t, err)
	require.Equal(t, "https://files.example.com/api/files?folder=3", req.URL.String())

	req, err = client.NewRequest(context.Background(), http.MethodGet, "https://other.example.com/x", nil)
	require.NoError(t, err)
	require.Equal(t, "other.example.com", req.URL.Host)
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	_, err := api.New("files.example.com")
	require.Error(t, err)
}

func TestSetBearer(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://files.example.com", nil)
	require.NoError(t, err)
	api.SetBearer(req, "T1")
	require.Equal(t, "Bearer T1", req.Header.Get("Authorization"))
}
