package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Client talks to the file-storage backend. It holds no credentials; callers
// pass the bearer token they want each call to carry.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "api.New parse base URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("api.New base URL %q must be absolute", baseURL)
	}

	c := &Client{baseURL: u, httpClient: &http.Client{}}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// NewRequest builds a request for path, which is resolved against the base
// URL unless it is already absolute.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "Client.NewRequest")
	}
	return req, nil
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Login exchanges credentials for a bearer token. A 401 wraps
// errors.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	payload, err := json.Marshal(LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, errors.Wrap(err, "Client.Login marshal")
	}
	req, err := c.NewRequest(ctx, http.MethodPost, PathLogin, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out LoginResponse
	if err := c.doJSON(req, &out); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "%s", apiErr.Message)
		}
		return nil, errors.Wrap(err, "Client.Login")
	}
	if out.AccessToken == "" {
		return nil, errors.New("Client.Login response has no access token")
	}
	return &out, nil
}

// UserInfo fetches the profile of the token's owner. Any non-200 status is
// returned as *Error.
func (c *Client) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, PathUserInfo, nil)
	if err != nil {
		return nil, err
	}
	SetBearer(req, token)

	var out UserInfo
	if err := c.doJSON(req, &out); err != nil {
		return nil, errors.Wrap(err, "Client.UserInfo")
	}
	return &out, nil
}

// RefreshToken exchanges a still-valid token for a fresh one.
func (c *Client) RefreshToken(ctx context.Context, token string) (string, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, PathRefreshToken, nil)
	if err != nil {
		return "", err
	}
	SetBearer(req, token)

	var out TokenResponse
	if err := c.doJSON(req, &out); err != nil {
		return "", errors.Wrap(err, "Client.RefreshToken")
	}
	if out.AccessToken == "" {
		return "", errors.New("Client.RefreshToken response has no access token")
	}
	return out.AccessToken, nil
}

// SetBearer attaches token as the request's bearer credential.
func SetBearer(req *http.Request, token string) {
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", errors.Wrapf(err, "Client.resolve %q", path)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// decodeError reads a {"error": "..."} body into *Error, tolerating bodies
// that are not JSON.
func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
