package session

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-vault-session/api"
	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// Request builds a request for path against the backend and sends it
// through Do.
func (m *Manager) Request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if _, _, live := m.current(); !live {
		return nil, apperrors.ErrUnauthenticated
	}
	req, err := m.backend.NewRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return m.Do(req)
}

// Do sends req with the live bearer token. A 401 triggers exactly one
// renewal; if it succeeds the request is reissued once with the new token
// and that response is returned whatever its status. If renewal fails the
// session ends and ErrSessionExpired is returned. Other statuses are
// returned untouched.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	token, gen, live := m.current()
	if !live {
		return nil, apperrors.ErrUnauthenticated
	}
	if err := makeReplayable(req); err != nil {
		return nil, apperrors.Wrapf(err, "Manager.Do buffer body")
	}

	resp, err := m.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	discard(resp)

	requestID := uuid.NewString()
	log.Debug().Str("request_id", requestID).Str("url", req.URL.Redacted()).Msg("Request unauthorized, renewing session")

	fresh, err := m.renew(req.Context())
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if m.end(gen, ReasonExpired) {
			log.Warn().Str("request_id", requestID).Err(err).Msg("Session expired during request")
		}
		return nil, apperrors.Wrapf(apperrors.ErrSessionExpired, "%s %s", req.Method, req.URL.Redacted())
	}

	m.metrics.Retries.Inc()
	log.Debug().Str("request_id", requestID).Msg("Reissuing request with renewed token")
	return m.send(req, fresh)
}

func (m *Manager) send(req *http.Request, token string) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attempt.Body = body
	}
	api.SetBearer(attempt, token)
	return m.backend.Do(attempt)
}

// makeReplayable buffers a body that cannot be re-read so the request can
// be sent a second time.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}
