package session

import (
	"context"
	"fmt"
	"strconv"

	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// Renew exchanges the current token for a fresh one. It reports success
// only; on failure the stored token is left untouched.
func (m *Manager) Renew(ctx context.Context) bool {
	_, err := m.renew(ctx)
	return err == nil
}

// renew shares one backend exchange between every caller renewing the same
// session concurrently. The exchange runs detached from any single caller:
// a caller whose ctx ends stops waiting, the others still get the result.
func (m *Manager) renew(ctx context.Context) (string, error) {
	token, gen, live := m.current()
	if !live {
		return "", apperrors.ErrUnauthenticated
	}

	results := m.renewals.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.settings.GetRequestTimeout())
		defer cancel()
		return m.exchange(exchangeCtx, gen, token)
	})
	m.renewWaiters.Add(1)
	defer m.renewWaiters.Add(-1)

	select {
	case <-ctx.Done():
		log.Debug().Err(ctx.Err()).Msg("Stopped waiting for token renewal")
		return "", ctx.Err()
	case res := <-results:
		if res.Shared {
			log.Debug().Msg("Joined in-flight token renewal")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) exchange(ctx context.Context, gen uint64, token string) (string, error) {
	m.notifier.Renewing(true)
	defer func() {
		m.clock.AfterFunc(m.settings.GetRenewSignalLinger(), func() { m.notifier.Renewing(false) })
	}()

	fresh, err := m.backend.RefreshToken(ctx, token)
	if err != nil {
		m.metrics.Renewals.WithLabelValues(outcomeFailure).Inc()
		log.Warn().Err(err).Msg("Token renewal failed")
		return "", fmt.Errorf("%w: %w", apperrors.ErrRenewalFailed, err)
	}

	m.mu.Lock()
	if m.state != Live || m.generation != gen {
		m.mu.Unlock()
		m.metrics.Renewals.WithLabelValues(outcomeStale).Inc()
		log.Debug().Msg("Discarding renewal for ended session")
		return "", apperrors.ErrStaleSession
	}
	m.token = fresh
	if err := m.store.Save(fresh); err != nil {
		log.Err(err).Msg("Failed to persist renewed token")
	}
	m.mu.Unlock()

	m.metrics.Renewals.WithLabelValues(outcomeSuccess).Inc()
	log.Debug().Msg("Token renewed")
	return fresh, nil
}
