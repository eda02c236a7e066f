package config

import (
	"time"

	"github.com/BurntSushi/toml"
	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
)

type SessionConfig interface {
	GetTokenValidity() time.Duration
	GetRenewInterval() time.Duration
	GetWatchdogInterval() time.Duration
	GetInactivityTimeout() time.Duration
	GetTerminateDelay() time.Duration
	GetRenewSignalLinger() time.Duration
	GetRequestTimeout() time.Duration
	GetTokenKey() string
}

// Duration decodes TOML strings such as "8m" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Session holds the session lifecycle settings. The renewal interval is
// derived from the token validity and RenewRatio unless set explicitly.
type Session struct {
	TokenValidity     Duration `toml:"token_validity"`
	RenewRatio        float64  `toml:"renew_ratio"`
	RenewInterval     Duration `toml:"renew_interval"`
	WatchdogInterval  Duration `toml:"watchdog_interval"`
	InactivityTimeout Duration `toml:"inactivity_timeout"`
	TerminateDelay    Duration `toml:"terminate_delay"`
	RenewSignalLinger Duration `toml:"renew_signal_linger"`
	RequestTimeout    Duration `toml:"request_timeout"`
	TokenKey          string   `toml:"token_key"`
}

var _ SessionConfig = Session{}

func DefaultSession() Session {
	return Session{
		TokenValidity:     Duration{10 * time.Minute},
		RenewRatio:        0.8,
		WatchdogInterval:  Duration{30 * time.Second},
		InactivityTimeout: Duration{15 * time.Minute},
		TerminateDelay:    Duration{2 * time.Second},
		RenewSignalLinger: Duration{time.Second},
		RequestTimeout:    Duration{30 * time.Second},
		TokenKey:          "authToken",
	}
}

// LoadSessionFile decodes a TOML file over the defaults and validates the result.
func LoadSessionFile(path string) (Session, error) {
	s := DefaultSession()
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Session{}, apperrors.Wrapf(err, "config.LoadSessionFile %s", path)
	}
	if err := s.Validate(); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Validate checks that renewal happens strictly inside the validity window
// and that every interval is positive.
func (s Session) Validate() error {
	if s.TokenValidity.Duration <= 0 || s.WatchdogInterval.Duration <= 0 || s.InactivityTimeout.Duration <= 0 {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "intervals must be positive")
	}
	if s.RenewInterval.Duration == 0 && (s.RenewRatio <= 0 || s.RenewRatio >= 1) {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "renew_ratio %.2f must be between 0 and 1", s.RenewRatio)
	}
	if s.GetRenewInterval() <= 0 || s.GetRenewInterval() >= s.TokenValidity.Duration {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "renew interval %s must be shorter than token validity %s", s.GetRenewInterval(), s.TokenValidity)
	}
	if s.TokenKey == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "token_key is required")
	}
	return nil
}

func (s Session) GetTokenValidity() time.Duration {
	return s.TokenValidity.Duration
}

func (s Session) GetRenewInterval() time.Duration {
	if s.RenewInterval.Duration > 0 {
		return s.RenewInterval.Duration
	}
	return time.Duration(float64(s.TokenValidity.Duration) * s.RenewRatio)
}

func (s Session) GetWatchdogInterval() time.Duration {
	return s.WatchdogInterval.Duration
}

func (s Session) GetInactivityTimeout() time.Duration {
	return s.InactivityTimeout.Duration
}

func (s Session) GetTerminateDelay() time.Duration {
	return s.TerminateDelay.Duration
}

func (s Session) GetRenewSignalLinger() time.Duration {
	return s.RenewSignalLinger.Duration
}

func (s Session) GetRequestTimeout() time.Duration {
	return s.RequestTimeout.Duration
}

func (s Session) GetTokenKey() string {
	return s.TokenKey
}
