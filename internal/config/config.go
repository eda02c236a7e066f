package config

type Config interface {
	EnvConfig
	SessionConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetDataFolder() string
	GetLogLevel() string
	GetSessionConfigPath() string
	GetMetricsAddr() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
}

// New builds the configuration from environment variables and, when
// SESSION_CONFIG names a file, the session settings it contains.
func New() (Config, error) {
	env := EnvVars{}
	session := DefaultSession()
	if path := env.GetSessionConfigPath(); path != "" {
		var err error
		if session, err = LoadSessionFile(path); err != nil {
			return nil, err
		}
	}
	return mainConfig{EnvVars: env, Session: session}, nil
}
