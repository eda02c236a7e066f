package config

import (
	"os"
	"path/filepath"
)

const (
	appNameVar       = "APP_NAME"
	baseURLVar       = "BASE_URL"
	folderEnvVar     = "FOLDER"
	logLevelVar      = "LOG_LEVEL"
	sessionConfigVar = "SESSION_CONFIG"
	metricsAddrVar   = "METRICS_ADDR"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Vault Session")
}

// GetBaseURL returns the root URL of the storage backend (e.g., "https://files.example.com")
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:5000")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetSessionConfigPath() string {
	return GetEnv(sessionConfigVar, "")
}

// GetMetricsAddr is the listen address for the Prometheus endpoint. Empty disables it.
func (EnvVars) GetMetricsAddr() string {
	return GetEnv(metricsAddrVar, "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// TokenDatabasePath is where the persisted bearer token lives inside the data folder.
func TokenDatabasePath(c EnvConfig) string {
	return filepath.Join(c.GetDataFolder(), "session.db")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
