package api

import "fmt"

const (
	PathLogin        = "/api/login"
	PathUserInfo     = "/api/user-info"
	PathRefreshToken = "/api/refresh-token"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by the login endpoint.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
}

// TokenResponse is returned by the refresh endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

type UserInfo struct {
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	StorageQuota   int64   `json:"storage_quota"`
	StorageUsed    int64   `json:"storage_used"`
	StoragePercent float64 `json:"storage_percent"`
}

// Error is a non-success response from the backend. Message carries the
// backend's "error" field when present.
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}
