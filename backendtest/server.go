// Package backendtest runs an in-process stand-in for the file-storage
// backend. It issues HS256 bearer tokens with a fixed validity, checks
// credentials with bcrypt, counts calls per path and can inject
// authorization and renewal failures.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-vault-session/api"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const PathFiles = "/api/files"

type user struct {
	id           int64
	username     string
	email        string
	passwordHash string
}

type Server struct {
	*httptest.Server

	secret   []byte
	validity time.Duration
	nowFunc  func() time.Time

	mu            sync.Mutex
	users         map[string]*user
	revoked       map[string]struct{}
	calls         map[string]int
	lastTokens    map[string]string
	rejectNext    map[string]int
	refreshStatus int
	refreshHook   func()
}

type Option func(*Server)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithTokenValidity(validity time.Duration) Option {
	return func(s *Server) {
		s.validity = validity
	}
}

// New starts a server. Close it with Server.Close.
func New(options ...Option) *Server {
	s := &Server{
		secret:     []byte(uuid.NewString()),
		validity:   10 * time.Minute,
		nowFunc:    time.Now,
		users:      make(map[string]*user),
		revoked:    make(map[string]struct{}),
		calls:      make(map[string]int),
		lastTokens: make(map[string]string),
		rejectNext: make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.PathLogin, s.handleLogin)
	mux.HandleFunc("GET "+api.PathUserInfo, s.requireAuth(s.handleUserInfo))
	mux.HandleFunc("POST "+api.PathRefreshToken, s.requireAuth(s.handleRefresh))
	mux.HandleFunc(PathFiles, s.requireAuth(s.handleFiles))
	mux.HandleFunc("/api/", s.requireAuth(func(w http.ResponseWriter, r *http.Request, _ *user) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}))
	s.Server = httptest.NewServer(mux)
	return s
}

// AddUser registers credentials that the login endpoint accepts.
func (s *Server) AddUser(username, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return errors.Wrap(err, "Server.AddUser hash")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &user{
		id:           int64(len(s.users) + 1),
		username:     username,
		email:        email,
		passwordHash: string(hash),
	}
	return nil
}

// Issue mints a token for a registered user without going through login.
func (s *Server) Issue(username string) (string, error) {
	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return "", errors.Errorf("unknown user %q", username)
	}
	return s.sign(u)
}

// Revoke makes token unacceptable from now on.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = struct{}{}
}

// RejectNext answers the next n authenticated calls to path with 401.
func (s *Server) RejectNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext[path] = n
}

// FailRefresh makes the refresh endpoint answer with status. Zero restores
// normal behavior.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

// OnRefresh runs hook at the start of every refresh call.
func (s *Server) OnRefresh(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshHook = hook
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// LastToken returns the bearer token carried by the latest call to path.
func (s *Server) LastToken(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTokens[path]
}

func (s *Server) sign(u *user) (string, error) {
	now := s.nowFunc()
	claims := jwt.MapClaims{
		"sub": u.username,
		"iat": now.Unix(),
		"exp": now.Add(s.validity).Unix(),
		"jti": uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

func (s *Server) verify(raw string) (*user, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.nowFunc), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return nil, errors.Wrap(err, "token has no subject")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[raw]; ok {
		return nil, errors.New("token revoked")
	}
	u, ok := s.users[sub]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *user)

func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)

		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.lastTokens[r.URL.Path] = raw
		rejected := s.rejectNext[r.URL.Path] > 0
		if rejected {
			s.rejectNext[r.URL.Path]--
		}
		s.mu.Unlock()

		if rejected {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
			return
		}
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}
		u, err := s.verify(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": err.Error()})
			return
		}
		next(w, r, u)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.URL.Path]++
	s.mu.Unlock()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	token, err := s.sign(u)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, api.LoginResponse{AccessToken: token, UserID: u.id, Username: u.username})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request, u *user) {
	const quota = 1 << 30
	writeJSON(w, http.StatusOK, api.UserInfo{
		Username:     u.username,
		Email:        u.email,
		StorageQuota: quota,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	status := s.refreshStatus
	hook := s.refreshHook
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "refresh rejected"})
		return
	}
	token, err := s.sign(u)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, api.TokenResponse{AccessToken: token})
}

type fileEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request, u *user) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, []fileEntry{{ID: 1, Name: u.username + "-notes.txt", Size: 42}})
	case http.MethodPost:
		var entry fileEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil || entry.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}
		entry.ID = 2
		writeJSON(w, http.StatusCreated, entry)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func bearer(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
