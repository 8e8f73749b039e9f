package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mangareader/internal/ratelimit"
	"mangareader/internal/util"
	"mangareader/pkg/domain"
	"mangareader/services/api/internal/app"
)

const (
	defaultMaxUploadBytes = 500 << 20
	maxJSONBodyBytes      = 1 << 20
	multipartMemoryBytes  = 32 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Redis enables rate limiting of credential endpoints. Nil disables it.
	Redis                      redis.UniversalClient
	LoginRateLimitPerMinute    int
	RegisterRateLimitPerMinute int
	PasswordRateLimitPerMinute int
	MaxUploadBytes             int64
	AllowedOrigins             []string
	TrustedProxies             *util.TrustedProxies
}

// Server exposes the reader API over HTTP.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	maxUploadBytes  int64
	allowedOrigins  []string
	trusted         *util.TrustedProxies
	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
	passwordLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedOrigins: cfg.AllowedOrigins,
		trusted:        cfg.TrustedProxies,
	}
	if cfg.Redis != nil {
		newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				limit = fallback
			}
			limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, ratelimit.DefaultPrefix+":"+name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute, 10); err != nil {
			return nil, err
		}
		if s.registerLimiter, err = newLimiter("register", cfg.RegisterRateLimitPerMinute, 5); err != nil {
			return nil, err
		}
		if s.passwordLimiter, err = newLimiter("password", cfg.PasswordRateLimitPerMinute, 5); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog(h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("GET /api/auth/register-allowed", s.handleRegisterAllowed)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/auth/me", s.handleMe)
	s.mux.HandleFunc("PUT /api/auth/password", s.handleChangePassword)
	s.mux.HandleFunc("DELETE /api/auth/account", s.handleDeleteOwnAccount)

	// admin
	s.mux.HandleFunc("POST /api/admin/users", s.handleAdminCreateUser)
	s.mux.HandleFunc("GET /api/admin/users", s.handleAdminListUsers)
	s.mux.HandleFunc("PUT /api/admin/users/{id}", s.handleAdminUpdateUser)
	s.mux.HandleFunc("DELETE /api/admin/users/{id}", s.handleAdminDeleteUser)
	s.mux.HandleFunc("GET /api/admin/stats", s.handleAdminStats)
	s.mux.HandleFunc("GET /api/admin/config", s.handleAdminGetConfig)
	s.mux.HandleFunc("PUT /api/admin/config", s.handleAdminSetConfig)
	s.mux.HandleFunc("GET /api/admin/config/{key}", s.handleAdminGetConfigKey)
	s.mux.HandleFunc("GET /api/admin/config/registration", s.handleAdminGetRegistration)
	s.mux.HandleFunc("PUT /api/admin/config/registration", s.handleAdminSetRegistration)

	// catalog
	s.mux.HandleFunc("GET /api/manga", s.handleListWorks)
	s.mux.HandleFunc("POST /api/manga", s.handleCreateWork)
	s.mux.HandleFunc("GET /api/manga/{id}", s.handleGetWork)
	s.mux.HandleFunc("PUT /api/manga/{id}", s.handleUpdateWork)
	s.mux.HandleFunc("DELETE /api/manga/{id}", s.handleDeleteWork)
	s.mux.HandleFunc("POST /api/manga/{id}/upload", s.handleUploadChapter)
	s.mux.HandleFunc("GET /api/manga/{id}/chapters", s.handleListChapters)

	// pages
	s.mux.HandleFunc("GET /api/chapters/{id}/pages", s.handleListPages)
	s.mux.HandleFunc("GET /api/chapters/{id}/pages/{filename}", s.handleReadPage)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Manga Reader API", "status": "running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if r.URL.Path == "/health" {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// currentAccount resolves the caller or writes the failure response.
func (s *Server) currentAccount(w http.ResponseWriter, r *http.Request) (domain.Account, bool) {
	token, _ := bearerToken(r)
	account, err := s.app.CurrentAccount(r.Context(), token)
	if err != nil {
		s.audit(r, "auth.guard", "failure", "reason", err.Error())
		writeAppError(w, r, err)
		return domain.Account{}, false
	}
	return account, true
}

// requireAdmin is currentAccount plus the admin role check.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (domain.Account, bool) {
	token, _ := bearerToken(r)
	account, err := s.app.RequireAdmin(r.Context(), token)
	if err != nil {
		s.audit(r, "auth.admin_guard", "failure", "reason", err.Error())
		writeAppError(w, r, err)
		return domain.Account{}, false
	}
	return account, true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < len("Bearer ") || !strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len("Bearer "):])
	if token == "" {
		return "", false
	}
	return token, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type"))), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// writeAppError maps an app error onto a status code and public reason.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch app.Kind(err) {
	case app.KindBadRequest:
		status = http.StatusBadRequest
	case app.KindUnauthorized:
		status = http.StatusUnauthorized
		w.Header().Set("WWW-Authenticate", "Bearer")
	case app.KindForbidden:
		status = http.StatusForbidden
	case app.KindNotFound:
		status = http.StatusNotFound
	case app.KindConflict:
		status = http.StatusConflict
	}
	public := app.Public(err)
	if public == nil {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, public.Error())
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return defaultMaxUploadBytes
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate applies limiter to the caller's address. A nil limiter always allows.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter) bool {
	ok, retryAfter := limiter.Allow(r.Context(), util.ClientIP(r, s.trusted))
	if ok {
		return true
	}
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	s.audit(r, "rate_limit", "denied")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
	return false
}

