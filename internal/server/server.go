// Package server exposes the HTTP API for the storefront: catalog,
// auth, purchases, downloads, comments, and the admin surface.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"spacebooks/internal/admingate"
	"spacebooks/internal/app"
	"spacebooks/internal/purchase"
	"spacebooks/internal/ratelimit"
	"spacebooks/internal/session"
	"spacebooks/internal/telegramauth"
	"spacebooks/internal/util"
	"spacebooks/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Sessions *session.Manager
	Verifier telegramauth.Verifier
	Gate     *admingate.Gate

	RedisAddr            string
	RedisPassword        string
	AuthRateLimitPerMin  int
	BuyRateLimitPerMin   int
	WriteRateLimitPerMin int

	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the storefront.
type Server struct {
	app            *app.App
	sessions       *session.Manager
	verifier       telegramauth.Verifier
	gate           *admingate.Gate
	mux            *http.ServeMux
	maxUploadBytes int64
	authLimiter    *ratelimit.FixedWindowLimiter
	buyLimiter     *ratelimit.FixedWindowLimiter
	writeLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiting is
// active only when a Redis address is supplied.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("telegram verifier required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("admin gate required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		sessions:       cfg.Sessions,
		verifier:       cfg.Verifier,
		gate:           cfg.Gate,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				limit = fallback
			}
			prefix := "spacebooks:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.authLimiter, err = newLimiter("auth", cfg.AuthRateLimitPerMin, 10); err != nil {
			return nil, err
		}
		if s.buyLimiter, err = newLimiter("purchase", cfg.BuyRateLimitPerMin, 10); err != nil {
			return nil, err
		}
		if s.writeLimiter, err = newLimiter("write", cfg.WriteRateLimitPerMin, 30); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/telegram", s.handleTelegramAuth)

	// profile
	s.mux.Handle("/api/me", s.authenticated(s.handleMe))
	s.mux.Handle("/api/me/language", s.authenticated(s.handleLanguage))
	s.mux.Handle("/api/me/wallet", s.authenticated(s.handleWallet))

	// catalog (public reads, comment writes behind auth inside)
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
	s.mux.Handle("/api/comments/", s.authenticated(s.handleCommentByID))

	// purchases
	s.mux.Handle("/api/purchases", s.authenticated(s.handlePurchases))

	// hidden admin entry
	s.mux.Handle("/api/profile/tap", s.authenticated(s.handleProfileTap))
	s.mux.Handle("/api/admin/unlock", s.authenticated(s.handleAdminUnlock))

	// admin
	s.mux.Handle("/api/admin/books", s.adminOnly(s.handleAdminBooks))
	s.mux.Handle("/api/admin/books/", s.adminOnly(s.handleAdminBookByID))
	s.mux.Handle("/api/admin/statistics", s.adminOnly(s.handleStatistics))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity carries the authenticated caller through a request.
type identity struct {
	User      domain.User
	SessionID string
}

type authHandler func(http.ResponseWriter, *http.Request, identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.authorize(w, r)
		if !ok {
			return
		}
		next(w, r, ident)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, ident identity) {
		if !ident.User.IsAdmin {
			s.audit(r, "admin.authorize", "fail", "user_id", ident.User.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		next(w, r, ident)
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (identity, bool) {
	token, ok := session.BearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return identity{}, false
	}
	sess, err := s.sessions.Verify(token)
	if err != nil {
		s.audit(r, "session.verify", "fail", "reason", "invalid_token")
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return identity{}, false
	}
	user, err := s.app.GetUser(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return identity{}, false
	}
	return identity{User: user, SessionID: sess.SessionID}, true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, nil),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, nil)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "rate_limited", msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps service sentinels to status and stable error codes.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, purchase.ErrWalletNotConnected):
		writeError(w, http.StatusConflict, "wallet_not_connected", err.Error())
	case errors.Is(err, purchase.ErrTransactionRejected):
		writeError(w, http.StatusPaymentRequired, "transaction_rejected", err.Error())
	case errors.Is(err, purchase.ErrTransactionExpired):
		writeError(w, http.StatusRequestTimeout, "transaction_expired", err.Error())
	case errors.Is(err, app.ErrBookNotFound),
		errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrCommentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, app.ErrNotEntitled):
		writeError(w, http.StatusForbidden, "not_entitled", err.Error())
	case errors.Is(err, app.ErrBookContentMissing):
		writeError(w, http.StatusConflict, "content_missing", err.Error())
	case errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrAuthorRequired),
		errors.Is(err, app.ErrCategoryRequired),
		errors.Is(err, app.ErrInvalidPrice),
		errors.Is(err, app.ErrCommentTextRequired),
		errors.Is(err, app.ErrInvalidRating),
		errors.Is(err, app.ErrWalletAddressRequired),
		errors.Is(err, app.ErrLanguageRequired):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
