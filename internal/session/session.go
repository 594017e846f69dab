// Package session issues and verifies HS256 session tokens. The token's
// subject is the user id and its jti doubles as the session id the admin
// gate keys on.
package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"spacebooks/internal/util"
)

const (
	// DefaultTTL is the default session lifetime.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultLeeway is clock skew tolerance for token validation.
	DefaultLeeway = 15 * time.Second

	issuer = "spacebooks"
)

// ErrInvalidToken covers every verification failure; callers treat them
// all as an unauthenticated request.
var ErrInvalidToken = errors.New("invalid session token")

// Session identifies an authenticated caller.
type Session struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// Manager signs and verifies session tokens with a shared HS256 secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewManager builds a manager. The secret must be non-empty.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		leeway: DefaultLeeway,
		now:    time.Now,
	}, nil
}

// WithClock overrides the manager clock. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue mints a session token for the user.
func (m *Manager) Issue(userID string) (string, Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", Session{}, errors.New("user id is required")
	}
	now := m.now().UTC()
	sess := Session{
		UserID:    userID,
		SessionID: util.NewID(),
		ExpiresAt: now.Add(m.ttl),
	}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   sess.UserID,
		ID:        sess.SessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Session{}, err
	}
	return token, sess, nil
}

// Verify validates signature, expiry, and issuer.
func (m *Manager) Verify(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidToken
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unsupported signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return Session{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return Session{}, ErrInvalidToken
	}
	return Session{
		UserID:    claims.Subject,
		SessionID: claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// BearerToken extracts a bearer token from a request header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
