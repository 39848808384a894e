// Package auth issues and validates the session token the front end
// echoes back on protected requests. A token is an HS256 JWT bound to the
// caller's user id; anonymous visitors get a token for user 0, which
// passes the token check but never counts as logged in.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeNonce marks a token as a Multiplier session token.
const ScopeNonce = "multiplier.nonce"

// Header is the request header carrying the session token. The name is
// kept so the existing front end works unchanged.
const Header = "X-WP-Nonce"

// DefaultTTL is used when the manager is created with a zero TTL.
const DefaultTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims extends the standard JWT claims with a scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// Session is the identity carried by a validated token.
type Session struct {
	UserID int64
}

// LoggedIn reports whether the token belongs to a real user.
func (s Session) LoggedIn() bool { return s.UserID > 0 }

// NonceManager signs and validates session tokens using HS256.
type NonceManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewNonceManager creates a manager with the given HMAC secret and token
// lifetime.
func NewNonceManager(secret string, ttl time.Duration) *NonceManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &NonceManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateSecret returns a random 32-byte hex string for use as a secret.
func GenerateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Issue creates a token for userID. Pass 0 for an anonymous visitor.
func (m *NonceManager) Issue(userID int64) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Scope: ScopeNonce,
	})
	s, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign nonce: %w", err)
	}
	return s, nil
}

// Validate parses a token and returns the session it carries. Expired,
// tampered, foreign-scope and malformed tokens all wrap ErrInvalidToken.
func (m *NonceManager) Validate(tokenStr string) (Session, error) {
	if tokenStr == "" {
		return Session{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Session{}, fmt.Errorf("%w: claims", ErrInvalidToken)
	}
	if claims.Scope != ScopeNonce {
		return Session{}, fmt.Errorf("%w: wrong scope %q", ErrInvalidToken, claims.Scope)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID < 0 {
		return Session{}, fmt.Errorf("%w: subject %q", ErrInvalidToken, claims.Subject)
	}
	return Session{UserID: userID}, nil
}
