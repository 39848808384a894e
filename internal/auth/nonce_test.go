package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	m := NewNonceManager("secret", time.Hour)

	for _, id := range []int64{0, 1, 4242} {
		tok, err := m.Issue(id)
		require.NoError(t, err)

		s, err := m.Validate(tok)
		require.NoError(t, err)
		assert.Equal(t, id, s.UserID)
		assert.Equal(t, id > 0, s.LoggedIn())
	}
}

func TestValidateRejects(t *testing.T) {
	m := NewNonceManager("secret", time.Hour)
	good, err := m.Issue(7)
	require.NoError(t, err)
	parts := strings.Split(good, ".")
	require.Len(t, parts, 3)

	other := NewNonceManager("other-secret", time.Hour)
	foreign, err := other.Issue(7)
	require.NoError(t, err)

	wrongScope, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: "something.else",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "did:plc:abc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: ScopeNonce,
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":       "",
		"garbage":     "not-a-token",
		"tampered":    parts[0] + "." + parts[1] + "x." + parts[2],
		"foreign":     foreign,
		"wrong scope": wrongScope,
		"bad subject": badSubject,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.Validate(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateExpired(t *testing.T) {
	m := NewNonceManager("secret", time.Minute)
	issued := time.Now()
	m.now = func() time.Time { return issued }

	tok, err := m.Issue(3)
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = m.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDefaultTTLAndSecret(t *testing.T) {
	m := NewNonceManager("s", 0)
	assert.Equal(t, DefaultTTL, m.ttl)
	assert.Len(t, GenerateSecret(), 64)
}
