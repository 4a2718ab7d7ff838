// Package admin authenticates the single operator account and issues the
// session cookie that guards admin routes.
package admin

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "openletter/pkg/domain-errors"
)

const (
	sessionIssuer   = "openletter"
	sessionAudience = "openletter-admin"
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 12 * time.Hour

// ErrMissingSessionKey is returned when sessions are built without a key.
var ErrMissingSessionKey = errors.New("admin session signing key is required")

// Claims are the JWT claims carried in the session cookie.
type Claims struct {
	jwt.RegisteredClaims
}

// Sessions issues and validates HS256 session tokens.
type Sessions struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewSessions(signingKey string, ttl time.Duration) (*Sessions, error) {
	if signingKey == "" {
		return nil, ErrMissingSessionKey
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{signingKey: []byte(signingKey), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for subject and its expiry.
func (s *Sessions) Issue(subject string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    sessionIssuer,
			Audience:  []string{sessionAudience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateSession checks signature, expiry, issuer and audience and returns the
// subject.
func (s *Sessions) ValidateSession(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	return claims.Subject, nil
}
