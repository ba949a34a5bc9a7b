// Package auth issues and verifies anonymous identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

const issuerName = "kvartali"

// Claims are the JWT claims of an anonymous identity. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Identity is an issued anonymous user.
type Identity struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issuer mints and verifies HS256 tokens for anonymous users.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. secret must be non-empty and ttl positive.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: ttl must be positive")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue mints a new anonymous identity with a random v4 uuid.
func (i *Issuer) Issue() (Identity, error) {
	now := i.now()
	userID := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Identity{}, fmt.Errorf("sign token: %w", err)
	}
	return Identity{UserID: userID, Token: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify validates token and returns its user id. Failures wrap domain.ErrAuthenticationFailed.
func (i *Issuer) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: invalid claims", domain.ErrAuthenticationFailed)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: malformed subject", domain.ErrAuthenticationFailed)
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// Session authenticates one client connection. A presented token is verified; without one a
// fresh identity is minted. The resulting identity is remembered.
type Session struct {
	issuer   *Issuer
	token    string
	identity Identity
}

// NewSession prepares a Session for an optional presented token.
func NewSession(issuer *Issuer, presented string) *Session {
	return &Session{issuer: issuer, token: presented}
}

// AuthenticateAnonymously resolves the session's user id.
func (s *Session) AuthenticateAnonymously(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	if s.identity.UserID != "" {
		return s.identity.UserID, nil
	}
	if s.issuer == nil {
		return "", fmt.Errorf("%w: no issuer configured", domain.ErrAuthenticationFailed)
	}
	if s.token != "" {
		userID, err := s.issuer.Verify(s.token)
		if err != nil {
			return "", err
		}
		s.identity = Identity{UserID: userID, Token: s.token}
		return userID, nil
	}
	id, err := s.issuer.Issue()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	s.identity = id
	return id.UserID, nil
}

// Identity returns the resolved identity, empty before AuthenticateAnonymously succeeds.
func (s *Session) Identity() Identity { return s.identity }
