package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/cache"
	"github.com/boddenberg/securebank-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accessTokenType = "access"

// SessionClaims are the custom claims carried by access tokens.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// Sessions issues and validates access tokens. Logged-out session IDs are
// remembered until the token would have expired anyway.
type Sessions struct {
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	revoked port.RevocationStore
}

// NewSessions creates a session service. A nil revocation store keeps
// revocations in process memory; a nil clock means time.Now.
func NewSessions(secret string, ttl time.Duration, revoked port.RevocationStore, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	if revoked == nil {
		revoked = cache.NewRevocationStore()
	}
	return &Sessions{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     now,
		revoked: revoked,
	}
}

// TTL returns the access token lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue starts a new session for username.
func (s *Sessions) Issue(username string) (string, *domain.Session, error) {
	now := s.now()
	session := &domain.Session{
		Username:  username,
		SessionID: uuid.NewString(),
		ExpiresAt: now.Add(s.ttl),
	}
	claims := SessionClaims{
		SessionID: session.SessionID,
		Type:      accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			Issuer:    "securebank",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, session, nil
}

// Validate parses an access token and returns its session.
func (s *Sessions) Validate(ctx context.Context, tokenString string) (*domain.Session, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "session expired, please log in again"}
	}
	if claims.Type != accessTokenType || claims.Subject == "" || claims.SessionID == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid session token"}
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("check session revocation: %w", err)
	}
	if revoked {
		return nil, &domain.ErrUnauthorized{Message: "session has ended, please log in again"}
	}

	return &domain.Session{
		Username:  claims.Subject,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke ends a session before its token expires.
func (s *Sessions) Revoke(ctx context.Context, sessionID string) error {
	return s.revoked.Revoke(ctx, sessionID, s.ttl)
}
