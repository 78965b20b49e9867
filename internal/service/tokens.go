package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// emailClaims ties a signed link to one address and one flow. The standard
// iat claim has whole-second resolution, so the exact issue time travels in
// IssuedAtNano and the age check uses that.
type emailClaims struct {
	Email        string              `json:"email"`
	Purpose      domain.TokenPurpose `json:"purpose"`
	IssuedAtNano int64               `json:"iat_ns"`
	jwt.RegisteredClaims
}

func (c *emailClaims) issuedAt() time.Time {
	if c.IssuedAtNano > 0 {
		return time.Unix(0, c.IssuedAtNano)
	}
	return c.IssuedAt.Time
}

// Tokens issues and redeems the signed links sent by email (confirmation,
// password reset). Each purpose signs with its own key, derived from the
// configured secret and the purpose salt, so a token for one flow never
// verifies for another.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens creates a token service. A nil clock means time.Now.
func NewTokens(secret string, now func() time.Time) *Tokens {
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: []byte(secret), now: now}
}

// Issue signs email for purpose, stamped with the current time.
func (t *Tokens) Issue(email string, purpose domain.TokenPurpose) (string, error) {
	key, err := t.key(purpose)
	if err != nil {
		return "", err
	}
	now := t.now()
	claims := emailClaims{
		Email:        email,
		Purpose:      purpose,
		IssuedAtNano: now.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

// Redeem verifies token for purpose and returns the email it carries.
// Tokens older than the purpose's max age are rejected.
func (t *Tokens) Redeem(token string, purpose domain.TokenPurpose) (string, error) {
	key, err := t.key(purpose)
	if err != nil {
		return "", &domain.ErrInvalidToken{Reason: domain.TokenReasonInvalid}
	}

	claims := &emailClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return "", &domain.ErrInvalidToken{Reason: domain.TokenReasonInvalid}
	}
	if claims.Purpose != purpose || claims.Email == "" || claims.IssuedAt == nil {
		return "", &domain.ErrInvalidToken{Reason: domain.TokenReasonInvalid}
	}
	if t.now().Sub(claims.issuedAt()) > purpose.MaxAge() {
		return "", &domain.ErrInvalidToken{Reason: domain.TokenReasonExpired}
	}
	return claims.Email, nil
}

func (t *Tokens) key(purpose domain.TokenPurpose) ([]byte, error) {
	salt := purpose.Salt()
	if salt == "" {
		return nil, errors.New("unknown token purpose: " + string(purpose))
	}
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(salt))
	return mac.Sum(nil), nil
}
