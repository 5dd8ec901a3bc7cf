package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, tampered and expired tokens alike.
// Callers are deliberately unable to tell tampering from expiry.
var ErrInvalidToken = errors.New("invalid token")

// HS256 needs at least 256 bits of key entropy.
const minSecretBytes = 32

type warnLogger interface {
	Warn(message string, fields map[string]any)
}

// Service issues and validates compact signed bearer tokens. A token
// carries only the principal identifier plus issued-at and expiry; roles
// and other mutable data stay in the database so they can never go stale
// inside a token.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret string, ttl time.Duration, logger warnLogger) *Service {
	if len(secret) < minSecretBytes && logger != nil {
		logger.Warn("jwt_secret_below_recommended_length", map[string]any{
			"length_bytes": len(secret),
			"minimum":      minSecretBytes,
		})
	}

	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token asserting principalID, valid from now until now+TTL.
func (s *Service) Issue(principalID string) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   principalID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return encoded, nil
}

// Validate returns the principal identifier a token asserts, or
// ErrInvalidToken when the signature does not verify, the claims are
// malformed, or the expiry has passed.
func (s *Service) Validate(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
