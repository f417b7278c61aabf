package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"staybook/internal/domain"
)

const issuer = "staybook"

type Claims struct {
	jwt.RegisteredClaims
}

// JWT issues and verifies HS256 tokens whose subject is the user id.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (j *JWT) Issue(userID string) (string, error) {
	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWT) Verify(raw string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}
