// Package token verifies the bearer tokens clients present in auth.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSubject = errors.New("token has no subject")

// JWT wraps a signing secret for issuing/verifying HS256 tokens.
type JWT struct{ secret []byte }

func New(secret string) *JWT { return &JWT{secret: []byte(secret)} }

// Verify checks signature and expiry and returns the sub claim.
func (j *JWT) Verify(tok string) (domain.UserID, error) {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return domain.UserID(claims.Subject), nil
}

// Sign issues a token for uid valid for ttl.
func (j *JWT) Sign(uid domain.UserID, ttl time.Duration) (string, error) {
	if uid == "" {
		return "", ErrNoSubject
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(uid),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}
