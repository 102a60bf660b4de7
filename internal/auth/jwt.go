// Package auth issues and validates the bearer tokens that bind a client to one weather session.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/NomadCrew/nomad-weather/errors"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "nomad-weather"

// SessionClaims are carried by a session token.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// GenerateSessionToken signs an HS256 token for sessionID valid for ttl.
func GenerateSessionToken(sessionID, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("session token secret is empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("session token ttl must be positive")
	}

	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateSessionToken parses tokenString and returns its claims.
func ValidateSessionToken(tokenString, secret string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)

	if err != nil || !token.Valid {
		return nil, errors.Unauthorized("invalid_token", "Invalid session token")
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.SessionID == "" {
		return nil, errors.Unauthorized("invalid_claims", "Invalid token structure")
	}

	return claims, nil
}

// GenerateSecret returns a random URL-safe secret built from length random bytes.
func GenerateSecret(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
