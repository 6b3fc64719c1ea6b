// Package utils provides token and hashing helpers for the mock POS server.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by ParseAccessToken for tokens that are
// malformed, expired, signed with another key or missing claims.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken is a signed waiter token along with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// WaiterClaims is what a verified access token says about its bearer.
type WaiterClaims struct {
	WaiterID int64
	Name     string
	Exp      time.Time
}

// NewAccessToken builds and signs an HS256 JWT for a waiter.  The token
// carries the waiter id as sub, the display name, exp and iat.
func NewAccessToken(secret string, waiterID int64, name string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  waiterID,
		"name": name,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and extracts the waiter
// claims.  Only HMAC signing methods are accepted.
func ParseAccessToken(secret, raw string) (WaiterClaims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return WaiterClaims{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return WaiterClaims{}, ErrInvalidToken
	}
	// json numbers decode as float64
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return WaiterClaims{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	out := WaiterClaims{WaiterID: int64(sub), Name: name}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.Exp = exp.Time
	}
	return out, nil
}

// NewInstanceID returns a random hex id used to tell server processes apart
// across restarts.
func NewInstanceID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
