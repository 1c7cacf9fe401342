// Package auth provides password hashing and JWT issuance/verification for
// the HTTP API. Tokens are HS256-signed bearer tokens carrying the user id
// in the sub claim.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken reports a missing, malformed, expired, or wrongly signed token.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrInvalidCredentials reports a failed email/password check. The message is
// identical for unknown users and wrong passwords so the API does not leak
// which emails are registered.
var ErrInvalidCredentials = errors.New("auth: invalid email or password")

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 30 * time.Minute

// Manager issues and verifies access tokens and hashes passwords.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager constructs a Manager with the given signing secret and token
// lifetime. A non-positive ttl falls back to DefaultTokenTTL.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken returns a signed access token for the given user id.
func (m *Manager) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates an access token and returns the user id
// it was issued for. All failures map to ErrInvalidToken.
func (m *Manager) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
