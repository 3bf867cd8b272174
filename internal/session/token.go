package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "leafcheck"

// Tokens signs and verifies session tokens with an HMAC secret.
type Tokens struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokens returns a signer whose tokens expire after maxAge.
func NewTokens(secret string, maxAge time.Duration) *Tokens {
	return &Tokens{secret: []byte(strings.TrimSpace(secret)), maxAge: maxAge, now: time.Now}
}

// Issue creates a new session id and its signed token.
func (t *Tokens) Issue() (id, token string, err error) {
	id = uuid.NewString()
	token, err = t.sign(id)
	if err != nil {
		return "", "", err
	}
	return id, token, nil
}

// Refresh verifies token and returns its session id. Once the token is
// past half of its lifetime, renewed carries a fresh token for the same id.
func (t *Tokens) Refresh(token string) (id, renewed string, err error) {
	claims, err := t.parse(token)
	if err != nil {
		return "", "", err
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Sub(t.now()) < t.maxAge/2 {
		renewed, err = t.sign(claims.Subject)
		if err != nil {
			return "", "", err
		}
	}
	return claims.Subject, renewed, nil
}

func (t *Tokens) sign(id string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   id,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.maxAge)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies token and returns the session id it carries.
func (t *Tokens) Parse(token string) (string, error) {
	claims, err := t.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (t *Tokens) parse(token string) (*jwt.RegisteredClaims, error) {
	if len(t.secret) == 0 {
		return nil, errors.New("missing session secret")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid session token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, errors.New("invalid session subject")
	}
	return claims, nil
}
