// Package auth checks configured users and issues the bearer tokens used by the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials covers both unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNoSecret           = errors.New("jwt secret is not configured")
)

const (
	issuer     = "ayudapo"
	DefaultTTL = 8 * time.Hour
)

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// compareDummy spends the same bcrypt work as a real check, for unknown users.
func compareDummy(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("ayudapo"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Claims are the token claims; the subject is the user name.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator holds the configured users (name → bcrypt hash) and the signing secret.
type Authenticator struct {
	users  map[string][]byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(users map[string]string, secret string, ttl time.Duration) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	a := &Authenticator{
		users:  make(map[string][]byte, len(users)),
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for name, hash := range users {
		name = strings.TrimSpace(name)
		if name == "" || strings.TrimSpace(hash) == "" {
			continue
		}
		a.users[name] = []byte(strings.TrimSpace(hash))
	}
	return a, nil
}

// HashPassword returns the bcrypt hash to put in the auth.users config.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (a *Authenticator) HasUsers() bool { return len(a.users) > 0 }

// Authenticate checks a user name and password. Unknown users still run a bcrypt compare.
func (a *Authenticator) Authenticate(user, password string) error {
	hash, ok := a.users[strings.TrimSpace(user)]
	if !ok {
		compareDummy(password)
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// IssueToken signs an HS256 token for user valid for the configured TTL.
func (a *Authenticator) IssueToken(user string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken validates a token and returns its subject.
func (a *Authenticator) ParseToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	var claims Claims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
