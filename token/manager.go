// Package token issues and validates the broker's own bearer tokens. These
// are the AuthTokens the management UI presents on every call; they are
// HS256 JWTs signed with a per-installation secret and never leave the
// local machine.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const issuer = "omnikey-broker"

type Manager struct {
	secret  []byte
	expiry  time.Duration
	nowFunc func() time.Time
}

type ManagerOption func(*Manager)

func WithExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.expiry = expiry
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(secret []byte, options ...ManagerOption) *Manager {
	m := &Manager{
		secret:  secret,
		expiry:  30 * 24 * time.Hour,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Create issues a signed token bound to the given username.
func (m *Manager) Create(username string) (string, error) {
	now := m.nowFunc()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Create] sign token")
	}
	return signed, nil
}

// Validate parses a token and returns the username it is bound to.
func (m *Manager) Validate(rawToken string) (string, error) {
	parsed, err := jwt.ParseWithClaims(rawToken, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.nowFunc), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// LoadOrCreateSecret reads the signing secret from the data folder, creating
// a fresh random one on first run. The secret never needs to survive a
// reinstall; rotating it just forces the UI through login again.
func LoadOrCreateSecret(dataFolder string) ([]byte, error) {
	path := filepath.Join(dataFolder, "jwt.secret")
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return data, nil
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, errors.Wrap(err, "[LoadOrCreateSecret] generate secret")
	}
	secret := []byte(hex.EncodeToString(raw))
	if err := os.MkdirAll(dataFolder, 0o755); err != nil {
		return nil, errors.Wrap(err, "[LoadOrCreateSecret] create data folder")
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, errors.Wrap(err, "[LoadOrCreateSecret] write secret")
	}
	return secret, nil
}
