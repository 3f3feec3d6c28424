package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smart-docqa-client/internal/repository/contract"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned by Claims when the token is not a readable JWT
var ErrOpaqueToken = errors.New("token is not a JWT")

// TokenClaims is the subset of token claims shown to the user
type TokenClaims struct {
	Subject   string
	ExpiresAt *time.Time
}

// Expired reports whether the token carried an exp claim that lies before now
func (c *TokenClaims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Manager owns the bearer token. Durable storage is the source of truth; the
// in-memory copy is a cache of it.
type Manager struct {
	tokenRepo contract.ITokenRepository
	key       string

	mu    sync.RWMutex
	token string
}

// NewManager creates a session manager storing the token under key
func NewManager(tokenRepo contract.ITokenRepository, key string) *Manager {
	return &Manager{tokenRepo: tokenRepo, key: key}
}

// Load reads the persisted token, returning "" when none is stored
func (m *Manager) Load(ctx context.Context) (string, error) {
	token, err := m.tokenRepo.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, contract.ErrTokenNotFound) {
			m.setMemory("")
			return "", nil
		}
		return "", fmt.Errorf("load token: %w", err)
	}
	m.setMemory(token)
	return token, nil
}

// Set persists token then caches it in memory
func (m *Manager) Set(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := m.tokenRepo.Save(ctx, m.key, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	m.setMemory(token)
	return nil
}

// Clear removes the token from storage and then from memory. On a storage
// failure the in-memory token is kept so both stay identical.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.tokenRepo.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	m.setMemory("")
	return nil
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) IsAuthenticated() bool {
	return m.Token() != ""
}

// Claims decodes the JWT payload of the current token without verifying its signature.
// The result is informational only.
func (m *Manager) Claims() (*TokenClaims, error) {
	token := m.Token()
	if token == "" {
		return nil, errors.New("not authenticated")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrOpaqueToken
	}

	out := &TokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}
	return out, nil
}

func (m *Manager) setMemory(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}
