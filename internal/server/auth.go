package server

import (
	"crypto/subtle"
	"sync"

	"github.com/google/uuid"
)

// AuthManager implements the single shared-secret code check. A successful
// login issues an opaque token held in memory; tokens die with the process.
type AuthManager struct {
	code   string
	mu     sync.RWMutex
	tokens map[string]struct{}
}

func NewAuthManager(code string) *AuthManager {
	return &AuthManager{code: code, tokens: make(map[string]struct{})}
}

// Login exchanges the access code for a session token.
func (a *AuthManager) Login(code string) (string, bool) {
	if subtle.ConstantTimeCompare([]byte(code), []byte(a.code)) != 1 {
		return "", false
	}
	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = struct{}{}
	a.mu.Unlock()
	return token, true
}

// Valid reports whether token was issued by this process.
func (a *AuthManager) Valid(token string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.tokens[token]
	return ok
}
