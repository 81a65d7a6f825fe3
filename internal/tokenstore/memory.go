// Package tokenstore provides the durable credential storage behind the
// authentication interceptor.
package tokenstore

import (
	"context"
	"sync"

	"github.com/IsaacDSC/gquery/internal/authn"
)

// Memory keeps the credential pair in process memory. It is the default store
// and the one used by tests.
type Memory struct {
	mu     sync.RWMutex
	tokens authn.Tokens
}

var _ authn.TokenStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Tokens(_ context.Context) (authn.Tokens, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens, nil
}

func (m *Memory) SetTokens(_ context.Context, t authn.Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
	return nil
}

func (m *Memory) SetAccessToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens.AccessToken = token
	return nil
}

func (m *Memory) ClearTokens(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = authn.Tokens{}
	return nil
}
