package store

import (
	"context"
	"sync"
)

// Memory keeps the token in process memory.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory creates an empty store, optionally seeded with a token.
func NewMemory(seed ...string) *Memory {
	m := &Memory{}
	if len(seed) > 0 {
		m.token = seed[0]
	}
	return m
}

// Get implements authclient.CredentialStore.
func (m *Memory) Get(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

// Set implements authclient.CredentialStore.
func (m *Memory) Set(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

// Clear implements authclient.CredentialStore.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
