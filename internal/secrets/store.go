package secrets

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("secret not found")

// Store holds registry secrets keyed by service and account.
type Store interface {
	Get(ctx context.Context, service, account string) (string, error)
	Set(ctx context.Context, service, account, secret string) error
	Delete(ctx context.Context, service, account string) error
}

func cacheKey(service, account string) string {
	return strings.ToLower(strings.TrimSpace(service)) + "|" + strings.TrimSpace(account)
}

// MemoryStore keeps secrets in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: map[string]string{}}
}

func (m *MemoryStore) Get(_ context.Context, service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.secrets[cacheKey(service, account)]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (m *MemoryStore) Set(_ context.Context, service, account, secret string) error {
	m.mu.Lock()
	m.secrets[cacheKey(service, account)] = secret
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, service, account string) error {
	m.mu.Lock()
	delete(m.secrets, cacheKey(service, account))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.secrets)
}
