package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore is the shared set of revoked token ids and families.
// Entries only need to be kept until the expiry they were recorded with.
type RevocationStore interface {
	// Consume marks jti as used. first is true only for the caller that inserted it.
	Consume(ctx context.Context, jti string, expiresAt time.Time) (first bool, err error)
	// RevokeFamily revokes every token carrying the family id.
	RevokeFamily(ctx context.Context, family string, expiresAt time.Time) error
	// IsRevoked reports whether jti or family is revoked. An empty jti checks the family only.
	IsRevoked(ctx context.Context, jti, family string) (bool, error)
}

// MemoryRevocationStore keeps the revocation set in process memory. It is only
// correct when a single instance issues and validates tokens.
type MemoryRevocationStore struct {
	mu        sync.Mutex
	tokens    map[string]time.Time
	families  map[string]time.Time
	now       func() time.Time
	lastPrune time.Time
}

// NewMemoryRevocationStore constructs an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		tokens:   make(map[string]time.Time),
		families: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Consume implements RevocationStore.
func (m *MemoryRevocationStore) Consume(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	if exp, ok := m.tokens[jti]; ok && m.now().Before(exp) {
		return false, nil
	}
	m.tokens[jti] = expiresAt
	return true, nil
}

// RevokeFamily implements RevocationStore.
func (m *MemoryRevocationStore) RevokeFamily(_ context.Context, family string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	if exp, ok := m.families[family]; !ok || expiresAt.After(exp) {
		m.families[family] = expiresAt
	}
	return nil
}

// IsRevoked implements RevocationStore.
func (m *MemoryRevocationStore) IsRevoked(_ context.Context, jti, family string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if jti != "" {
		if exp, ok := m.tokens[jti]; ok && now.Before(exp) {
			return true, nil
		}
	}
	if family != "" {
		if exp, ok := m.families[family]; ok && now.Before(exp) {
			return true, nil
		}
	}
	return false, nil
}

// pruneLocked drops expired entries at most once a minute.
func (m *MemoryRevocationStore) pruneLocked() {
	now := m.now()
	if now.Sub(m.lastPrune) < time.Minute {
		return
	}
	m.lastPrune = now
	for k, exp := range m.tokens {
		if !now.Before(exp) {
			delete(m.tokens, k)
		}
	}
	for k, exp := range m.families {
		if !now.Before(exp) {
			delete(m.families, k)
		}
	}
}
