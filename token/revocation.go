package token

import (
	"sync"
	"time"
)

// RevocationList tracks per-user "revoke all sessions" marks. A token is
// revoked when it was issued at or before the user's revocation time, so a
// password reset kills every outstanding session without tracking individual
// token ids.
type RevocationList interface {
	RevokeUser(userID string, at time.Time) error
	IsRevoked(userID string, issuedAt time.Time) bool
	Cleanup(olderThan time.Duration) // Remove marks no live token can predate
}

// InMemoryRevocationList is a simple in-memory implementation
type InMemoryRevocationList struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func NewInMemoryRevocationList() RevocationList {
	return &InMemoryRevocationList{
		revoked: make(map[string]time.Time),
	}
}

func (c *InMemoryRevocationList) RevokeUser(userID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.revoked[userID]; ok && existing.After(at) {
		return nil
	}
	c.revoked[userID] = at
	return nil
}

func (c *InMemoryRevocationList) IsRevoked(userID string, issuedAt time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	at, exists := c.revoked[userID]
	return exists && !issuedAt.After(at)
}

// Cleanup drops marks older than the maximum token lifetime. Idempotent and
// safe to run concurrently with verification traffic.
func (c *InMemoryRevocationList) Cleanup(olderThan time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	for userID, at := range c.revoked {
		if at.Before(cutoff) {
			delete(c.revoked, userID)
		}
	}
}
