package revocation

import (
	"context"
	"sync"
	"time"
)

// InMemoryList is the revocation list for single-process deployments.
type InMemoryList struct {
	mu      sync.Mutex
	expires map[string]time.Time
	clock   Clock
}

func NewInMemoryList(clock Clock) *InMemoryList {
	if clock == nil {
		clock = time.Now
	}
	return &InMemoryList{expires: make(map[string]time.Time), clock: clock}
}

func (l *InMemoryList) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if jti == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	for k, exp := range l.expires {
		if now.After(exp) {
			delete(l.expires, k)
		}
	}
	l.expires[jti] = now.Add(ttl)
	return nil
}

func (l *InMemoryList) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.expires[jti]
	return ok && !l.clock().After(exp), nil
}
