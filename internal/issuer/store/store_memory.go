// Package store holds the issuer trust store backends.
package store

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"certwallet/internal/issuer/models"
	"certwallet/pkg/platform/sentinel"
)

// InMemoryStore keeps trusted issuers in insertion order so public-key
// lookups return the earliest registered match.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles []models.Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Save upserts by id.
func (s *InMemoryStore) Save(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, idx, ok := lo.FindIndexOf(s.profiles, func(p models.Profile) bool { return p.ID == profile.ID }); ok {
		s.profiles[idx] = *profile
		return nil
	}
	s.profiles = append(s.profiles, *profile)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Profile, error) {
	return s.find(func(p models.Profile) bool { return p.ID == id })
}

func (s *InMemoryStore) FindByPublicKeyID(_ context.Context, publicKeyID string) (*models.Profile, error) {
	return s.find(func(p models.Profile) bool { return p.PublicKeyID == publicKeyID })
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := lo.Reject(s.profiles, func(p models.Profile, _ int) bool { return p.ID == id })
	if len(kept) == len(s.profiles) {
		return sentinel.ErrNotFound
	}
	s.profiles = kept
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(s.profiles, func(p models.Profile, _ int) *models.Profile { return &p }), nil
}

func (s *InMemoryStore) find(match func(models.Profile) bool) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := lo.Find(s.profiles, match)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}
