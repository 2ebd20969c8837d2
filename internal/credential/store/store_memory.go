package store

import (
	"context"
	"sort"
	"sync"

	"certwallet/internal/credential/models"
	"certwallet/pkg/platform/sentinel"
)

// InMemoryStore keeps credentials in a map guarded by a RWMutex. Save checks
// and inserts under the same write lock, so two imports of one id cannot both win.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*models.Credential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[string]*models.Credential)}
}

func (s *InMemoryStore) Save(_ context.Context, credential *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[credential.ID]; ok {
		return sentinel.ErrConflict
	}
	s.credentials[credential.ID] = clone(credential)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.credentials[id]; ok {
		return clone(c), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByContentHash(_ context.Context, hash string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.credentials {
		if c.ContentHash == hash {
			return clone(c), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(ctx context.Context, id string, patch models.Patch) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	updated := clone(c)
	patch.Apply(updated, now(ctx))
	s.credentials[id] = updated
	return clone(updated), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.credentials, id)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.Filter) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		if filter.Keep(c) {
			out = append(out, clone(c))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) CountByIssuer(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, c := range s.credentials {
		if c.IssuerID != nil {
			counts[*c.IssuerID]++
		}
	}
	return counts, nil
}

func sortNewestFirst(creds []*models.Credential) {
	sort.SliceStable(creds, func(i, j int) bool {
		if creds[i].AddedAt.Equal(creds[j].AddedAt) {
			return creds[i].ID < creds[j].ID
		}
		return creds[i].AddedAt.After(creds[j].AddedAt)
	})
}

func clone(c *models.Credential) *models.Credential {
	cp := *c
	if c.IssuerID != nil {
		id := *c.IssuerID
		cp.IssuerID = &id
	}
	cp.Types = append([]string(nil), c.Types...)
	cp.Document = append([]byte(nil), c.Document...)
	cp.Verification.Steps = append([]models.Step(nil), c.Verification.Steps...)
	return &cp
}
