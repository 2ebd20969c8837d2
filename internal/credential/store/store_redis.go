package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"certwallet/internal/credential/models"
	platformredis "certwallet/internal/platform/redis"
	"certwallet/pkg/platform/sentinel"
)

// CollectionKey is the Redis key holding every credential as one JSON list.
const CollectionKey = "certwallet:credentials"

// RedisStore keeps the credential collection as a flat JSON list under one key.
// Writes go through an optimistic WATCH transaction on that key.
type RedisStore struct {
	items *platformredis.Collection[*models.Credential]
}

// NewRedis constructs a Redis-backed credential store.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{items: platformredis.NewCollection[*models.Credential](client, CollectionKey)}
}

func (s *RedisStore) Save(ctx context.Context, credential *models.Credential) error {
	return s.items.Mutate(ctx, func(items []*models.Credential) ([]*models.Credential, error) {
		if lo.ContainsBy(items, func(c *models.Credential) bool { return c.ID == credential.ID }) {
			return nil, sentinel.ErrConflict
		}
		return append(items, credential), nil
	})
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Credential, error) {
	return s.find(ctx, func(c *models.Credential) bool { return c.ID == id })
}

func (s *RedisStore) FindByContentHash(ctx context.Context, hash string) (*models.Credential, error) {
	return s.find(ctx, func(c *models.Credential) bool { return c.ContentHash == hash })
}

func (s *RedisStore) Update(ctx context.Context, id string, patch models.Patch) (*models.Credential, error) {
	var updated *models.Credential
	err := s.items.Mutate(ctx, func(items []*models.Credential) ([]*models.Credential, error) {
		_, idx, ok := lo.FindIndexOf(items, func(c *models.Credential) bool { return c.ID == id })
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		patch.Apply(items[idx], now(ctx))
		updated = items[idx]
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.items.Mutate(ctx, func(items []*models.Credential) ([]*models.Credential, error) {
		kept := lo.Reject(items, func(c *models.Credential, _ int) bool { return c.ID == id })
		if len(kept) == len(items) {
			return nil, sentinel.ErrNotFound
		}
		return kept, nil
	})
}

func (s *RedisStore) List(ctx context.Context, filter models.Filter) ([]*models.Credential, error) {
	items, err := s.items.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := lo.Filter(items, func(c *models.Credential, _ int) bool { return filter.Keep(c) })
	sortNewestFirst(out)
	return out, nil
}

func (s *RedisStore) CountByIssuer(ctx context.Context) (map[string]int, error) {
	items, err := s.items.Load(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, c := range items {
		if c.IssuerID != nil {
			counts[*c.IssuerID]++
		}
	}
	return counts, nil
}

func (s *RedisStore) find(ctx context.Context, match func(*models.Credential) bool) (*models.Credential, error) {
	items, err := s.items.Load(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := lo.Find(items, match)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c, nil
}
