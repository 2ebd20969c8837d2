package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"certwallet/internal/issuer/models"
	platformredis "certwallet/internal/platform/redis"
	"certwallet/pkg/platform/sentinel"
)

// CollectionKey is the Redis key holding every trusted issuer as one JSON list.
const CollectionKey = "certwallet:issuers"

// RedisStore keeps the trust store as a flat JSON list under one key.
type RedisStore struct {
	items *platformredis.Collection[models.Profile]
}

// NewRedis constructs a Redis-backed trust store.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{items: platformredis.NewCollection[models.Profile](client, CollectionKey)}
}

// Save upserts by id.
func (s *RedisStore) Save(ctx context.Context, profile *models.Profile) error {
	return s.items.Mutate(ctx, func(items []models.Profile) ([]models.Profile, error) {
		if _, idx, ok := lo.FindIndexOf(items, func(p models.Profile) bool { return p.ID == profile.ID }); ok {
			items[idx] = *profile
			return items, nil
		}
		return append(items, *profile), nil
	})
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Profile, error) {
	return s.find(ctx, func(p models.Profile) bool { return p.ID == id })
}

func (s *RedisStore) FindByPublicKeyID(ctx context.Context, publicKeyID string) (*models.Profile, error) {
	return s.find(ctx, func(p models.Profile) bool { return p.PublicKeyID == publicKeyID })
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.items.Mutate(ctx, func(items []models.Profile) ([]models.Profile, error) {
		kept := lo.Reject(items, func(p models.Profile, _ int) bool { return p.ID == id })
		if len(kept) == len(items) {
			return nil, sentinel.ErrNotFound
		}
		return kept, nil
	})
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Profile, error) {
	items, err := s.items.Load(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(p models.Profile, _ int) *models.Profile { return &p }), nil
}

func (s *RedisStore) find(ctx context.Context, match func(models.Profile) bool) (*models.Profile, error) {
	items, err := s.items.Load(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := lo.Find(items, match)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}
