//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certwallet/internal/issuer/models"
	"certwallet/internal/issuer/store"
	"certwallet/pkg/platform/sentinel"
	"certwallet/pkg/testutil/containers"
)

type trustStore interface {
	Save(ctx context.Context, profile *models.Profile) error
	Get(ctx context.Context, id string) (*models.Profile, error)
	FindByPublicKeyID(ctx context.Context, publicKeyID string) (*models.Profile, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Profile, error)
}

type TrustStoreIntegrationSuite struct {
	suite.Suite
	store trustStore
	reset func(ctx context.Context) error
}

func TestPostgresTrustStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &TrustStoreIntegrationSuite{
		store: store.NewPostgres(pg.DB),
		reset: func(ctx context.Context) error { return pg.TruncateTables(ctx, "issuers") },
	})
}

func TestRedisTrustStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &TrustStoreIntegrationSuite{
		store: store.NewRedis(rc.Client),
		reset: rc.FlushAll,
	})
}

func (s *TrustStoreIntegrationSuite) SetupTest() {
	s.Require().NoError(s.reset(context.Background()))
}

func (s *TrustStoreIntegrationSuite) profile(id, key string, createdAt time.Time) *models.Profile {
	p, err := models.NewProfile(id, "Acme "+id, key, createdAt.UTC().Truncate(time.Millisecond))
	s.Require().NoError(err)
	p.IntroductionURL = "https://acme.example/intro"
	return p
}

func (s *TrustStoreIntegrationSuite) TestUpsertAndLookup() {
	ctx := context.Background()
	p := s.profile("issuer-1", "key-1", time.Now())
	s.Require().NoError(s.store.Save(ctx, p))

	p.Name = "Acme University"
	p.Verified = true
	s.Require().NoError(s.store.Save(ctx, p))

	got, err := s.store.Get(ctx, "issuer-1")
	s.Require().NoError(err)
	s.Equal("Acme University", got.Name)
	s.True(got.Verified)
	s.Equal("https://acme.example/intro", got.IntroductionURL)

	byKey, err := s.store.FindByPublicKeyID(ctx, "key-1")
	s.Require().NoError(err)
	s.Equal("issuer-1", byKey.ID)

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *TrustStoreIntegrationSuite) TestFindByPublicKeyIDOldestWins() {
	ctx := context.Background()
	base := time.Now()
	s.Require().NoError(s.store.Save(ctx, s.profile("issuer-old", "shared", base.Add(-time.Hour))))
	s.Require().NoError(s.store.Save(ctx, s.profile("issuer-new", "shared", base)))

	got, err := s.store.FindByPublicKeyID(ctx, "shared")
	s.Require().NoError(err)
	s.Equal("issuer-old", got.ID)
}

func (s *TrustStoreIntegrationSuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.profile("issuer-1", "key-1", time.Now())))
	s.Require().NoError(s.store.Delete(ctx, "issuer-1"))

	_, err := s.store.Get(ctx, "issuer-1")
	s.True(errors.Is(err, sentinel.ErrNotFound))
	s.True(errors.Is(s.store.Delete(ctx, "issuer-1"), sentinel.ErrNotFound))
}
