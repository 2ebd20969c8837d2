package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certwallet/internal/issuer/models"
	"certwallet/pkg/platform/sentinel"
)

type TrustStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *TrustStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestTrustStoreSuite(t *testing.T) {
	suite.Run(t, new(TrustStoreSuite))
}

func (s *TrustStoreSuite) newProfile(id, key string) *models.Profile {
	p, err := models.NewProfile(id, "Issuer "+id, key, time.Now())
	s.Require().NoError(err)
	return p
}

func (s *TrustStoreSuite) TestUpsertByID() {
	s.Require().NoError(s.store.Save(s.ctx, s.newProfile("i-1", "key-1")))

	renamed := s.newProfile("i-1", "key-1")
	renamed.Name = "Acme"
	s.Require().NoError(s.store.Save(s.ctx, renamed))

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("Acme", all[0].Name)
}

func (s *TrustStoreSuite) TestFindByPublicKeyIDFirstMatchWins() {
	s.Require().NoError(s.store.Save(s.ctx, s.newProfile("first", "shared-key")))
	s.Require().NoError(s.store.Save(s.ctx, s.newProfile("second", "shared-key")))

	found, err := s.store.FindByPublicKeyID(s.ctx, "shared-key")
	s.Require().NoError(err)
	s.Equal("first", found.ID)

	_, err = s.store.FindByPublicKeyID(s.ctx, "Shared-Key")
	s.Require().ErrorIs(err, sentinel.ErrNotFound, "matching is exact")
}

func (s *TrustStoreSuite) TestDelete() {
	s.Require().NoError(s.store.Save(s.ctx, s.newProfile("i-1", "key-1")))
	s.Require().NoError(s.store.Delete(s.ctx, "i-1"))

	_, err := s.store.Get(s.ctx, "i-1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.Delete(s.ctx, "i-1"), sentinel.ErrNotFound)
}
