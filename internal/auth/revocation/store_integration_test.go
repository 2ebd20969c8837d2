//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certwallet/internal/auth/revocation"
	"certwallet/pkg/testutil/containers"
)

type revocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type RevocationSuite struct {
	suite.Suite
	list  revocationList
	reset func(ctx context.Context) error
}

func TestPostgresRevocationList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &RevocationSuite{
		list: revocation.NewPostgresList(pg.DB, nil),
		reset: func(ctx context.Context) error {
			return pg.TruncateTables(ctx, "token_revocations")
		},
	})
}

func TestRedisRevocationList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &RevocationSuite{
		list:  revocation.NewRedisList(rc.Client),
		reset: rc.FlushAll,
	})
}

func (s *RevocationSuite) SetupTest() {
	s.Require().NoError(s.reset(context.Background()))
}

func (s *RevocationSuite) TestRevokeAndCheck() {
	ctx := context.Background()

	revoked, err := s.list.IsTokenRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.list.RevokeToken(ctx, "jti-1", time.Hour))
	s.Require().NoError(s.list.RevokeToken(ctx, "jti-1", time.Hour))

	revoked, err = s.list.IsTokenRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *RevocationSuite) TestRejectsNonPositiveTTL() {
	s.Error(s.list.RevokeToken(context.Background(), "jti-2", 0))
}
