//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "certwallet/pkg/platform/audit"
	auditpostgres "certwallet/pkg/platform/audit/store/postgres"
	"certwallet/pkg/platform/tx"
	"certwallet/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *auditpostgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = auditpostgres.New(s.pg.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "audit_events"))
}

func event(id, subject, action string, at time.Time) audit.Event {
	return audit.Event{
		ID:        id,
		Category:  audit.CategoryTrust,
		Timestamp: at.UTC().Truncate(time.Microsecond),
		Subject:   subject,
		Action:    action,
		Source:    "qr",
		RequestID: "req-1",
		Client:    "Firefox on Linux",
	}
}

func (s *AuditStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	base := time.Now()
	e := event("evt-1", "cred-1", string(audit.EventCredentialImported), base)
	s.Require().NoError(s.store.Append(ctx, e))
	s.Require().NoError(s.store.Append(ctx, e))
	s.Require().NoError(s.store.Append(ctx, event("evt-2", "cred-1", string(audit.EventCredentialVerified), base.Add(time.Second))))

	got, err := s.store.ListBySubject(ctx, "cred-1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("evt-1", got[0].ID)
	s.Equal(audit.CategoryTrust, got[0].Category)
	s.Equal("Firefox on Linux", got[0].Client)
	s.True(e.Timestamp.Equal(got[0].Timestamp))

	recent, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal("evt-2", recent[0].ID)
}

func (s *AuditStoreSuite) TestAppendJoinsTransaction() {
	ctx := context.Background()
	err := tx.Run(ctx, s.pg.DB, func(ctx context.Context, _ tx.Querier) error {
		return s.store.Append(ctx, event("evt-tx", "cred-2", string(audit.EventCredentialDeleted), time.Now()))
	})
	s.Require().NoError(err)

	got, err := s.store.ListBySubject(ctx, "cred-2")
	s.Require().NoError(err)
	s.Len(got, 1)
}
