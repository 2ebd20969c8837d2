package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Verifier,DocumentFetcher,AnchorPreviewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certwallet/internal/credential/metrics"
	"certwallet/internal/credential/models"
	"certwallet/internal/credential/normalizer"
	"certwallet/internal/credential/resolver"
	"certwallet/internal/credential/service/mocks"
	credentialStore "certwallet/internal/credential/store"
	issuerStore "certwallet/internal/issuer/store"
	"certwallet/internal/policy"
	"certwallet/internal/verification"
	"certwallet/internal/verification/ledger"
	dErrors "certwallet/pkg/domain-errors"
	"certwallet/pkg/platform/audit"
	auditmemory "certwallet/pkg/platform/audit/store/memory"
	auditpublisher "certwallet/pkg/platform/audit/publisher"
	"certwallet/pkg/requestcontext"
)

const (
	// urlIssuerCredential references its issuer by URL only.
	urlIssuerCredential = `{
  "id": "urn:uuid:cred-file",
  "name": "Bachelor of Science",
  "issuer": "https://issuer.example/profile.json",
  "proof": {"type": "MerkleProof2019", "proofValue": "z1"}
}`
	inlineIssuerCredential = `{
  "id": "urn:uuid:cred-qr",
  "issuer": {"id": "https://acme.example/profile.json", "name": "Acme", "publicKey": "key-1"},
  "proof": {"type": "MerkleProof2019", "proofValue": "z2"}
}`
	anchoredCredential = `{
  "id": "urn:uuid:cred-2017",
  "issuer": {"id": "https://acme.example/profile.json", "name": "Acme"},
  "proof": {"type": "MerkleProof2017", "targetHash": "aa", "merkleRoot": "aa",
    "anchors": [{"sourceId": "tx-9", "type": "ETHData", "chain": "ethereumMainnet"}]}
}`
	introductionPayload = `{"introductionURL": "https://acme.example/intro", "name": "Acme", "publicKey": "key-1"}`
)

type ServiceSuite struct {
	suite.Suite
	ctx         context.Context
	ctrl        *gomock.Controller
	credentials *credentialStore.InMemoryStore
	issuers     *issuerStore.InMemoryStore
	auditStore  *auditmemory.InMemoryStore
	verifier    *mocks.MockVerifier
	fetcher     *mocks.MockDocumentFetcher
	anchors     *mocks.MockAnchorPreviewer
	service     *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.ctrl = gomock.NewController(s.T())
	s.credentials = credentialStore.NewInMemoryStore()
	s.issuers = issuerStore.NewInMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.fetcher = mocks.NewMockDocumentFetcher(s.ctrl)
	s.anchors = mocks.NewMockAnchorPreviewer(s.ctrl)

	p, err := policy.NewImportPolicy(s.ctx, "")
	s.Require().NoError(err)
	r := resolver.New(s.credentials, s.issuers, nil, p)

	s.service = New(s.credentials, r, s.verifier, s.fetcher,
		WithAuditPublisher(auditpublisher.NewPublisher(s.auditStore)),
		WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())),
		WithAnchorPreviewer(s.anchors),
	)
}

func verdict(success bool) *verification.Result {
	r := &verification.Result{
		State:     verification.StateCompleted,
		Status:    verification.VerdictSuccess,
		Message:   "Verified",
		CheckedAt: time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC),
		Steps: []verification.Step{{
			Code:     verification.CodeCheckReceipt,
			Label:    "Check Receipt",
			Status:   verification.StatusSuccess,
			Position: 5,
		}},
	}
	if !success {
		r.Status = verification.VerdictFailure
		r.Message = "The credential has been revoked"
		r.Steps[0].Status = verification.StatusFailure
		r.Steps[0].ErrorMessage = "revoked"
	}
	return r
}

func (s *ServiceSuite) actions(subject string) []string {
	events, err := s.auditStore.ListBySubject(s.ctx, subject)
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

// =============================================================================
// Import
// =============================================================================

func (s *ServiceSuite) TestImportFileWithUnknownIssuer() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(verdict(true))

	res, err := s.service.Import(s.ctx, ImportRequest{
		Source:   models.SourceFile,
		Content:  urlIssuerCredential,
		FileName: " diploma.json ",
	})
	s.Require().NoError(err)

	s.True(res.IssuerUnresolved)
	s.False(res.AutoRegistered)
	s.Nil(res.Issuer)
	s.Require().NotNil(res.Verification)
	s.True(res.Verification.Succeeded())

	stored, err := s.credentials.Get(s.ctx, "urn:uuid:cred-file")
	s.Require().NoError(err)
	s.Nil(stored.IssuerID)
	s.True(stored.UnverifiedIssuer)
	s.Equal("diploma.json", stored.FileName)
	s.Equal("Bachelor of Science", stored.Title)
	s.Equal(models.VerificationVerified, stored.Verification.Status)
	s.Require().Len(stored.Verification.Steps, 1)
	s.Equal(verification.CodeCheckReceipt, stored.Verification.Steps[0].Code)
	s.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), stored.AddedAt)

	s.Equal([]string{
		string(audit.EventCredentialImported),
		string(audit.EventCredentialVerified),
	}, s.actions("urn:uuid:cred-file"))
}

func (s *ServiceSuite) TestImportRequiringTrustedIssuerAborts() {
	_, err := s.service.Import(s.ctx, ImportRequest{
		Source:               models.SourceFile,
		Content:              urlIssuerCredential,
		RequireTrustedIssuer: true,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIssuerUnresolved))

	_, err = s.credentials.Get(s.ctx, "urn:uuid:cred-file")
	s.Error(err)
	s.Equal([]string{string(audit.EventIssuerUnresolved)}, s.actions("urn:uuid:cred-file"))
}

func (s *ServiceSuite) TestImportQRAutoRegistersIssuer() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(verdict(true))

	res, err := s.service.Import(s.ctx, ImportRequest{Source: models.SourceQR, Content: inlineIssuerCredential})
	s.Require().NoError(err)

	s.True(res.AutoRegistered)
	s.False(res.IssuerUnresolved)
	s.Require().NotNil(res.Issuer)
	s.Equal("Acme", res.Issuer.Name)
	s.Require().NotNil(res.Credential.IssuerID)
	s.Equal(res.Issuer.ID, *res.Credential.IssuerID)
	s.Equal([]string{string(audit.EventIssuerAutoRegistered)}, s.actions(res.Issuer.ID))
}

func (s *ServiceSuite) TestImportDuplicate() {
	_, err := s.service.Import(s.ctx, ImportRequest{
		Source:           models.SourceFile,
		Content:          inlineIssuerCredential,
		SkipVerification: true,
	})
	s.Require().NoError(err)

	_, err = s.service.Import(s.ctx, ImportRequest{
		Source:           models.SourceFile,
		Content:          inlineIssuerCredential,
		SkipVerification: true,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	var dup *resolver.DuplicateError
	s.Require().True(errors.As(err, &dup))
	s.Equal("Acme", dup.IssuerName)

	rejected, err := s.auditStore.ListBySubject(s.ctx, "")
	s.Require().NoError(err)
	s.Require().Len(rejected, 1)
	s.Equal(string(audit.EventCredentialRejected), rejected[0].Action)
	s.Equal(outcomeDuplicate, rejected[0].Outcome)
}

func (s *ServiceSuite) TestImportRejectsSameIDWithDifferentContent() {
	_, err := s.service.Import(s.ctx, ImportRequest{
		Source:           models.SourceFile,
		Content:          inlineIssuerCredential,
		SkipVerification: true,
	})
	s.Require().NoError(err)

	_, err = s.service.Import(s.ctx, ImportRequest{
		Source: models.SourceFile,
		Content: `{
  "id": "urn:uuid:cred-qr",
  "name": "Reissued Diploma",
  "issuer": {"id": "https://acme.example/profile.json", "name": "Acme", "publicKey": "key-1"},
  "proof": {"type": "MerkleProof2019", "proofValue": "z3"}
}`,
		SkipVerification: true,
	})
	var dup *resolver.DuplicateError
	s.Require().ErrorAs(err, &dup)
	s.Equal("urn:uuid:cred-qr", dup.CredentialID)

	held, err := s.credentials.List(s.ctx, models.Filter{})
	s.Require().NoError(err)
	s.Len(held, 1)
}

func (s *ServiceSuite) TestImportSkipVerificationLeavesPending() {
	res, err := s.service.Import(s.ctx, ImportRequest{
		Source:           models.SourceFile,
		Content:          inlineIssuerCredential,
		SkipVerification: true,
	})
	s.Require().NoError(err)
	s.Nil(res.Verification)
	s.Equal(models.VerificationPending, res.Credential.Verification.Status)
}

func (s *ServiceSuite) TestImportRejectsIntroductionQR() {
	_, err := s.service.Import(s.ctx, ImportRequest{Source: models.SourceQR, Content: introductionPayload})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestImportRejectsUnknownSource() {
	_, err := s.service.Import(s.ctx, ImportRequest{Source: "email", Content: inlineIssuerCredential})
	s.Require().Error(err)
}

func (s *ServiceSuite) TestImportFromURL() {
	s.Run("fetches and records the source url", func() {
		s.fetcher.EXPECT().Fetch(gomock.Any(), "https://acme.example/cred.json").Return(inlineIssuerCredential, nil)
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(verdict(false))

		res, err := s.service.Import(s.ctx, ImportRequest{Source: models.SourceURL, URL: "https://acme.example/cred.json"})
		s.Require().NoError(err)
		s.Equal("https://acme.example/cred.json", res.Credential.SourceURL)
		s.Equal(models.VerificationFailed, res.Credential.Verification.Status)
		s.Equal("The credential has been revoked", res.Credential.Verification.Message)
	})

	s.Run("fetch errors fail the import", func() {
		s.fetcher.EXPECT().Fetch(gomock.Any(), "https://acme.example/gone.json").
			Return("", dErrors.New(dErrors.CodeUnavailable, "Could not retrieve the credential"))

		_, err := s.service.Import(s.ctx, ImportRequest{Source: models.SourceURL, URL: "https://acme.example/gone.json"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("a scanned link is fetched as a url import", func() {
		s.fetcher.EXPECT().Fetch(gomock.Any(), "https://acme.example/qr.json").Return(urlIssuerCredential, nil)
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(verdict(true))

		res, err := s.service.Import(s.ctx, ImportRequest{Source: models.SourceQR, Content: "https://acme.example/qr.json"})
		s.Require().NoError(err)
		s.Equal(models.SourceURL, res.Credential.Source)
		s.True(res.IssuerUnresolved)
	})
}

func (s *ServiceSuite) TestImportFromURLWithoutFetcher() {
	r := resolver.New(s.credentials, s.issuers, nil, nil)
	svc := New(s.credentials, r, s.verifier, nil)

	_, err := svc.Import(s.ctx, ImportRequest{Source: models.SourceURL, URL: "https://acme.example/cred.json"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

// =============================================================================
// Verify
// =============================================================================

func (s *ServiceSuite) TestVerifyReplacesVerdict() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(verdict(true))
	_, err := s.service.Import(s.ctx, ImportRequest{Source: models.SourceFile, Content: inlineIssuerCredential})
	s.Require().NoError(err)

	var progress []verification.Notification
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ []byte, opts ...verification.RunOption) *verification.Result {
			s.Len(opts, 1)
			return verdict(false)
		})

	res, err := s.service.Verify(s.ctx, "urn:uuid:cred-qr", func(n verification.Notification) {
		progress = append(progress, n)
	})
	s.Require().NoError(err)
	s.False(res.Result.Succeeded())
	s.Equal(models.VerificationFailed, res.Credential.Verification.Status)
	s.Equal("revoked", res.Credential.Verification.Steps[0].ErrorMessage)

	stored, err := s.credentials.Get(s.ctx, "urn:uuid:cred-qr")
	s.Require().NoError(err)
	s.Equal(models.VerificationFailed, stored.Verification.Status)
	s.Contains(s.actions("urn:uuid:cred-qr"), string(audit.EventCredentialFailed))
}

func (s *ServiceSuite) TestVerifyUnknownCredential() {
	_, err := s.service.Verify(s.ctx, "missing", nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestConcurrentVerifySharesOneRun() {
	_, err := s.service.Import(s.ctx, ImportRequest{
		Source:           models.SourceFile,
		Content:          inlineIssuerCredential,
		SkipVerification: true,
	})
	s.Require().NoError(err)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, []byte, ...verification.RunOption) *verification.Result {
			close(entered)
			<-release
			return verdict(true)
		}).
		Times(1)

	var wg sync.WaitGroup
	results := make([]*VerifyResult, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.service.Verify(s.ctx, "urn:uuid:cred-qr", nil)
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = s.service.Verify(s.ctx, "urn:uuid:cred-qr", nil)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.Require().NotNil(results[0])
	s.Require().NotNil(results[1])
	s.Same(results[0], results[1])
}

func (s *ServiceSuite) TestVerifySurvivesCallerCancellation() {
	_, err := s.service.Import(s.ctx, ImportRequest{
		Source:           models.SourceFile,
		Content:          inlineIssuerCredential,
		SkipVerification: true,
	})
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []byte, _ ...verification.RunOption) *verification.Result {
			s.NoError(ctx.Err())
			return verdict(true)
		})

	res, err := s.service.Verify(ctx, "urn:uuid:cred-qr", nil)
	s.Require().NoError(err)
	s.Equal(models.VerificationVerified, res.Credential.Verification.Status)
}

// =============================================================================
// Scan, anchor and delete
// =============================================================================

func (s *ServiceSuite) TestScan() {
	s.Run("introductions are returned without importing", func() {
		res, err := s.service.Scan(s.ctx, introductionPayload)
		s.Require().NoError(err)
		s.Equal(normalizer.KindIssuerIntroduction, res.Kind)
		s.Require().NotNil(res.Introduction)
		s.Equal("https://acme.example/intro", res.Introduction.IntroductionURL)
		s.Nil(res.Import)
	})

	s.Run("credentials are imported", func() {
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(verdict(true))

		res, err := s.service.Scan(s.ctx, inlineIssuerCredential)
		s.Require().NoError(err)
		s.Equal(normalizer.KindCredential, res.Kind)
		s.Require().NotNil(res.Import)
		s.Equal(models.SourceQR, res.Import.Credential.Source)
	})

	s.Run("unrecognized payloads are rejected", func() {
		_, err := s.service.Scan(s.ctx, `{"name":"Acme"}`)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestAnchor() {
	_, err := s.service.Import(s.ctx, ImportRequest{
		Source:           models.SourceFile,
		Content:          anchoredCredential,
		SkipVerification: true,
	})
	s.Require().NoError(err)

	s.Run("previews the anchored transaction", func() {
		s.anchors.EXPECT().Preview(gomock.Any(), "tx-9").
			Return(&ledger.Preview{TxID: "tx-9", ContentType: "text/plain", Displayable: true}, nil)

		preview, err := s.service.Anchor(s.ctx, "urn:uuid:cred-2017")
		s.Require().NoError(err)
		s.Equal("tx-9", preview.TxID)
		s.True(preview.Displayable)
	})

	s.Run("unknown transaction", func() {
		s.anchors.EXPECT().Preview(gomock.Any(), "tx-9").Return(nil, ledger.ErrNotFound)

		_, err := s.service.Anchor(s.ctx, "urn:uuid:cred-2017")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("gateway failure", func() {
		s.anchors.EXPECT().Preview(gomock.Any(), "tx-9").Return(nil, errors.New("connection refused"))

		_, err := s.service.Anchor(s.ctx, "urn:uuid:cred-2017")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("not configured", func() {
		svc := New(s.credentials, nil, s.verifier, nil)
		_, err := svc.Anchor(s.ctx, "urn:uuid:cred-2017")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *ServiceSuite) TestDelete() {
	_, err := s.service.Import(s.ctx, ImportRequest{
		Source:           models.SourceFile,
		Content:          inlineIssuerCredential,
		SkipVerification: true,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ctx, "urn:uuid:cred-qr"))
	s.Contains(s.actions("urn:uuid:cred-qr"), string(audit.EventCredentialDeleted))

	err = s.service.Delete(s.ctx, "urn:uuid:cred-qr")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListFiltersByQuery() {
	for _, doc := range []string{inlineIssuerCredential, urlIssuerCredential} {
		_, err := s.service.Import(s.ctx, ImportRequest{Source: models.SourceFile, Content: doc, SkipVerification: true})
		s.Require().NoError(err)
	}

	all, err := s.service.List(s.ctx, models.Filter{})
	s.Require().NoError(err)
	s.Len(all, 2)

	matched, err := s.service.List(s.ctx, models.Filter{Query: "bachelor"})
	s.Require().NoError(err)
	s.Require().Len(matched, 1)
	s.Equal("urn:uuid:cred-file", matched[0].ID)
}
