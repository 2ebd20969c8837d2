package verification

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks Ledger,IssuerDirectory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certwallet/internal/canonical"
	issuerModels "certwallet/internal/issuer/models"
	"certwallet/internal/verification/ledger"
	"certwallet/internal/verification/mocks"
)

const (
	profileURL    = "https://issuer.example/profile.json"
	revocationURL = "https://issuer.example/revocations.json"
	issuerKeyID   = "ecdsa-koblitz-pubkey:1AwdUWQzJgfDDjeKtpPzMfYMHejFBrxZfo"
	issuerAddress = "1AwdUWQzJgfDDjeKtpPzMfYMHejFBrxZfo"
)

var now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// signedCredential builds a document whose MerkleProof2019 receipt anchors
// its canonical hash under a two-leaf tree. It returns the document and the
// Merkle root.
func signedCredential(t *testing.T, mutate func(doc map[string]any)) ([]byte, string) {
	t.Helper()
	doc := map[string]any{
		"@context":          []any{"https://www.w3.org/2018/credentials/v1", "https://w3id.org/blockcerts/v3"},
		"id":                "urn:uuid:cred-1",
		"type":              []any{"VerifiableCredential", "BlockcertsCredential"},
		"issuer":            profileURL,
		"issuanceDate":      "2022-03-01T10:00:00Z",
		"credentialSubject": map[string]any{"name": "Jane Holder"},
	}
	if mutate != nil {
		mutate(doc)
	}
	canon, err := canonical.Marshal(doc)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	target := sum(canon)
	sibling := sum([]byte("sibling"))
	root := sum(target, sibling)

	receipt, err := cbor.Marshal(map[string]any{
		"targetHash": hex.EncodeToString(target),
		"merkleRoot": hex.EncodeToString(root),
		"path":       []any{map[string]any{"right": hex.EncodeToString(sibling)}},
		"anchors":    []any{"blink:arweave:mainnet:tx-1"},
	})
	if err != nil {
		t.Fatalf("encode receipt: %v", err)
	}
	doc["proof"] = map[string]any{
		"type":               "MerkleProof2019",
		"proofValue":         "z" + base58.Encode(receipt),
		"verificationMethod": issuerKeyID,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw, hex.EncodeToString(root)
}

func issuerMetadata() *issuerModels.Metadata {
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &issuerModels.Metadata{
		Name:           "Acme",
		PublicKeyID:    issuerKeyID,
		RevocationList: revocationURL,
		Keys:           []issuerModels.Key{{ID: issuerKeyID, Created: &created}},
	}
}

type EngineSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *mocks.MockLedger
	issuers *mocks.MockIssuerDirectory
	engine  *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = context.Background()
	s.ledger = mocks.NewMockLedger(ctrl)
	s.issuers = mocks.NewMockIssuerDirectory(ctrl)
	s.engine = New(s.ledger, s.issuers, WithClock(func() time.Time { return now }))
}

func (s *EngineSuite) expectHealthyRemote(root string, times int) {
	s.ledger.EXPECT().FetchRecord(gomock.Any(), "tx-1").
		Return(&ledger.Record{TxID: "tx-1", MerkleRoot: root, IssuingAddress: issuerAddress}, nil).Times(times)
	s.issuers.EXPECT().FetchProfile(gomock.Any(), profileURL).Return(issuerMetadata(), nil).Times(times)
	s.issuers.EXPECT().FetchRevocationList(gomock.Any(), revocationURL).Return([]string{"urn:uuid:other"}, nil).Times(times)
}

func statuses(steps []Step) map[string]string {
	out := make(map[string]string, len(steps))
	for _, st := range steps {
		out[st.Code] = st.Status
	}
	return out
}

// =============================================================================
// Verdicts
// =============================================================================

func (s *EngineSuite) TestAllChecksPass() {
	doc, root := signedCredential(s.T(), nil)
	s.expectHealthyRemote(root, 1)

	var notifications []Notification
	res := s.engine.Verify(s.ctx, doc, WithProgress(func(n Notification) {
		notifications = append(notifications, n)
	}))

	s.Equal(StateCompleted, res.State)
	s.Equal(VerdictSuccess, res.Status)
	s.True(res.Succeeded())
	s.Equal("tx-1", res.TransactionID)
	s.Require().Len(res.Steps, 10)
	for i, st := range res.Steps {
		s.Equal(i, st.Position)
		s.Equal(StatusSuccess, st.Status, st.Code)
	}
	s.Equal(PhaseStatusCheck, res.Steps[8].Phase)
	s.Equal(PhaseStatusCheck, res.Steps[9].Phase)
	s.Len(notifications, 20, "one starting and one resolved notification per check")
	s.Equal(Notification{Code: CodeGetTransactionID, Label: "Get transaction ID", Status: StatusStarting}, notifications[0])
}

func (s *EngineSuite) TestSingleFailureDrivesMessage() {
	doc, root := signedCredential(s.T(), nil)
	s.ledger.EXPECT().FetchRecord(gomock.Any(), "tx-1").
		Return(&ledger.Record{TxID: "tx-1", MerkleRoot: root, IssuingAddress: issuerAddress}, nil)
	s.issuers.EXPECT().FetchProfile(gomock.Any(), profileURL).Return(issuerMetadata(), nil)
	s.issuers.EXPECT().FetchRevocationList(gomock.Any(), revocationURL).Return([]string{"urn:uuid:cred-1"}, nil)

	res := s.engine.Verify(s.ctx, doc)

	s.Equal(VerdictFailure, res.Status)
	s.Equal("This credential has been revoked by the issuer", res.Message)
	failed := 0
	for _, st := range res.Steps {
		if st.Status == StatusFailure {
			failed++
			s.Equal(CodeCheckRevokedStatus, st.Code)
		}
	}
	s.Equal(1, failed)
}

func (s *EngineSuite) TestVerifyingTwiceYieldsSameVerdict() {
	doc, root := signedCredential(s.T(), nil)
	s.expectHealthyRemote(root, 2)

	first := s.engine.Verify(s.ctx, doc)
	second := s.engine.Verify(s.ctx, doc)

	s.Equal(first.Status, second.Status)
	s.Equal(statuses(first.Steps), statuses(second.Steps))
}

func (s *EngineSuite) TestRemoteFetchTimeoutFailsOnlyThatCheck() {
	s.engine = New(s.ledger, s.issuers,
		WithClock(func() time.Time { return now }),
		WithCheckTimeout(50*time.Millisecond),
	)
	doc, _ := signedCredential(s.T(), nil)
	s.ledger.EXPECT().FetchRecord(gomock.Any(), "tx-1").
		DoAndReturn(func(ctx context.Context, _ string) (*ledger.Record, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	s.issuers.EXPECT().FetchProfile(gomock.Any(), profileURL).Return(issuerMetadata(), nil)
	s.issuers.EXPECT().FetchRevocationList(gomock.Any(), revocationURL).Return(nil, nil)

	res := s.engine.Verify(s.ctx, doc)

	got := statuses(res.Steps)
	s.Equal(StatusFailure, got[CodeFetchRemoteHash])
	s.Equal(StatusSuccess, got[CodeParseIssuerKeys], "independent checks still run")
	s.Equal(StatusSuccess, got[CodeCompareHashes])
	s.Equal(StatusFailure, got[CodeCheckReceipt])
	s.Equal(StatusSuccess, got[CodeCheckRevokedStatus])
	s.Equal(VerdictFailure, res.Status)
	s.Equal("Fetch remote hash timed out after 50ms", res.Message)
}

func (s *EngineSuite) TestTamperedDocumentFailsHashComparison() {
	doc, root := signedCredential(s.T(), nil)
	var m map[string]any
	s.Require().NoError(json.Unmarshal(doc, &m))
	m["credentialSubject"] = map[string]any{"name": "Mallory"}
	tampered, err := json.Marshal(m)
	s.Require().NoError(err)
	s.expectHealthyRemote(root, 1)

	res := s.engine.Verify(s.ctx, tampered)

	got := statuses(res.Steps)
	s.Equal(StatusFailure, got[CodeCompareHashes])
	s.Equal(StatusSuccess, got[CodeCheckMerkleRoot])
	s.Equal(StatusSuccess, got[CodeCheckReceipt])
	s.Equal("Computed hash does not match remote hash", res.Message)
}

func (s *EngineSuite) TestExpiredCredential() {
	doc, root := signedCredential(s.T(), func(doc map[string]any) {
		doc["expirationDate"] = "2023-06-30T00:00:00Z"
	})
	s.expectHealthyRemote(root, 1)

	res := s.engine.Verify(s.ctx, doc)

	s.Equal(VerdictFailure, res.Status)
	s.Equal("This credential expired on 2023-06-30", res.Message)
}

func (s *EngineSuite) TestKeyRevokedBeforeIssuance() {
	doc, root := signedCredential(s.T(), nil)
	revoked := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	meta := issuerMetadata()
	meta.Keys[0].Revoked = &revoked

	s.ledger.EXPECT().FetchRecord(gomock.Any(), "tx-1").
		Return(&ledger.Record{TxID: "tx-1", MerkleRoot: root, IssuingAddress: issuerAddress}, nil)
	s.issuers.EXPECT().FetchProfile(gomock.Any(), profileURL).Return(meta, nil)
	s.issuers.EXPECT().FetchRevocationList(gomock.Any(), revocationURL).Return(nil, nil)

	res := s.engine.Verify(s.ctx, doc)

	s.Equal(StatusFailure, statuses(res.Steps)[CodeCheckAuthenticity])
	s.Contains(res.Message, "was not valid at issuance time")
}

func (s *EngineSuite) TestInlineMerkleProof2017() {
	doc := map[string]any{
		"@context":     []any{"https://w3id.org/openbadges/v2", "https://w3id.org/blockcerts/v2"},
		"id":           "urn:uuid:cred-2017",
		"type":         "Assertion",
		"issuer":       map[string]any{"id": profileURL, "name": "Acme"},
		"issuanceDate": "2021-05-01",
	}
	canon, err := canonical.Marshal(doc)
	s.Require().NoError(err)
	target := sum(canon)
	sibling := sum([]byte("left sibling"))
	root := sum(sibling, target)
	doc["proof"] = map[string]any{
		"type":       "MerkleProof2017",
		"targetHash": hex.EncodeToString(target),
		"merkleRoot": hex.EncodeToString(root),
		"proof":      []any{map[string]any{"left": hex.EncodeToString(sibling)}},
		"anchors":    []any{map[string]any{"sourceId": "tx-1", "type": "ETHData", "chain": "ethereumMainnet"}},
	}
	raw, err := json.Marshal(doc)
	s.Require().NoError(err)
	s.expectHealthyRemote(hex.EncodeToString(root), 1)

	res := s.engine.Verify(s.ctx, raw)

	s.Equal(VerdictSuccess, res.Status, res.Message)
}

// =============================================================================
// Aborts
// =============================================================================

func (s *EngineSuite) TestFormatGateAbortsBeforeChecks() {
	cases := map[string]string{
		"no proof":           `{"@context":[],"type":["VerifiableCredential"],"issuer":"https://issuer.example","issuanceDate":"2022-01-01"}`,
		"no issuance date":   `{"@context":[],"type":["VerifiableCredential"],"issuer":"https://issuer.example","proof":{"type":"MerkleProof2019","proofValue":"z1"}}`,
		"bad issuer url":     `{"@context":[],"type":["VerifiableCredential"],"issuer":"not a url","issuanceDate":"2022-01-01","proof":{"type":"MerkleProof2019","proofValue":"z1"}}`,
		"proof without type": `{"@context":[],"type":["VerifiableCredential"],"issuer":"https://issuer.example","issuanceDate":"2022-01-01","proof":{"proofValue":"z1"}}`,
	}
	for name, doc := range cases {
		s.Run(name, func() {
			res := s.engine.Verify(s.ctx, []byte(doc))
			s.Equal(StateAborted, res.State)
			s.Equal(VerdictFailure, res.Status)
			s.Require().Len(res.Steps, 1)
			s.Equal(CodeAborted, res.Steps[0].Code)
			s.Contains(res.Message, "Invalid credential format")
		})
	}
}

func (s *EngineSuite) TestCanceledRunFailsOutsideTheLoop() {
	doc, _ := signedCredential(s.T(), nil)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	res := s.engine.Verify(ctx, doc)

	s.Equal(StateAborted, res.State)
	s.Equal("Verification failed: context canceled", res.Message)
}

func TestFailureMessageDetectsNetworkErrors(t *testing.T) {
	dial := &url.Error{
		Op:  "Get",
		URL: "https://ledger.example/tx/1",
		Err: &net.DNSError{Err: "no such host", Name: "ledger.example", IsNotFound: true},
	}
	assert.Equal(t, "Verification failed: network error, please check your connection and try again",
		failureMessage(fmt.Errorf("fetch anchor: %w", dial)))

	assert.Equal(t, "Verification failed: unknown host key format",
		failureMessage(errors.New("unknown host key format")))
}
