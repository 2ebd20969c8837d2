// Package verification checks a credential document against its ledger
// anchor and its issuer's published keys, reporting each check as it runs.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certwallet/internal/canonical"
	"certwallet/internal/credential/normalizer"
	issuerModels "certwallet/internal/issuer/models"
	"certwallet/internal/verification/ledger"
)

const DefaultCheckTimeout = 15 * time.Second

// State is the engine's position in a run.
type State string

const (
	StateIdle             State = "idle"
	StateInitializing     State = "initializing"
	StateValidatingFormat State = "validating_format"
	StateRunningChecks    State = "running_checks"
	StateCompleted        State = "completed"
	StateAborted          State = "aborted"
)

// Verdict statuses.
const (
	VerdictSuccess = "success"
	VerdictFailure = "failure"
)

type Ledger interface {
	FetchRecord(ctx context.Context, txID string) (*ledger.Record, error)
}

type IssuerDirectory interface {
	FetchProfile(ctx context.Context, profileURL string) (*issuerModels.Metadata, error)
	FetchRevocationList(ctx context.Context, listURL string) ([]string, error)
}

// StepObserver receives the duration of every resolved check.
type StepObserver interface {
	ObserveStep(code, status string, d time.Duration)
}

// Result is the verdict of one run plus its step log.
type Result struct {
	State         State     `json:"state"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Steps         []Step    `json:"steps"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Succeeded reports a completed run where every check passed.
func (r *Result) Succeeded() bool {
	return r.State == StateCompleted && r.Status == VerdictSuccess
}

// Engine runs the check pipeline. It keeps no state between runs.
type Engine struct {
	ledger        Ledger
	issuers       IssuerDirectory
	canonicalizer canonical.Canonicalizer
	checkTimeout  time.Duration
	stepDelay     time.Duration
	clock         func() time.Time
	tracer        trace.Tracer
	logger        *slog.Logger
	observer      StepObserver
}

type Option func(*Engine)

func WithCanonicalizer(c canonical.Canonicalizer) Option {
	return func(e *Engine) { e.canonicalizer = c }
}

// WithCheckTimeout bounds each check; a check that runs out of time fails on
// its own without aborting the run.
func WithCheckTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.checkTimeout = d
		}
	}
}

// WithStepDelay pauses after every progress notification so a human can follow along.
func WithStepDelay(d time.Duration) Option {
	return func(e *Engine) { e.stepDelay = d }
}

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithStepObserver(o StepObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// New builds an engine reading anchors from l and issuer data from issuers.
func New(l Ledger, issuers IssuerDirectory, opts ...Option) *Engine {
	e := &Engine{
		ledger:        l,
		issuers:       issuers,
		canonicalizer: canonical.SortedJSON{},
		checkTimeout:  DefaultCheckTimeout,
		clock:         time.Now,
		tracer:        otel.Tracer("certwallet/verification"),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type runConfig struct {
	progress func(Notification)
}

type RunOption func(*runConfig)

// WithProgress delivers every notification as it is recorded.
func WithProgress(fn func(Notification)) RunOption {
	return func(c *runConfig) { c.progress = fn }
}

type check struct {
	code string
	fn   func(ctx context.Context) error
}

func (r *run) pipeline() []check {
	return []check{
		{CodeGetTransactionID, r.getTransactionID},
		{CodeComputeLocalHash, r.computeLocalHash},
		{CodeFetchRemoteHash, r.fetchRemoteHash},
		{CodeCompareHashes, r.compareHashes},
		{CodeCheckMerkleRoot, r.checkMerkleRoot},
		{CodeCheckReceipt, r.checkReceipt},
		{CodeParseIssuerKeys, r.parseIssuerKeys},
		{CodeCheckAuthenticity, r.checkAuthenticity},
		{CodeCheckRevokedStatus, r.checkRevokedStatus},
		{CodeCheckExpiresDate, r.checkExpiresDate},
	}
}

// run is the state of one verification; checks read what earlier checks
// produced and fail when it is missing.
type run struct {
	engine   *Engine
	log      *StepLog
	progress func(Notification)
	state    State

	document []byte
	doc      map[string]any
	now      time.Time

	receipt   *Receipt
	txID      string
	localHash string
	record    *ledger.Record
	issuer    *issuerModels.Metadata
}

// Verify runs the pipeline on document. Check failures are part of the
// result, never returned as errors.
func (e *Engine) Verify(ctx context.Context, document []byte, opts ...RunOption) *Result {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, span := e.tracer.Start(ctx, "verification.Verify")
	defer span.End()

	r := &run{
		engine:   e,
		log:      NewStepLog(),
		progress: cfg.progress,
		state:    StateInitializing,
		document: document,
		now:      e.clock(),
	}

	r.state = StateValidatingFormat
	if problems := checkFormat(document); len(problems) > 0 {
		msg := "Invalid credential format: " + problems[0]
		r.emit(ctx, Notification{Code: CodeAborted, Label: "Verification aborted", Status: StatusFailure, ErrorMessage: msg})
		span.SetStatus(codes.Error, msg)
		e.logger.InfoContext(ctx, "verification aborted", "reason", msg)
		return r.finish(StateAborted, VerdictFailure, msg)
	}
	decoded, err := canonical.Decode(document)
	if err != nil {
		return r.finish(StateAborted, VerdictFailure, failureMessage(err))
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return r.finish(StateAborted, VerdictFailure, failureMessage(errors.New("credential must be a JSON object")))
	}
	r.doc = doc

	r.state = StateRunningChecks
	for _, c := range r.pipeline() {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return r.finish(StateAborted, VerdictFailure, failureMessage(err))
		}
		r.runCheck(ctx, c)
	}

	span.SetAttributes(attribute.String("verification.transaction_id", r.txID))
	if step, failed := r.log.FirstFailure(); failed {
		span.SetStatus(codes.Error, step.ErrorMessage)
		return r.finish(StateCompleted, VerdictFailure, step.ErrorMessage)
	}
	return r.finish(StateCompleted, VerdictSuccess, "Credential verified")
}

func (r *run) runCheck(ctx context.Context, c check) {
	def, _ := Lookup(c.code)
	ctx, span := r.engine.tracer.Start(ctx, "verification."+c.code)
	defer span.End()

	r.emit(ctx, Notification{Code: def.Code, Label: def.Label, Status: StatusStarting})

	started := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, r.engine.checkTimeout)
	err := c.fn(checkCtx)
	cancel()

	n := Notification{Code: def.Code, Label: def.Label, Status: StatusSuccess}
	if err != nil {
		n.Status = StatusFailure
		n.ErrorMessage = r.engine.checkMessage(def, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, n.ErrorMessage)
		r.engine.logger.DebugContext(ctx, "verification check failed",
			"code", def.Code,
			"error", err,
		)
	}
	if r.engine.observer != nil {
		r.engine.observer.ObserveStep(def.Code, n.Status, time.Since(started))
	}
	r.emit(ctx, n)
}

func (r *run) emit(ctx context.Context, n Notification) {
	r.log.Record(n, r.engine.clock())
	if r.progress != nil {
		r.progress(n)
	}
	if d := r.engine.stepDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}
}

func (r *run) finish(state State, status, message string) *Result {
	r.state = state
	return &Result{
		State:         state,
		Status:        status,
		Message:       message,
		TransactionID: r.txID,
		Steps:         r.log.Steps(),
		CheckedAt:     r.now,
	}
}

func (e *Engine) checkMessage(def Definition, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s timed out after %s", def.Label, e.checkTimeout)
	}
	return err.Error()
}

// failureMessage phrases an error raised outside the check loop.
func failureMessage(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "Verification failed: network error, please check your connection and try again"
	}
	return "Verification failed: " + err.Error()
}

// Checks.

func (r *run) getTransactionID(_ context.Context) error {
	proof, ok := r.doc["proof"].(map[string]any)
	if !ok {
		return errors.New("credential proof is not an object")
	}
	receipt, err := DecodeReceipt(proof)
	if err != nil {
		return err
	}
	txID, err := receipt.TransactionID()
	if err != nil {
		return err
	}
	r.receipt, r.txID = receipt, txID
	return nil
}

func (r *run) computeLocalHash(ctx context.Context) error {
	unsigned := lo.OmitByKeys(r.doc, []string{"proof"})
	b, err := r.engine.canonicalizer.Canonicalize(ctx, unsigned)
	if err != nil {
		return fmt.Errorf("could not canonicalize credential: %w", err)
	}
	r.localHash = canonical.Hash(b)
	return nil
}

func (r *run) fetchRemoteHash(ctx context.Context) error {
	if r.txID == "" {
		return errors.New("transaction id unavailable")
	}
	rec, err := r.engine.ledger.FetchRecord(ctx, r.txID)
	if err != nil {
		return err
	}
	r.record = rec
	return nil
}

func (r *run) compareHashes(_ context.Context) error {
	if r.receipt == nil || r.localHash == "" {
		return errors.New("hashes unavailable for comparison")
	}
	if !strings.EqualFold(r.localHash, r.receipt.TargetHash) {
		return errors.New("Computed hash does not match remote hash")
	}
	return nil
}

func (r *run) checkMerkleRoot(_ context.Context) error {
	if r.receipt == nil {
		return errors.New("receipt unavailable")
	}
	root, err := r.receipt.ComputeRoot()
	if err != nil {
		return err
	}
	if root != r.receipt.MerkleRoot {
		return errors.New("Merkle root does not match the receipt path")
	}
	return nil
}

func (r *run) checkReceipt(_ context.Context) error {
	if r.receipt == nil || r.record == nil {
		return errors.New("remote hash unavailable")
	}
	if !strings.EqualFold(r.record.MerkleRoot, r.receipt.MerkleRoot) {
		return errors.New("Anchored Merkle root does not match the receipt")
	}
	return nil
}

func (r *run) parseIssuerKeys(ctx context.Context) error {
	profileURL := normalizer.ParseIssuer(gjson.GetBytes(r.document, "issuer")).ProfileURL()
	meta, err := r.engine.issuers.FetchProfile(ctx, profileURL)
	if err != nil {
		return err
	}
	if len(meta.Keys) == 0 {
		return errors.New("issuer profile publishes no keys")
	}
	r.issuer = meta
	return nil
}

func (r *run) checkAuthenticity(_ context.Context) error {
	if r.record == nil {
		return errors.New("issuing address unavailable")
	}
	if r.issuer == nil {
		return errors.New("issuer keys unavailable")
	}
	if vm := gjson.GetBytes(r.document, "proof.verificationMethod").String(); vm != "" {
		if !lo.ContainsBy(r.issuer.Keys, func(k issuerModels.Key) bool { return k.ID == vm }) {
			return fmt.Errorf("verification method %s is not published by the issuer", vm)
		}
	}
	key, found := lo.Find(r.issuer.Keys, func(k issuerModels.Key) bool {
		return strings.EqualFold(k.Address(), r.record.IssuingAddress)
	})
	if !found {
		return fmt.Errorf("issuing address %s does not match any issuer key", r.record.IssuingAddress)
	}
	issuedAt := r.now
	if t := normalizer.ParseTime(firstString(r.document, "issuanceDate", "validFrom")); t != nil {
		issuedAt = *t
	}
	if !key.ValidAt(issuedAt) {
		return fmt.Errorf("issuer key %s was not valid at issuance time", key.ID)
	}
	return nil
}

func (r *run) checkRevokedStatus(ctx context.Context) error {
	listURL := gjson.GetBytes(r.document, "credentialStatus.id").String()
	if !strings.HasPrefix(listURL, "http://") && !strings.HasPrefix(listURL, "https://") {
		listURL = ""
	}
	if listURL == "" {
		if r.issuer == nil {
			return errors.New("revocation status unavailable: issuer profile could not be read")
		}
		listURL = r.issuer.RevocationList
	}
	if listURL == "" {
		return nil
	}
	revoked, err := r.engine.issuers.FetchRevocationList(ctx, listURL)
	if err != nil {
		return err
	}
	id := gjson.GetBytes(r.document, "id").String()
	if id != "" && lo.Contains(revoked, id) {
		return errors.New("This credential has been revoked by the issuer")
	}
	return nil
}

func (r *run) checkExpiresDate(_ context.Context) error {
	exp := normalizer.ParseTime(firstString(r.document, "expirationDate", "validUntil"))
	if exp != nil && !exp.After(r.now) {
		return fmt.Errorf("This credential expired on %s", exp.Format("2006-01-02"))
	}
	return nil
}

func firstString(document []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(document, p); v.String() != "" {
			return v.String()
		}
	}
	return ""
}
