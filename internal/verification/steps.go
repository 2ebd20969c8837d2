package verification

import (
	"sort"
	"sync"
	"time"
)

// Step statuses.
const (
	StatusStarting = "starting"
	StatusSuccess  = "success"
	StatusFailure  = "failure"
)

// Check codes in canonical order.
const (
	CodeGetTransactionID   = "getTransactionId"
	CodeComputeLocalHash   = "computeLocalHash"
	CodeFetchRemoteHash    = "fetchRemoteHash"
	CodeCompareHashes      = "compareHashes"
	CodeCheckMerkleRoot    = "checkMerkleRoot"
	CodeCheckReceipt       = "checkReceipt"
	CodeParseIssuerKeys    = "parseIssuerKeys"
	CodeCheckAuthenticity  = "checkAuthenticity"
	CodeCheckRevokedStatus = "checkRevokedStatus"
	CodeCheckExpiresDate   = "checkExpiresDate"

	// CodeAborted is the single step logged when the format gate fails.
	CodeAborted = "verificationAborted"
)

// PhaseStatusCheck groups the revocation and expiration checks.
const (
	PhaseStatusCheck      = "statusCheck"
	PhaseStatusCheckLabel = "Status Check"
)

// Definition is one row of the step table.
type Definition struct {
	Code     string
	Label    string
	Position int
	Phase    string
	Aliases  []string
}

var definitions = []Definition{
	{Code: CodeGetTransactionID, Label: "Get transaction ID", Aliases: []string{"formatValidation"}},
	{Code: CodeComputeLocalHash, Label: "Compute local hash", Aliases: []string{"hashComparison"}},
	{Code: CodeFetchRemoteHash, Label: "Fetch remote hash", Aliases: []string{"remoteHashRequest"}},
	{Code: CodeCompareHashes, Label: "Compare hashes", Aliases: []string{"merkleProofVerification"}},
	{Code: CodeCheckMerkleRoot, Label: "Check Merkle Root", Aliases: []string{"merkleRootVerification", "merkleRoot"}},
	{Code: CodeCheckReceipt, Label: "Check Receipt", Aliases: []string{"receiptVerification", "blockchainVerification"}},
	{Code: CodeParseIssuerKeys, Label: "Parse issuer keys", Aliases: []string{"issuerVerification", "issuerIdentity"}},
	{Code: CodeCheckAuthenticity, Label: "Check Authenticity", Aliases: []string{"signatureVerification", "proofVerification"}},
	{Code: CodeCheckRevokedStatus, Label: "Check Revoked Status", Phase: PhaseStatusCheck, Aliases: []string{"revocationVerification"}},
	{Code: CodeCheckExpiresDate, Label: "Check Expiration Date", Phase: PhaseStatusCheck, Aliases: []string{"expirationVerification"}},
}

var byCode = func() map[string]Definition {
	m := make(map[string]Definition, len(definitions)*3)
	for i := range definitions {
		definitions[i].Position = i
		d := definitions[i]
		m[d.Code] = d
		for _, alias := range d.Aliases {
			m[alias] = d
		}
	}
	return m
}()

// Lookup resolves a code or alias to its table row.
func Lookup(code string) (Definition, bool) {
	d, ok := byCode[code]
	return d, ok
}

// Definitions returns the step table in canonical order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Notification is a progress event for one check.
type Notification struct {
	Code         string `json:"code"`
	Label        string `json:"label"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Step is one entry of a run's step log.
type Step struct {
	Code         string    `json:"code"`
	Label        string    `json:"label"`
	Phase        string    `json:"phase,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Position     int       `json:"position"`
	Timestamp    time.Time `json:"timestamp"`

	seq int
}

// StepLog collects notifications into display order. Recognized codes take
// their table position; unknown codes go right after the last recognized step
// seen so far. A repeated code overwrites its entry.
type StepLog struct {
	mu        sync.Mutex
	steps     []Step
	index     map[string]int
	lastKnown int
	seq       int
}

func NewStepLog() *StepLog {
	return &StepLog{index: make(map[string]int), lastKnown: -1}
}

// Record places n in the log and returns the stored step.
func (l *StepLog) Record(n Notification, at time.Time) Step {
	l.mu.Lock()
	defer l.mu.Unlock()

	step := Step{
		Code:         n.Code,
		Label:        n.Label,
		Status:       n.Status,
		ErrorMessage: n.ErrorMessage,
		Timestamp:    at,
	}
	if d, ok := Lookup(n.Code); ok {
		step.Code = d.Code
		step.Label = d.Label
		step.Phase = d.Phase
		step.Position = d.Position
		if d.Position > l.lastKnown {
			l.lastKnown = d.Position
		}
	} else {
		if step.Label == "" {
			step.Label = n.Code
		}
		step.Position = l.lastKnown + 1
	}

	if i, ok := l.index[step.Code]; ok {
		prev := l.steps[i]
		step.seq = prev.seq
		if _, known := Lookup(step.Code); !known {
			step.Position = prev.Position
		}
		l.steps[i] = step
		return step
	}
	l.seq++
	step.seq = l.seq
	l.index[step.Code] = len(l.steps)
	l.steps = append(l.steps, step)
	return step
}

// Steps returns a copy ordered by position, ties broken by arrival.
func (l *StepLog) Steps() []Step {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Step, len(l.steps))
	copy(out, l.steps)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// FirstFailure returns the first failed step in display order.
func (l *StepLog) FirstFailure() (Step, bool) {
	for _, s := range l.Steps() {
		if s.Status == StatusFailure {
			return s, true
		}
	}
	return Step{}, false
}
