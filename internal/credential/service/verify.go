package service

import (
	"context"

	"certwallet/internal/credential/models"
	"certwallet/internal/verification"
	"certwallet/pkg/platform/audit"
)

// VerifyResult is a verification run and the credential with its persisted
// verdict.
type VerifyResult struct {
	Credential *models.Credential   `json:"credential"`
	Result     *verification.Result `json:"result"`
}

// Verify runs the verification pipeline for a held credential and replaces
// its verification block with the verdict. Concurrent calls for the same id
// share one run; only the caller that started it receives progress.
func (s *Service) Verify(ctx context.Context, id string, progress func(verification.Notification)) (*VerifyResult, error) {
	v, err, shared := s.inflight.Do(id, func() (any, error) {
		return s.verify(context.WithoutCancel(ctx), id, progress)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.DebugContext(ctx, "joined in-flight verification", "credential_id", id)
	}
	return v.(*VerifyResult), nil
}

func (s *Service) verify(ctx context.Context, id string, progress func(verification.Notification)) (*VerifyResult, error) {
	cred, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var opts []verification.RunOption
	if progress != nil {
		opts = append(opts, verification.WithProgress(progress))
	}
	result := s.verifier.Verify(ctx, cred.Document, opts...)

	block := toVerification(result)
	updated, err := s.store.Update(ctx, id, models.Patch{Verification: &block})
	if err != nil {
		return nil, translateStoreError(err, "failed to save verification result")
	}

	if s.metrics != nil {
		s.metrics.IncrementVerification(result.Status)
	}
	action := audit.EventCredentialVerified
	if !result.Succeeded() {
		action = audit.EventCredentialFailed
	}
	s.logAudit(ctx, audit.Event{
		Subject: id,
		Action:  string(action),
		Outcome: string(result.State),
		Reason:  result.Message,
	})
	return &VerifyResult{Credential: updated, Result: result}, nil
}

// toVerification converts an engine result into the persisted block.
func toVerification(r *verification.Result) models.Verification {
	status := models.VerificationFailed
	if r.Succeeded() {
		status = models.VerificationVerified
	}
	checkedAt := r.CheckedAt
	steps := make([]models.Step, 0, len(r.Steps))
	for _, st := range r.Steps {
		steps = append(steps, models.Step{
			Code:         st.Code,
			Label:        st.Label,
			Status:       st.Status,
			ErrorMessage: st.ErrorMessage,
			Position:     st.Position,
			Timestamp:    st.Timestamp,
		})
	}
	return models.Verification{
		Status:        status,
		Message:       r.Message,
		LastCheckedAt: &checkedAt,
		Steps:         steps,
	}
}
