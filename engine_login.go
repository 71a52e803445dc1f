package staffauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/staffauth/internal"
	"github.com/opsdesk/staffauth/internal/stores"
)

// SubmitUsername starts a login sequence. On success the caller receives the
// attempt token to carry through the remaining steps. Unknown accounts,
// role mismatches, and missing accounts are all ErrInvalidCredentials
// externally; the audit trail keeps the distinction.
func (e *Engine) SubmitUsername(ctx context.Context, username string) (*StepResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	submitted := strings.TrimSpace(username)
	if submitted == "" || len(submitted) > e.config.Attempt.MaxUsernameLength {
		// Pure format rejection: no collaborator touched, no audit record.
		return nil, ErrInvalidInput
	}
	normalized := strings.ToLower(submitted)

	pctx, cancel := e.providerCtx(ctx)
	account, err := e.provider.GetAccountByUsername(pctx, normalized)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricUsernameStepFailure)
			return nil, e.auditFail(ctx, auditEventUsernameStep, StepAwaitingUsername, "", submitted, "account_not_found", ErrInvalidCredentials)
		}
		e.metricInc(MetricUsernameStepFailure)
		return nil, e.auditFail(ctx, auditEventUsernameStep, StepAwaitingUsername, "", submitted, "provider_unavailable", ErrServiceUnavailable)
	}

	if e.config.RequiredRole != "" && account.Role != e.config.RequiredRole {
		e.metricInc(MetricUsernameStepFailure)
		return nil, e.auditFail(ctx, auditEventUsernameStep, StepAwaitingUsername, account.AccountID, submitted, "role_mismatch", ErrInvalidCredentials)
	}
	if account.Locked {
		e.metricInc(MetricUsernameStepFailure)
		return nil, e.auditFail(ctx, auditEventUsernameStep, StepAwaitingUsername, account.AccountID, submitted, "account_locked", ErrAccountLocked)
	}

	token, err := internal.NewToken()
	if err != nil {
		e.metricInc(MetricUsernameStepFailure)
		return nil, e.auditFail(ctx, auditEventUsernameStep, StepAwaitingUsername, account.AccountID, submitted, "token_generation_failed", ErrServiceUnavailable)
	}

	window := e.config.Attempt.IdleWindow
	record := &stores.AttemptRecord{
		AccountID: account.AccountID,
		Username:  normalized,
		Step:      uint8(StepAwaitingPassword),
		ExpiresAt: time.Now().Add(window).UnixMilli(),
	}
	if err := e.attempts.Save(ctx, token.String(), record, window); err != nil {
		e.metricInc(MetricUsernameStepFailure)
		return nil, e.auditFail(ctx, auditEventUsernameStep, StepAwaitingUsername, account.AccountID, submitted, "attempt_store_unavailable", ErrServiceUnavailable)
	}

	if err := e.recordAudit(ctx, auditEventUsernameStep, StepAwaitingPassword, account.AccountID, submitted, true, ""); err != nil {
		// Fail closed: a sequence the audit trail never saw must not run.
		_, _ = e.attempts.Delete(ctx, token.String())
		return nil, err
	}

	e.metricInc(MetricUsernameStepSuccess)
	return &StepResult{
		AttemptToken: token.String(),
		NextStep:     StepAwaitingPassword,
	}, nil
}

// SubmitPassword advances an attempt past the password step. A correct
// password resets the failure counter and triggers code delivery as a side
// effect; a wrong password counts toward lockout and ends the sequence.
// When delivery fails, the attempt stays at the password step so the caller
// can retry without restarting.
func (e *Engine) SubmitPassword(ctx context.Context, attemptToken, password string) (*StepResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if attemptToken == "" || password == "" {
		return nil, ErrInvalidInput
	}

	rec, err := e.loadAttempt(ctx, attemptToken, auditEventPasswordStep, StepAwaitingPassword)
	if err != nil {
		return nil, err
	}

	pctx, cancel := e.providerCtx(ctx)
	account, err := e.provider.GetAccountByID(pctx, rec.AccountID)
	cancel()
	if err != nil {
		e.metricInc(MetricPasswordStepFailure)
		if errors.Is(err, ErrAccountNotFound) {
			// Account deleted mid-sequence.
			return nil, e.failAttempt(ctx, attemptToken, auditEventPasswordStep, rec, "account_missing", ErrInvalidCredentials)
		}
		return nil, e.auditFail(ctx, auditEventPasswordStep, StepAwaitingPassword, rec.AccountID, rec.Username, "provider_unavailable", ErrServiceUnavailable)
	}
	if account.Locked {
		// Locked concurrently since the username step.
		e.metricInc(MetricPasswordStepFailure)
		return nil, e.failAttempt(ctx, attemptToken, auditEventPasswordStep, rec, "account_locked", ErrAccountLocked)
	}

	pctx, cancel = e.providerCtx(ctx)
	valid, err := e.provider.VerifyPassword(pctx, rec.AccountID, password)
	cancel()
	if err != nil {
		e.metricInc(MetricPasswordStepFailure)
		return nil, e.auditFail(ctx, auditEventPasswordStep, StepAwaitingPassword, rec.AccountID, rec.Username, "provider_unavailable", ErrServiceUnavailable)
	}

	if !valid {
		return nil, e.handlePasswordFailure(ctx, attemptToken, rec)
	}

	if err := e.lockout.Reset(ctx, rec.AccountID); err != nil {
		e.metricInc(MetricPasswordStepFailure)
		return nil, e.auditFail(ctx, auditEventPasswordStep, StepAwaitingPassword, rec.AccountID, rec.Username, "lockout_unavailable", ErrServiceUnavailable)
	}

	expiresAt, err := e.issueChallenge(ctx, attemptToken, rec, account, auditEventPasswordStep)
	if err != nil {
		return nil, err
	}

	if err := e.recordAudit(ctx, auditEventPasswordStep, StepAwaitingCode, rec.AccountID, rec.Username, true, ""); err != nil {
		// Fail closed: a transition the audit trail never saw must not
		// stay reachable, so the sequence ends here.
		_, _ = e.challenges.Delete(ctx, rec.ChallengeID)
		_, _ = e.attempts.Delete(ctx, attemptToken)
		return nil, err
	}

	e.metricInc(MetricPasswordStepSuccess)
	return &StepResult{
		AttemptToken:  attemptToken,
		NextStep:      StepAwaitingCode,
		CodeExpiresAt: expiresAt,
	}, nil
}

// handlePasswordFailure applies the lockout policy for one wrong password.
// The counter is an atomic Redis increment, and every failure at or past the
// threshold re-asserts the lock. SetLocked is idempotent, so racing failures
// still produce a single provider transition, and a failed lock write at the
// threshold is retried by the next failure instead of being lost.
func (e *Engine) handlePasswordFailure(ctx context.Context, attemptToken string, rec *stores.AttemptRecord) error {
	_, shouldLock, err := e.lockout.RecordFailure(ctx, rec.AccountID)
	if err != nil {
		e.metricInc(MetricPasswordStepFailure)
		return e.auditFail(ctx, auditEventPasswordStep, StepAwaitingPassword, rec.AccountID, rec.Username, "lockout_unavailable", ErrServiceUnavailable)
	}

	if shouldLock {
		pctx, cancel := e.providerCtx(ctx)
		err := e.provider.SetLocked(pctx, rec.AccountID, true)
		cancel()
		if err != nil {
			e.metricInc(MetricPasswordStepFailure)
			return e.auditFail(ctx, auditEventPasswordStep, StepAwaitingPassword, rec.AccountID, rec.Username, "provider_unavailable", ErrServiceUnavailable)
		}
		e.metricInc(MetricAccountLockout)
		e.metricInc(MetricPasswordStepFailure)
		return e.failAttempt(ctx, attemptToken, auditEventPasswordStep, rec, "password_mismatch_lockout", ErrAccountLocked)
	}

	e.metricInc(MetricPasswordStepFailure)
	return e.failAttempt(ctx, attemptToken, auditEventPasswordStep, rec, "password_mismatch", ErrInvalidCredentials)
}

// issueChallenge generates a one-time code, delivers it, and binds the new
// challenge to the attempt. The resend interval is reserved before the send
// so the paid channel is never called faster than configured; the challenge
// is only replaced after a successful send, which keeps the previous code
// valid across delivery failures.
func (e *Engine) issueChallenge(
	ctx context.Context,
	attemptToken string,
	rec *stores.AttemptRecord,
	account AccountRecord,
	eventType string,
) (time.Time, error) {
	retryAfter, ok, err := e.resend.Reserve(ctx, rec.AccountID)
	if err != nil {
		return time.Time{}, e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "resend_limiter_unavailable", ErrServiceUnavailable)
	}
	if !ok {
		e.metricInc(MetricResendRateLimited)
		return time.Time{}, e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "resend_rate_limited", &RetryAfterError{RetryAfter: retryAfter})
	}

	code, err := internal.NewCode(e.config.Code.Digits)
	if err != nil {
		_ = e.resend.Release(ctx, rec.AccountID)
		return time.Time{}, e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "code_generation_failed", ErrServiceUnavailable)
	}

	dctx, cancel := e.deliveryCtx(ctx)
	_, err = e.sender.SendCode(dctx, account.PhoneNumber, code)
	cancel()
	if err != nil {
		// Nothing went out: give the cooldown slot back so the retry is
		// not also rate limited.
		_ = e.resend.Release(ctx, rec.AccountID)
		return time.Time{}, e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "delivery_failed", ErrServiceUnavailable)
	}

	challengeID := uuid.NewString()
	expiresAt := time.Now().Add(e.config.Code.TTL)
	challenge := &stores.ChallengeRecord{
		AccountID: rec.AccountID,
		CodeHash:  internal.HashCode(code),
		ExpiresAt: expiresAt.UnixMilli(),
	}
	if err := e.challenges.Save(ctx, challengeID, challenge, e.config.Code.TTL); err != nil {
		return time.Time{}, e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "challenge_store_unavailable", ErrServiceUnavailable)
	}

	previous := rec.ChallengeID
	updated, err := e.attempts.Advance(ctx, attemptToken, rec.Step, e.config.Attempt.IdleWindow, func(r *stores.AttemptRecord) {
		r.Step = uint8(StepAwaitingCode)
		r.ChallengeID = challengeID
	})
	if err != nil {
		_, _ = e.challenges.Delete(ctx, challengeID)
		if errors.Is(err, stores.ErrAttemptExpired) || errors.Is(err, stores.ErrAttemptNotFound) {
			e.metricInc(MetricAttemptExpired)
			return time.Time{}, e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "attempt_timeout", ErrAttemptExpired)
		}
		return time.Time{}, e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "attempt_store_unavailable", ErrServiceUnavailable)
	}
	*rec = *updated

	if previous != "" && previous != challengeID {
		// Replaced challenge: the old correlation token must stop verifying.
		_, _ = e.challenges.Delete(ctx, previous)
	}

	return expiresAt, nil
}
