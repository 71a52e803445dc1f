package staffauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/opsdesk/staffauth/internal"
	"github.com/opsdesk/staffauth/internal/stores"
	"github.com/opsdesk/staffauth/session"
)

// SubmitCode completes a login sequence. A correct code within the challenge
// budget issues the session; a wrong code consumes one attempt and leaves the
// sequence open until the budget or the challenge expiry runs out.
func (e *Engine) SubmitCode(ctx context.Context, attemptToken, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if attemptToken == "" {
		return nil, ErrInvalidInput
	}
	code = strings.TrimSpace(code)
	if !validCodeFormat(code, e.config.Code.Digits) {
		return nil, ErrInvalidInput
	}

	rec, err := e.loadAttempt(ctx, attemptToken, auditEventCodeStep, StepAwaitingCode)
	if err != nil {
		return nil, err
	}

	_, err = e.challenges.Consume(ctx, rec.ChallengeID, internal.HashCode(code), e.config.Code.MaxAttempts)
	if err != nil {
		return nil, e.handleCodeFailure(ctx, attemptToken, rec, err)
	}

	return e.completeLogin(ctx, attemptToken, rec)
}

// ResendCode re-issues the one-time code for a sequence awaiting code entry,
// replacing the previous challenge. Calls inside the resend interval return
// ErrRateLimited wrapped in a [RetryAfterError]; the previous code stays
// valid until its own expiry in that case.
func (e *Engine) ResendCode(ctx context.Context, attemptToken string) (*StepResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if attemptToken == "" {
		return nil, ErrInvalidInput
	}

	rec, err := e.loadAttempt(ctx, attemptToken, auditEventCodeResend, StepAwaitingCode)
	if err != nil {
		return nil, err
	}

	pctx, cancel := e.providerCtx(ctx)
	account, err := e.provider.GetAccountByID(pctx, rec.AccountID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.failAttempt(ctx, attemptToken, auditEventCodeResend, rec, "account_missing", ErrInvalidCredentials)
		}
		return nil, e.auditFail(ctx, auditEventCodeResend, StepAwaitingCode, rec.AccountID, rec.Username, "provider_unavailable", ErrServiceUnavailable)
	}
	if account.Locked {
		return nil, e.failAttempt(ctx, attemptToken, auditEventCodeResend, rec, "account_locked", ErrAccountLocked)
	}

	expiresAt, err := e.issueChallenge(ctx, attemptToken, rec, account, auditEventCodeResend)
	if err != nil {
		return nil, err
	}

	if err := e.recordAudit(ctx, auditEventCodeResend, StepAwaitingCode, rec.AccountID, rec.Username, true, ""); err != nil {
		// Fail closed: the replacement code went out unaudited, so the
		// sequence must not continue.
		_, _ = e.challenges.Delete(ctx, rec.ChallengeID)
		_, _ = e.attempts.Delete(ctx, attemptToken)
		return nil, err
	}

	e.metricInc(MetricCodeResent)
	return &StepResult{
		AttemptToken:  attemptToken,
		NextStep:      StepAwaitingCode,
		CodeExpiresAt: expiresAt,
	}, nil
}

func (e *Engine) handleCodeFailure(ctx context.Context, attemptToken string, rec *stores.AttemptRecord, cause error) error {
	e.metricInc(MetricCodeStepFailure)
	switch {
	case errors.Is(cause, stores.ErrChallengeMismatch):
		// Within budget: the sequence stays open for another try.
		return e.auditFail(ctx, auditEventCodeStep, StepAwaitingCode, rec.AccountID, rec.Username, "code_mismatch", ErrInvalidOrExpiredCode)
	case errors.Is(cause, stores.ErrChallengeExceeded):
		return e.failAttempt(ctx, attemptToken, auditEventCodeStep, rec, "code_attempts_exceeded", ErrTooManyCodeAttempts)
	case errors.Is(cause, stores.ErrChallengeExpired):
		return e.failAttempt(ctx, attemptToken, auditEventCodeStep, rec, "code_expired", ErrInvalidOrExpiredCode)
	case errors.Is(cause, stores.ErrChallengeNotFound):
		// Consumed or never issued: treat like an expired code.
		return e.failAttempt(ctx, attemptToken, auditEventCodeStep, rec, "code_challenge_missing", ErrInvalidOrExpiredCode)
	default:
		return e.auditFail(ctx, auditEventCodeStep, StepAwaitingCode, rec.AccountID, rec.Username, "challenge_store_unavailable", ErrServiceUnavailable)
	}
}

// completeLogin runs the terminal success transition: attempt retired, last
// login recorded, session written, and the success audited before the session
// reference is released; an audit failure tears the session back down.
func (e *Engine) completeLogin(ctx context.Context, attemptToken string, rec *stores.AttemptRecord) (*LoginResult, error) {
	if _, err := e.attempts.Delete(ctx, attemptToken); err != nil {
		e.metricInc(MetricCodeStepFailure)
		return nil, e.auditFail(ctx, auditEventCodeStep, StepAwaitingCode, rec.AccountID, rec.Username, "attempt_store_unavailable", ErrServiceUnavailable)
	}

	now := time.Now()

	pctx, cancel := e.providerCtx(ctx)
	err := e.provider.RecordLogin(pctx, rec.AccountID, now)
	cancel()
	if err != nil {
		e.metricInc(MetricCodeStepFailure)
		return nil, e.auditFail(ctx, auditEventCodeStep, StepAwaitingCode, rec.AccountID, rec.Username, "provider_unavailable", ErrServiceUnavailable)
	}

	pctx, cancel = e.providerCtx(ctx)
	account, err := e.provider.GetAccountByID(pctx, rec.AccountID)
	cancel()
	if err != nil {
		e.metricInc(MetricCodeStepFailure)
		return nil, e.auditFail(ctx, auditEventCodeStep, StepAwaitingCode, rec.AccountID, rec.Username, "provider_unavailable", ErrServiceUnavailable)
	}

	sid, err := internal.NewToken()
	if err != nil {
		e.metricInc(MetricCodeStepFailure)
		return nil, e.auditFail(ctx, auditEventCodeStep, StepAwaitingCode, rec.AccountID, rec.Username, "session_id_generation", ErrServiceUnavailable)
	}

	sess := &session.Session{
		SessionID: sid.String(),
		AccountID: rec.AccountID,
		Role:      account.Role,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(e.config.Session.Lifetime).UnixMilli(),
	}
	if err := e.sessions.Save(ctx, sess, e.config.Session.Lifetime); err != nil {
		e.metricInc(MetricCodeStepFailure)
		return nil, e.auditFail(ctx, auditEventCodeStep, StepAwaitingCode, rec.AccountID, rec.Username, "session_store_unavailable", ErrServiceUnavailable)
	}

	if err := e.recordAudit(ctx, auditEventCodeStep, StepCompleted, rec.AccountID, rec.Username, true, ""); err != nil {
		// No durable record, no session: fail closed.
		_, _ = e.sessions.Delete(ctx, sess.SessionID)
		return nil, err
	}

	e.metricInc(MetricCodeStepSuccess)
	e.metricInc(MetricSessionIssued)
	return &LoginResult{
		SessionID: sess.SessionID,
		AccountID: rec.AccountID,
		Role:      account.Role,
		ExpiresAt: time.UnixMilli(sess.ExpiresAt),
	}, nil
}

func validCodeFormat(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
