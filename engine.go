package staffauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/staffauth/internal/limiters"
	"github.com/opsdesk/staffauth/internal/stores"
	"github.com/opsdesk/staffauth/session"
)

// Engine drives the staff login state machine. Construct it through
// [Builder.Build]; a zero Engine is not usable. All methods are safe for
// concurrent use.
type Engine struct {
	config     Config
	provider   AccountProvider
	sender     CodeSender
	attempts   *stores.AttemptStore
	challenges *stores.ChallengeStore
	lockout    *limiters.LockoutLimiter
	resend     *limiters.ResendLimiter
	sessions   *session.Store
	audit      AuditSink
	metrics    *Metrics
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.provider == nil || e.sender == nil ||
		e.attempts == nil || e.challenges == nil ||
		e.lockout == nil || e.resend == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return nil
}

// providerCtx bounds a record-store call so a slow store surfaces as
// ErrServiceUnavailable instead of hanging the step.
func (e *Engine) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Provider.CallTimeout)
}

func (e *Engine) deliveryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Delivery.SendTimeout)
}

// recordAudit writes exactly one audit record for a transition. The write is
// synchronous and fail-closed: a sink error fails the step, because an
// authentication transition without a durable record is itself a security
// failure.
func (e *Engine) recordAudit(
	ctx context.Context,
	eventType string,
	step Step,
	accountID, username string,
	success bool,
	reason string,
) error {
	if e.audit == nil {
		return nil
	}

	event := AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Step:      step.String(),
		AccountID: accountID,
		Username:  username,
		Success:   success,
		Reason:    reason,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}

	if err := e.audit.Record(ctx, event); err != nil {
		e.metricInc(MetricAuditWriteFailure)
		return ErrServiceUnavailable
	}
	return nil
}

// auditFail records a failed transition and returns extErr, unless the audit
// write itself failed, in which case ErrServiceUnavailable wins.
func (e *Engine) auditFail(
	ctx context.Context,
	eventType string,
	step Step,
	accountID, username, reason string,
	extErr error,
) error {
	if err := e.recordAudit(ctx, eventType, step, accountID, username, false, reason); err != nil {
		return err
	}
	return extErr
}

// loadAttempt resolves an attempt token for a step operation, enforcing
// ordering and lazy idle expiry. Expired attempts are audited as timeouts
// with whatever account context the stale record still carried.
func (e *Engine) loadAttempt(
	ctx context.Context,
	token string,
	eventType string,
	want Step,
) (*stores.AttemptRecord, error) {
	rec, err := e.attempts.Get(ctx, token)
	switch {
	case errors.Is(err, stores.ErrAttemptNotFound):
		return nil, e.auditFail(ctx, eventType, want, "", "", "attempt_not_found", ErrAttemptExpired)
	case errors.Is(err, stores.ErrAttemptExpired):
		var accountID, username string
		if rec != nil {
			accountID, username = rec.AccountID, rec.Username
		}
		e.metricInc(MetricAttemptExpired)
		return nil, e.auditFail(ctx, eventType, want, accountID, username, "attempt_timeout", ErrAttemptExpired)
	case err != nil:
		return nil, e.auditFail(ctx, eventType, want, "", "", "attempt_store_unavailable", ErrServiceUnavailable)
	}

	if rec.Step != uint8(want) {
		return nil, e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "step_mismatch", ErrInvalidInput)
	}
	return rec, nil
}

// failAttempt deletes the attempt record (terminal transition) and audits the
// failure. Delete errors fail closed.
func (e *Engine) failAttempt(
	ctx context.Context,
	token string,
	eventType string,
	rec *stores.AttemptRecord,
	reason string,
	extErr error,
) error {
	if _, err := e.attempts.Delete(ctx, token); err != nil {
		return e.auditFail(ctx, eventType, Step(rec.Step), rec.AccountID, rec.Username, "attempt_store_unavailable", ErrServiceUnavailable)
	}
	return e.auditFail(ctx, eventType, StepFailed, rec.AccountID, rec.Username, reason, extErr)
}
