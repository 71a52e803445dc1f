package staffauth

import (
	"context"
	"errors"

	"github.com/opsdesk/staffauth/session"
)

// ValidateSession resolves an opaque session reference to the server-held
// session. Unknown and expired references both return ErrSessionNotFound.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, ErrInvalidInput
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, ErrServiceUnavailable
	}
	return sess, nil
}

// Logout invalidates a session. Idempotent: an already-gone session returns
// ErrSessionNotFound without an audit record.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sessionID == "" {
		return ErrInvalidInput
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return ErrServiceUnavailable
	}

	if _, err := e.sessions.Delete(ctx, sessionID); err != nil {
		return ErrServiceUnavailable
	}

	if err := e.recordAudit(ctx, auditEventLogout, StepCompleted, sess.AccountID, "", true, ""); err != nil {
		return err
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}

// AdminUnlock clears an account lock and its failure counter. This is the
// only path out of a lockout; the login flow itself never unlocks.
func (e *Engine) AdminUnlock(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accountID == "" {
		return ErrInvalidInput
	}

	pctx, cancel := e.providerCtx(ctx)
	err := e.provider.SetLocked(pctx, accountID, false)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return ErrServiceUnavailable
	}

	if err := e.lockout.Reset(ctx, accountID); err != nil {
		return ErrServiceUnavailable
	}

	return e.recordAudit(ctx, auditEventAdminUnlock, StepAwaitingUsername, accountID, "", true, "")
}

// FailedAttempts reports the current failed-password count for an account.
// Intended for administrative introspection.
func (e *Engine) FailedAttempts(ctx context.Context, accountID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	count, err := e.lockout.FailureCount(ctx, accountID)
	if err != nil {
		return 0, ErrServiceUnavailable
	}
	return count, nil
}
