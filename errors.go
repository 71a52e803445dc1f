package staffauth

import (
	"errors"
	"fmt"
	"time"
)

// External error taxonomy. Every error returned from an Engine step method
// wraps (or is) one of these; callers branch with errors.Is and must never
// see internal failure detail.
var (
	// ErrInvalidCredentials covers unknown username, wrong role, and wrong
	// password. The three cases are deliberately indistinguishable to the
	// caller; the audit trail records which one occurred.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned once an account is locked. It is stable
	// across retries: only an administrative unlock clears it.
	ErrAccountLocked = errors.New("account locked, contact administrator")
	// ErrInvalidOrExpiredCode is returned for a wrong, expired, or replayed
	// one-time code.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	// ErrTooManyCodeAttempts is returned when the per-challenge attempt
	// budget is exhausted. The login sequence is terminal at that point.
	ErrTooManyCodeAttempts = errors.New("too many code attempts")
	// ErrRateLimited is returned when code delivery is requested faster than
	// the configured resend interval. Unwraps from [RetryAfterError].
	ErrRateLimited = errors.New("rate limited")
	// ErrAttemptExpired is returned when the attempt token does not resolve
	// to a live login sequence: never issued, idle past the attempt window,
	// or already completed or failed.
	ErrAttemptExpired = errors.New("login attempt expired")
	// ErrServiceUnavailable is returned when a collaborator (record store,
	// delivery channel, audit sink, Redis) is unreachable or times out.
	// The condition is transient; the caller may retry the same step.
	ErrServiceUnavailable = errors.New("service unavailable")
)

var (
	// ErrInvalidInput rejects malformed input (empty or oversized username,
	// non-numeric code, out-of-order step submission) at the engine boundary
	// before any collaborator is consulted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionNotFound is returned by session validation for unknown or
	// expired session references.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEngineNotReady is returned when a required collaborator was not
	// wired. Build prevents this; it guards direct struct construction.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrAccountNotFound is the sentinel an [AccountProvider] must return from
// GetAccountByUsername and GetAccountByID when no record matches. It is part
// of the provider contract and is never surfaced to callers.
var ErrAccountNotFound = errors.New("account not found")

// RetryAfterError carries the resend cooldown hint alongside ErrRateLimited.
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RetryAfterError) Unwrap() error {
	return ErrRateLimited
}
