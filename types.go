package staffauth

import (
	"context"
	"time"
)

// Step identifies a position in the login sequence. The attempt record only
// ever persists the two intermediate steps; StepCompleted and StepFailed are
// terminal and reported through results and audit records.
type Step uint8

const (
	// StepAwaitingUsername is the implicit initial state. No attempt record
	// exists yet; SubmitUsername is the only accepted input.
	StepAwaitingUsername Step = iota
	// StepAwaitingPassword is entered after the username resolves to an
	// eligible account.
	StepAwaitingPassword
	// StepAwaitingCode is entered after password verification, once a code
	// challenge has been delivered.
	StepAwaitingCode
	// StepCompleted is terminal: a session has been issued.
	StepCompleted
	// StepFailed is terminal: the sequence was abandoned or rejected.
	StepFailed
)

func (s Step) String() string {
	switch s {
	case StepAwaitingUsername:
		return "awaiting_username"
	case StepAwaitingPassword:
		return "awaiting_password"
	case StepAwaitingCode:
		return "awaiting_code"
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	}
	return "unknown"
}

// AccountRecord is the staff account view the engine needs. The provider owns
// the full record (credentials included); the engine only ever sees this
// projection and mutates it through the [AccountProvider] methods.
type AccountRecord struct {
	AccountID   string
	Username    string // unique, matched case-insensitively
	PhoneNumber string // E.164, code delivery target
	Role        string
	Locked      bool
	LastLoginAt time.Time
}

// AccountProvider is the integration contract against the staff record store.
// GetAccountByUsername must match case-insensitively and return
// [ErrAccountNotFound] for unknown usernames. VerifyPassword must be free of
// side effects: it never mutates lock or attempt state, which keeps lockout
// semantics centralized in the engine.
//
// All methods are called with a context bounded by
// [ProviderConfig].CallTimeout.
type AccountProvider interface {
	GetAccountByUsername(ctx context.Context, username string) (AccountRecord, error)
	GetAccountByID(ctx context.Context, accountID string) (AccountRecord, error)
	VerifyPassword(ctx context.Context, accountID, password string) (bool, error)
	SetLocked(ctx context.Context, accountID string, locked bool) error
	RecordLogin(ctx context.Context, accountID string, at time.Time) error
}

// CodeSender delivers one-time codes over the out-of-band channel
// (SMS/WhatsApp-style provider). It returns the provider's message reference.
// The engine applies [DeliveryConfig].SendTimeout and never retries a failed
// send on its own; retry is the caller's decision.
type CodeSender interface {
	SendCode(ctx context.Context, phoneNumber, code string) (string, error)
}

// StepResult is returned by the non-terminal step operations. AttemptToken is
// the only state the caller carries between steps.
type StepResult struct {
	AttemptToken string
	NextStep     Step
	// CodeExpiresAt is set when this step issued or re-issued a code
	// challenge.
	CodeExpiresAt time.Time
}

// LoginResult is returned by SubmitCode on full success. SessionID is an
// opaque reference to the server-held session; no claims or secret material
// are handed to the caller.
type LoginResult struct {
	SessionID string
	AccountID string
	Role      string
	ExpiresAt time.Time
}
