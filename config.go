package staffauth

import (
	"errors"
	"time"
)

// Config holds all engine tuning parameters. Zero values are filled with
// defaults by [DefaultConfig]; [Config.Validate] rejects inconsistent
// combinations at build time.
type Config struct {
	Attempt  AttemptConfig
	Lockout  LockoutConfig
	Code     CodeConfig
	Delivery DeliveryConfig
	Session  SessionConfig
	Provider ProviderConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// RequiredRole gates the flow: only accounts holding this role may
	// authenticate through this engine. Empty disables the gate.
	RequiredRole string
}

// AttemptConfig tunes the per-sequence attempt record.
type AttemptConfig struct {
	// IdleWindow bounds the time between transitions. An attempt idle past
	// the window fails lazily on next access and is never resumable.
	IdleWindow time.Duration
	// RedisPrefix namespaces attempt keys.
	RedisPrefix string
	// MaxUsernameLength bounds the accepted username input.
	MaxUsernameLength int
}

// LockoutConfig tunes the persistent failed-password counter.
type LockoutConfig struct {
	// MaxAttempts is the failure count at which the account is locked.
	MaxAttempts int
	// CounterWindow is the rolling window for counting failures.
	// 0 means failures accumulate until reset by a successful login or an
	// administrative unlock.
	CounterWindow time.Duration
}

// CodeConfig tunes the one-time code challenge.
type CodeConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	// RedisPrefix namespaces challenge keys.
	RedisPrefix string
}

// DeliveryConfig tunes calls to the out-of-band delivery channel.
type DeliveryConfig struct {
	// SendTimeout bounds a single CodeSender call. A send that exceeds it
	// fails the step with ErrServiceUnavailable rather than hanging.
	SendTimeout time.Duration
	// ResendInterval is the minimum time between code deliveries for the
	// same account, counting the initial delivery.
	ResendInterval time.Duration
}

// SessionConfig tunes issued sessions.
type SessionConfig struct {
	Lifetime    time.Duration
	RedisPrefix string
}

// ProviderConfig tunes calls to the account record store.
type ProviderConfig struct {
	// CallTimeout bounds a single AccountProvider call.
	CallTimeout time.Duration
}

// AuditConfig tunes audit recording. Audit is a security requirement, not a
// best-effort log: when enabled, a sink write failure fails the step.
type AuditConfig struct {
	Enabled bool
}

// MetricsConfig tunes the in-process counter subsystem.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration: 10 minute attempt window,
// lockout after 5 failed passwords (manual unlock only), 6-digit codes valid
// for 5 minutes with 5 verification attempts, 60 second resend interval,
// 8 hour sessions, audit and metrics on.
func DefaultConfig() Config {
	return Config{
		Attempt: AttemptConfig{
			IdleWindow:        10 * time.Minute,
			RedisPrefix:       "sla",
			MaxUsernameLength: 64,
		},
		Lockout: LockoutConfig{
			MaxAttempts:   5,
			CounterWindow: 0,
		},
		Code: CodeConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "slc",
		},
		Delivery: DeliveryConfig{
			SendTimeout:    10 * time.Second,
			ResendInterval: 60 * time.Second,
		},
		Session: SessionConfig{
			Lifetime:    8 * time.Hour,
			RedisPrefix: "sls",
		},
		Provider: ProviderConfig{
			CallTimeout: 5 * time.Second,
		},
		Audit:   AuditConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// ConfigStrict tightens the defaults for high-exposure deployments: lockout
// after 3 failures, 8-digit codes valid for 3 minutes with 3 attempts,
// 2 hour sessions.
func ConfigStrict() Config {
	cfg := DefaultConfig()
	cfg.Lockout.MaxAttempts = 3
	cfg.Code.Digits = 8
	cfg.Code.TTL = 3 * time.Minute
	cfg.Code.MaxAttempts = 3
	cfg.Session.Lifetime = 2 * time.Hour
	return cfg
}

// ConfigRelaxed loosens the defaults for low-risk internal deployments.
func ConfigRelaxed() Config {
	cfg := DefaultConfig()
	cfg.Lockout.MaxAttempts = 10
	cfg.Code.TTL = 10 * time.Minute
	cfg.Delivery.ResendInterval = 30 * time.Second
	cfg.Session.Lifetime = 12 * time.Hour
	return cfg
}

// Validate reports the first configuration inconsistency found.
func (c *Config) Validate() error {
	if c.Attempt.IdleWindow <= 0 {
		return errors.New("attempt idle window must be positive")
	}
	if c.Attempt.MaxUsernameLength <= 0 {
		return errors.New("max username length must be positive")
	}
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("lockout max attempts must be at least 1")
	}
	if c.Lockout.CounterWindow < 0 {
		return errors.New("lockout counter window must not be negative")
	}
	if c.Code.Digits < 4 || c.Code.Digits > 10 {
		return errors.New("code digits must be between 4 and 10")
	}
	if c.Code.TTL <= 0 {
		return errors.New("code ttl must be positive")
	}
	if c.Code.MaxAttempts < 1 {
		return errors.New("code max attempts must be at least 1")
	}
	if c.Code.TTL > c.Attempt.IdleWindow {
		return errors.New("code ttl must not exceed the attempt idle window")
	}
	if c.Delivery.SendTimeout <= 0 {
		return errors.New("delivery send timeout must be positive")
	}
	if c.Delivery.ResendInterval < 0 {
		return errors.New("resend interval must not be negative")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.Provider.CallTimeout <= 0 {
		return errors.New("provider call timeout must be positive")
	}
	return nil
}
