package staffauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/opsdesk/staffauth/internal/limiters"
	"github.com/opsdesk/staffauth/internal/stores"
	"github.com/opsdesk/staffauth/session"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first step call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider  AccountProvider
	sender    CodeSender
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing attempts, challenges, lockout
// counters, and sessions.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithProvider sets the staff record store adapter.
func (b *Builder) WithProvider(p AccountProvider) *Builder {
	b.provider = p
	return b
}

// WithSender sets the out-of-band code delivery channel.
func (b *Builder) WithSender(s CodeSender) *Builder {
	b.sender = s
	return b
}

// WithAuditSink sets the audit destination. With audit enabled and no sink
// configured, Build refuses: silently unaudited authentication is not a
// supported mode.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.provider == nil {
		return nil, errors.New("account provider required")
	}
	if b.sender == nil {
		return nil, errors.New("code sender required")
	}

	sink := b.auditSink
	if cfg.Audit.Enabled {
		if sink == nil {
			return nil, errors.New("audit enabled but no sink configured")
		}
	} else {
		sink = NoOpSink{}
	}

	engine := &Engine{
		config:     cfg,
		provider:   b.provider,
		sender:     b.sender,
		attempts:   stores.NewAttemptStore(b.redis, cfg.Attempt.RedisPrefix),
		challenges: stores.NewChallengeStore(b.redis, cfg.Code.RedisPrefix),
		lockout: limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
			Threshold: cfg.Lockout.MaxAttempts,
			Window:    cfg.Lockout.CounterWindow,
		}),
		resend:   limiters.NewResendLimiter(b.redis, cfg.Delivery.ResendInterval),
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		audit:    sink,
		metrics:  NewMetrics(cfg.Metrics),
	}

	b.built = true
	return engine, nil
}
