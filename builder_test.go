package staffauth

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRejectsMissingCollaborators(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	provider := newFakeProvider()
	sender := &fakeSender{}
	sink := NewMemorySink()

	cases := []struct {
		name  string
		build func() (*Engine, error)
	}{
		{"no redis", func() (*Engine, error) {
			return New().WithProvider(provider).WithSender(sender).WithAuditSink(sink).Build()
		}},
		{"no provider", func() (*Engine, error) {
			return New().WithRedis(rdb).WithSender(sender).WithAuditSink(sink).Build()
		}},
		{"no sender", func() (*Engine, error) {
			return New().WithRedis(rdb).WithProvider(provider).WithAuditSink(sink).Build()
		}},
		{"audit enabled without sink", func() (*Engine, error) {
			return New().WithRedis(rdb).WithProvider(provider).WithSender(sender).Build()
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.build(); err == nil {
				t.Fatal("expected build error")
			}
		})
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := DefaultConfig()
	cfg.Code.Digits = 2

	_, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithProvider(newFakeProvider()).
		WithSender(&fakeSender{}).
		WithAuditSink(NewMemorySink()).
		Build()
	if err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	builder := New().
		WithRedis(rdb).
		WithProvider(newFakeProvider()).
		WithSender(&fakeSender{}).
		WithAuditSink(NewMemorySink())

	if _, err := builder.Build(); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	if _, err := builder.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestAuditDisabledDefaultsToNoOpSink(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	provider := newFakeProvider()
	seedAccount(provider)

	cfg := testConfig()
	cfg.Audit.Enabled = false

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithProvider(provider).
		WithSender(&fakeSender{}).
		Build()
	if err != nil {
		t.Fatalf("build without sink failed: %v", err)
	}

	if _, err := engine.SubmitUsername(context.Background(), "dana"); err != nil {
		t.Fatalf("step with audit disabled failed: %v", err)
	}
}

func TestZeroEngineReportsNotReady(t *testing.T) {
	var engine *Engine
	if _, err := engine.SubmitUsername(context.Background(), "dana"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := (&Engine{}).ValidateSession(context.Background(), "sess"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestHalfWiredEngineReportsNotReady(t *testing.T) {
	// A provider alone does not make the engine usable: every surface runs
	// the same readiness gate.
	engine := &Engine{provider: newFakeProvider()}

	if _, err := engine.ValidateSession(context.Background(), "sess"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("ValidateSession: expected ErrEngineNotReady, got %v", err)
	}
	if err := engine.Logout(context.Background(), "sess"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Logout: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.FailedAttempts(context.Background(), "acct-1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("FailedAttempts: expected ErrEngineNotReady, got %v", err)
	}
}
