package staffauth

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default": DefaultConfig(),
		"strict":  ConfigStrict(),
		"relaxed": ConfigRelaxed(),
	} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s config invalid: %v", name, err)
		}
	}
}

func TestConfigValidateRejectsInconsistencies(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero idle window", func(c *Config) { c.Attempt.IdleWindow = 0 }},
		{"zero username length", func(c *Config) { c.Attempt.MaxUsernameLength = 0 }},
		{"zero lockout attempts", func(c *Config) { c.Lockout.MaxAttempts = 0 }},
		{"negative counter window", func(c *Config) { c.Lockout.CounterWindow = -time.Minute }},
		{"too few code digits", func(c *Config) { c.Code.Digits = 3 }},
		{"too many code digits", func(c *Config) { c.Code.Digits = 11 }},
		{"zero code ttl", func(c *Config) { c.Code.TTL = 0 }},
		{"zero code attempts", func(c *Config) { c.Code.MaxAttempts = 0 }},
		{"code ttl past idle window", func(c *Config) { c.Code.TTL = c.Attempt.IdleWindow + time.Second }},
		{"zero send timeout", func(c *Config) { c.Delivery.SendTimeout = 0 }},
		{"negative resend interval", func(c *Config) { c.Delivery.ResendInterval = -time.Second }},
		{"zero session lifetime", func(c *Config) { c.Session.Lifetime = 0 }},
		{"zero provider timeout", func(c *Config) { c.Provider.CallTimeout = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestStrictPresetTightensDefaults(t *testing.T) {
	base := DefaultConfig()
	strict := ConfigStrict()

	if strict.Lockout.MaxAttempts >= base.Lockout.MaxAttempts {
		t.Error("strict preset should lower the lockout threshold")
	}
	if strict.Code.Digits <= base.Code.Digits {
		t.Error("strict preset should lengthen codes")
	}
	if strict.Session.Lifetime >= base.Session.Lifetime {
		t.Error("strict preset should shorten sessions")
	}
}
