// Package staffauth implements the three-step login sequence used to
// authenticate privileged desk operators: username, password, then a one-time
// code delivered out-of-band to the account's registered phone number. On full
// success the engine issues an opaque, server-held session reference.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// staffauth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (StepResult, LoginResult, AuditEvent, MetricsSnapshot).
// Flow coordination, attempt/challenge storage, and lockout arithmetic live
// under internal/ and are never exported.
//
// The account record store and the code delivery channel are integration
// points, not implementations: callers supply an [AccountProvider] and a
// [CodeSender]. The engine never hashes or stores passwords itself — password
// verification is the provider's job.
//
// # Security contract
//
//   - Username-step failures (unknown account, wrong role, wrong password)
//     are indistinguishable to the caller; the audit trail keeps the detail.
//   - Lockout counters are applied atomically in Redis so racing requests
//     cannot exceed the configured threshold.
//   - One-time codes are stored hashed, compared in constant time, and
//     consumed single-use; replays fail.
//   - An authentication step never succeeds without a durable audit record:
//     if the audit sink errors, the step fails with ErrServiceUnavailable.
package staffauth
