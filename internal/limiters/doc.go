// Package limiters implements the Redis-backed counting policies around the
// login sequence: the persistent failed-password lockout counter and the
// per-account code resend interval.
package limiters
