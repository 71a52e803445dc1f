package internaldefs

import (
	staffauth "github.com/opsdesk/staffauth"
)

// CounterDef maps one engine counter to an exported instrument name.
type CounterDef struct {
	ID   staffauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Order is stable; exporters
// iterate it to register instruments.
var CounterDefs = []CounterDef{
	{staffauth.MetricUsernameStepSuccess, "staffauth_username_step_success_total", "Username steps that advanced the sequence."},
	{staffauth.MetricUsernameStepFailure, "staffauth_username_step_failure_total", "Username steps rejected (unknown account, role, lock)."},
	{staffauth.MetricPasswordStepSuccess, "staffauth_password_step_success_total", "Password steps that advanced the sequence."},
	{staffauth.MetricPasswordStepFailure, "staffauth_password_step_failure_total", "Password steps rejected or errored."},
	{staffauth.MetricCodeStepSuccess, "staffauth_code_step_success_total", "Code steps that completed a login."},
	{staffauth.MetricCodeStepFailure, "staffauth_code_step_failure_total", "Code steps rejected or errored."},
	{staffauth.MetricCodeResent, "staffauth_code_resent_total", "Code challenges re-issued on request."},
	{staffauth.MetricResendRateLimited, "staffauth_resend_rate_limited_total", "Code deliveries refused by the resend interval."},
	{staffauth.MetricAccountLockout, "staffauth_account_lockout_total", "Accounts locked by the failure threshold."},
	{staffauth.MetricSessionIssued, "staffauth_session_issued_total", "Sessions issued on full login success."},
	{staffauth.MetricSessionInvalidated, "staffauth_session_invalidated_total", "Sessions invalidated by logout."},
	{staffauth.MetricAttemptExpired, "staffauth_attempt_expired_total", "Login attempts expired idle."},
	{staffauth.MetricAuditWriteFailure, "staffauth_audit_write_failure_total", "Audit sink writes that failed (steps refused)."},
}
