package internaldefs

import (
	userauth "github.com/VilnaCRM-Org/user-service-sub004"
)

type CounterDef struct {
	ID   userauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   userauth.MetricID
	Name string
	Help string
}

// EventsDroppedName is the counter for events lost to dispatcher backpressure.
const EventsDroppedName = "userauth_events_dropped_total"

var CounterDefs = []CounterDef{
	{ID: userauth.MetricVerifySuccess, Name: "userauth_verify_success_total", Help: "Access tokens resolved to an identity."},
	{ID: userauth.MetricVerifyFailure, Name: "userauth_verify_failure_total", Help: "Access tokens rejected."},
	{ID: userauth.MetricSignInSuccess, Name: "userauth_sign_in_success_total", Help: "Sign-ins with valid credentials."},
	{ID: userauth.MetricSignInFailure, Name: "userauth_sign_in_failure_total", Help: "Sign-ins rejected for bad credentials."},
	{ID: userauth.MetricSignInLocked, Name: "userauth_sign_in_locked_total", Help: "Sign-ins refused while the account was locked."},
	{ID: userauth.MetricSessionCreated, Name: "userauth_session_created_total", Help: "Sessions created."},
	{ID: userauth.MetricTwoFactorRequired, Name: "userauth_two_factor_required_total", Help: "Sign-ins that opened a pending two-factor session."},
	{ID: userauth.MetricTwoFactorSuccess, Name: "userauth_two_factor_success_total", Help: "Second factors accepted."},
	{ID: userauth.MetricTwoFactorFailure, Name: "userauth_two_factor_failure_total", Help: "Second factors rejected."},
	{ID: userauth.MetricTwoFactorRejected, Name: "userauth_two_factor_rejected_total", Help: "Pending two-factor sessions destroyed."},
	{ID: userauth.MetricRecoveryCodeUsed, Name: "userauth_recovery_code_used_total", Help: "Recovery codes consumed."},
	{ID: userauth.MetricRefreshSuccess, Name: "userauth_refresh_success_total", Help: "Refresh tokens rotated."},
	{ID: userauth.MetricRefreshFailure, Name: "userauth_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: userauth.MetricRefreshTheft, Name: "userauth_refresh_theft_total", Help: "Refresh token reuse detections."},
	{ID: userauth.MetricLogout, Name: "userauth_logout_total", Help: "Single-session sign-outs."},
	{ID: userauth.MetricLogoutAll, Name: "userauth_logout_all_total", Help: "All-device sign-outs."},
	{ID: userauth.MetricPasswordResetRequest, Name: "userauth_password_reset_request_total", Help: "Password reset requests accepted."},
	{ID: userauth.MetricPasswordResetRateLimited, Name: "userauth_password_reset_rate_limited_total", Help: "Password reset requests throttled."},
	{ID: userauth.MetricPasswordResetConfirm, Name: "userauth_password_reset_confirm_total", Help: "Password resets confirmed."},
	{ID: userauth.MetricPasswordResetFailure, Name: "userauth_password_reset_failure_total", Help: "Password reset confirmations rejected."},
	{ID: userauth.MetricPasswordChanged, Name: "userauth_password_changed_total", Help: "Password changes."},
}

var HistogramDefs = []HistogramDef{
	{ID: userauth.MetricVerifyLatency, Name: "userauth_verify_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the upper bounds of the Metrics latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
