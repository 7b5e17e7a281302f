package userauth

import (
	"context"
	"errors"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
)

// Authenticate verifies a raw bearer token and resolves the caller.
//
// Every token format, signature, claim and lookup failure is returned as
// [ErrAuthenticationRequired]; the precise reason is logged at debug level
// only. [ErrBackendUnavailable] is returned when an active-session check
// cannot reach Redis.
func (e *Engine) Authenticate(ctx context.Context, rawToken string) (Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := flows.RunVerify(ctx, rawToken, flows.VerifyDeps{
		Decoder:              e.jwt,
		Alg:                  e.jwt.Alg(),
		Issuer:               e.config.JWT.Issuer,
		Audience:             e.config.JWT.Audience,
		ServiceRole:          e.config.JWT.ServiceRole,
		RequireActiveSession: e.config.JWT.RequireActiveSession,
		Users:                e.users,
		Sessions:             e.sessions,
		Hooks:                e.hooks(),
		Errors:               flowErrors(),
	})
	if e.metrics != nil {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	if res.Failure != flows.VerifyFailureNone {
		e.metricInc(MetricVerifyFailure)
		e.logger.DebugContext(ctx, "authenticate: token rejected",
			"kind", res.Failure.String(),
			"reason", res.Reason,
		)
		switch {
		case errors.Is(res.Err, ErrBackendUnavailable), errors.Is(res.Err, ErrEngineNotReady):
			return nil, res.Err
		default:
			return nil, ErrAuthenticationRequired
		}
	}

	e.metricInc(MetricVerifySuccess)
	if res.Service {
		return ServicePrincipal{
			Subject:   res.Claims.Subject,
			SessionID: res.Claims.SessionID,
			Roles:     res.Claims.Roles,
		}, nil
	}
	return DomainUser{
		User:      fromRecord(res.User),
		SessionID: res.Claims.SessionID,
		Roles:     res.Claims.Roles,
	}, nil
}
