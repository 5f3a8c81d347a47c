package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notelab_idp", Name: "tokens_issued_total", Help: "Number of tokens issued by type (access, id, refresh)."},
		[]string{"type"},
	)
	GrantFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notelab_idp", Name: "grant_failures_total", Help: "Number of failed grant redemptions by reason."},
		[]string{"reason"},
	)
	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notelab_idp", Name: "logins_total", Help: "Number of login attempts by outcome (success, failure) and kind (local, federated)."},
		[]string{"kind", "outcome"},
	)
	CleanupDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notelab_idp", Name: "cleanup_deleted_total", Help: "Number of expired records removed by the cleanup job, per table."},
		[]string{"table"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notelab_idp", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notelab_idp", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(TokensIssued)
	reg.MustRegister(GrantFailures)
	reg.MustRegister(Logins)
	reg.MustRegister(CleanupDeleted)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
