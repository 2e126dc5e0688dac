// Package metrics exposes Prometheus counters for token refreshes and
// vendor API calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeRevoked = "revoked"
	OutcomeSkipped = "skipped"
)

var (
	// CredentialRefreshes counts refresh-token exchanges per provider.
	CredentialRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interactor",
		Name:      "credential_refresh_total",
		Help:      "OAuth refresh-token exchanges by provider and outcome.",
	}, []string{"provider", "outcome"})

	// VendorRequests counts calls made to vendor REST APIs.
	VendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interactor",
		Name:      "vendor_requests_total",
		Help:      "Vendor API requests by provider, operation and outcome.",
	}, []string{"provider", "operation", "outcome"})

	// Attachments counts message attachments returned or skipped.
	Attachments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interactor",
		Name:      "attachments_total",
		Help:      "Mail attachments by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ScopeGrants counts newly recorded granted scopes.
	ScopeGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interactor",
		Name:      "scope_grants_total",
		Help:      "Granted scopes recorded by provider and access type.",
	}, []string{"provider", "access_type"})
)

// ObserveVendor records one vendor call outcome.
func ObserveVendor(provider, operation string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	VendorRequests.WithLabelValues(provider, operation, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
