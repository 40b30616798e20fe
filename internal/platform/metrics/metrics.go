// Package metrics holds process-level Prometheus metrics. Registry
// operation metrics live in internal/registry/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registrar_domain_requests_created_total",
		Help: "Total number of domain requests created",
	})

	RequestsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registrar_domain_requests_approved_total",
		Help: "Total number of domain requests approved with a confirmed registry create",
	})

	// RequestsOpen counts requests that are neither approved nor closed.
	RequestsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registrar_domain_requests_open",
		Help: "Number of domain requests still moving through review",
	})

	DomainsManaged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registrar_domains_managed",
		Help: "Number of live registry-confirmed domains under management",
	})
)
