// Package metrics holds Prometheus instruments used across the dashboard.
// All collectors are registered with the global registry, so serving
// promhttp.Handler() on /metrics is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashactyl_registrations_total",
			Help: "Registration attempts by outcome.",
		}, []string{"outcome"})

	ProxyChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashactyl_proxy_checks_total",
			Help: "IP reputation lookups by result (clean, risky, error, cached).",
		}, []string{"result"})

	UserUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashactyl_user_updates_total",
			Help: "Cumulative number of userUpdate events published.",
		})

	AFKCoinsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashactyl_afk_coins_total",
			Help: "Cumulative number of coins credited by AFK streams.",
		})

	ActiveAFKStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashactyl_afk_streams_active",
			Help: "Number of AFK streams currently open.",
		})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashactyl_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"})

	PanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashactyl_http_panics_total",
			Help: "Handler panics recovered by the HTTP middleware.",
		})
)

func init() {
	prometheus.MustRegister(
		RegistrationsTotal,
		ProxyChecksTotal,
		UserUpdatesTotal,
		AFKCoinsTotal,
		ActiveAFKStreams,
		HTTPRequestsTotal,
		PanicsTotal,
	)
}
