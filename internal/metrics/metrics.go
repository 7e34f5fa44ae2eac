// Package metrics defines the Prometheus collectors of the server. They are
// kept in one struct so tests can use a private registry.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics bundles every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInflight prometheus.Gauge

	Logins    *prometheus.CounterVec // provider, outcome
	Refreshes *prometheus.CounterVec // provider, outcome
	Guesses   *prometheus.CounterVec // outcome, reason
	Points    prometheus.Histogram
}

// New creates the collectors and registers them on reg (the default
// registerer when nil). Collectors already registered by an earlier call are
// reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aot_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aot_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aot_http_inflight_requests",
			Help: "Requests currently being served.",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aot_logins_total",
			Help: "OAuth logins by provider and outcome.",
		}, []string{"provider", "outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aot_token_refreshes_total",
			Help: "Access token refreshes by provider and outcome.",
		}, []string{"provider", "outcome"}),
		Guesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aot_guesses_total",
			Help: "Guess submissions by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		Points: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aot_guess_points",
			Help:    "Points awarded per accepted guess.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}

	var err error
	if m.HTTPRequests, err = register(reg, m.HTTPRequests); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = register(reg, m.HTTPDuration); err != nil {
		return nil, err
	}
	if m.HTTPInflight, err = register(reg, m.HTTPInflight); err != nil {
		return nil, err
	}
	if m.Logins, err = register(reg, m.Logins); err != nil {
		return nil, err
	}
	if m.Refreshes, err = register(reg, m.Refreshes); err != nil {
		return nil, err
	}
	if m.Guesses, err = register(reg, m.Guesses); err != nil {
		return nil, err
	}
	if m.Points, err = register(reg, m.Points); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg. When an identical collector is already registered,
// that one is returned instead.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("metrics: registering collector: %w", err)
	}
	return c, nil
}

// Login counts a login attempt.
func (m *Metrics) Login(provider, outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(provider, outcome).Inc()
}

// Refresh counts a token refresh attempt.
func (m *Metrics) Refresh(provider, outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(provider, outcome).Inc()
}

// GuessAccepted counts an accepted guess and its points.
func (m *Metrics) GuessAccepted(points int) {
	if m == nil {
		return
	}
	m.Guesses.WithLabelValues(OutcomeOK, "").Inc()
	m.Points.Observe(float64(points))
}

// GuessRejected counts a refused guess. reason is a guess rejection reason or
// OutcomeError for failures that were not the player's fault.
func (m *Metrics) GuessRejected(reason string) {
	if m == nil {
		return
	}
	m.Guesses.WithLabelValues(OutcomeRejected, reason).Inc()
}
