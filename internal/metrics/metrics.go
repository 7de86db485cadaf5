package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "commentgate"

var (
	// AccessDecisions counts gate outcomes; reason is "authorized" or an error code.
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_decisions_total",
		Help:      "Access gate decisions by reason.",
	}, []string{"reason"})

	DeviceBindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_bindings_total",
		Help:      "Device binding outcomes (bound, race_lost, mismatch_allowed, mismatch_denied).",
	}, []string{"outcome"})

	UsageRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "usage_recorded_total",
		Help:      "Successful generations charged to a quota.",
	})

	CountersReset = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_counters_reset_total",
		Help:      "Quota counters zeroed by the reset scheduler.",
	})

	Activations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "license_activations_total",
		Help:      "License activation attempts by result.",
	}, []string{"result"})

	BlocklistCheckErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocklist_check_errors_total",
		Help:      "Blocklist lookups that failed, by applied policy.",
	}, []string{"policy"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of generation provider calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"result"})
)
