// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "splitledger"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	ExpensesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expenses_created_total",
		Help:      "Expenses appended to the ledger, by split type.",
	}, []string{"split_type"})

	SettlementsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_recorded_total",
		Help:      "Settlements appended to the ledger.",
	})

	// DeletionsBlocked counts destructive operations refused because of an
	// outstanding balance. kind is "user", "group" or "member".
	DeletionsBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deletions_blocked_total",
		Help:      "Deletions refused by the consistency guard.",
	}, []string{"kind"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_cache_lookups_total",
		Help:      "Balance cache lookups by result (hit or miss).",
	}, []string{"result"})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_cache_errors_total",
		Help:      "Balance cache backend failures by operation.",
	}, []string{"op"})

	CacheStaleWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_cache_stale_writes_total",
		Help:      "Aggregates discarded because the group was invalidated while they were computed.",
	})

	AuditImbalancedGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_imbalanced_groups",
		Help:      "Groups failing the last ledger audit.",
	})

	AuditRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_runs_total",
		Help:      "Ledger audit runs by outcome.",
	}, []string{"outcome"})
)
