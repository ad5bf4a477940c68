package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_recorded_total",
		Help: "Total number of sales recorded",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Total number of rejected sale operations",
	}, []string{"reason"})

	CommissionsGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commissions_generated_total",
		Help: "Total number of commissions generated",
	}, []string{"kind"})

	CommissionRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_runs_total",
		Help: "Total number of commission generation passes",
	})

	CommissionGenerationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commission_generation_latency_seconds",
		Help:    "Latency of commission generation passes",
		Buckets: prometheus.DefBuckets,
	})

	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Total number of completed settlement passes",
	})

	SettlementsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_failed_total",
		Help: "Total number of failed settlement passes",
	}, []string{"reason"})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_latency_seconds",
		Help:    "Latency of settlement passes",
		Buckets: prometheus.DefBuckets,
	})

	PaymentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_created_total",
		Help: "Total number of payments created by settlement",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
