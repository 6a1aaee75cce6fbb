package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageTransitions counts stage status changes by stage and new status
	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_stage_transitions_total",
			Help: "Total number of transfer stage status transitions",
		},
		[]string{"stage", "status"},
	)

	// ActiveTransfers tracks the number of open transfer contexts
	ActiveTransfers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_active_transfers",
			Help: "Number of transfer contexts currently tracked",
		},
	)

	// TransfersOpened counts contexts opened by route and origin (resumed or submitted)
	TransfersOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_transfers_opened_total",
			Help: "Total number of transfer contexts opened",
		},
		[]string{"route", "origin"},
	)

	// StageDuration tracks the time a stage spent pending before turning terminal
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_stage_duration_seconds",
			Help:    "Time spent pending per stage in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"stage"},
	)

	// SubscriptionsActive tracks live chain subscriptions by chain
	SubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_subscriptions_active",
			Help: "Number of live chain subscriptions",
		},
		[]string{"chain"},
	)

	// ChainRequestDuration tracks chain read latency
	ChainRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_chain_request_duration_seconds",
			Help:    "Chain request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// ActionsTotal counts user actions by action and result (accepted, ignored, failed)
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_actions_total",
			Help: "Total number of transfer actions invoked",
		},
		[]string{"action", "result"},
	)

	// PendingWithdrawals tracks pending withdrawals seen by status
	PendingWithdrawals = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_pending_withdrawals",
			Help: "Number of tracked pending withdrawals by status",
		},
		[]string{"status"},
	)

	// GasEstimateLocked is 1 while the gas estimator blocks submission
	GasEstimateLocked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_gas_estimate_locked",
			Help: "Whether the gas estimate for a route is locked",
		},
		[]string{"route"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// NATSConnectionStatus is 1 while the TVM event stream is connected
	NATSConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "Whether the TVM event stream connection is up",
		},
	)
)
