package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database performance metrics
var (
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbridge_db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailbridge_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailbridge_db_pool_total_conns",
			Help: "Total number of connections in the pool",
		},
		[]string{"role"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailbridge_db_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		},
		[]string{"role"},
	)

	DBTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbridge_db_transactions_total",
			Help: "Total number of database transactions by outcome",
		},
		[]string{"outcome"},
	)

	DBTransactionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailbridge_db_transaction_duration_seconds",
			Help:    "Duration of database transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Directory synchronization metrics
var (
	SyncEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbridge_sync_events_total",
			Help: "Total number of directory events processed",
		},
		[]string{"result"},
	)

	SyncAccountsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailbridge_sync_accounts_updated_total",
			Help: "Total number of mirrored accounts updated by directory events",
		},
	)
)

// Provisioning metrics
var (
	ProvisioningOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbridge_provisioning_operations_total",
			Help: "Total number of provisioning operations",
		},
		[]string{"operation", "status"},
	)
)

// Remote server health metrics
var (
	HealthProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbridge_health_probes_total",
			Help: "Total number of remote server health probes",
		},
		[]string{"result"},
	)

	ServerHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailbridge_server_health",
			Help: "Last probed health per remote server (1 for the active state)",
		},
		[]string{"cid", "health"},
	)
)

// HTTP API metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbridge_http_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailbridge_http_request_duration_seconds",
			Help:    "Duration of admin API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
