// Package metrics provides Prometheus instrumentation for the Dinwallet platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinwallet",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dinwallet",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TopupsSubmittedTotal counts top-up requests entering the queue.
	TopupsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dinwallet",
		Name:      "topups_submitted_total",
		Help:      "Total top-up requests submitted.",
	})

	// TopupsProcessedTotal counts top-up requests resolved by an admin, by outcome.
	TopupsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinwallet",
			Name:      "topups_processed_total",
			Help:      "Total top-up requests processed by outcome (approved, rejected).",
		},
		[]string{"outcome"},
	)

	// PurchasesTotal counts purchase settlements by outcome.
	PurchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinwallet",
			Name:      "purchases_total",
			Help:      "Total purchase settlements by outcome (completed, failed).",
		},
		[]string{"outcome"},
	)

	// LedgerAdjustmentsTotal counts applied balance changes by journal reason.
	LedgerAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinwallet",
			Name:      "ledger_adjustments_total",
			Help:      "Total ledger adjustments applied by reason.",
		},
		[]string{"reason"},
	)

	// VersionConflictsTotal counts optimistic concurrency conflicts seen by the ledger.
	VersionConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dinwallet",
		Name:      "wallet_version_conflicts_total",
		Help:      "Total wallet version conflicts detected during ledger commits.",
	})

	// RateLimitRejectionsTotal counts requests refused by the keyed rate limiter.
	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinwallet",
			Name:      "rate_limit_rejections_total",
			Help:      "Total requests rejected by rate limiting, by limiter name.",
		},
		[]string{"limiter"},
	)

	// ReconciliationRunsTotal counts reconciliation sweeps by result.
	ReconciliationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinwallet",
			Name:      "reconciliation_runs_total",
			Help:      "Total reconciliation sweeps by result (clean, discrepant, error).",
		},
		[]string{"result"},
	)

	// ReconciliationDiscrepancies tracks mismatched wallet/currency pairs from the last sweep.
	ReconciliationDiscrepancies = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dinwallet",
		Name:      "reconciliation_discrepancies",
		Help:      "Wallet/currency pairs whose journal sum disagreed with the stored balance in the last sweep.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dinwallet",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dinwallet", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dinwallet", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dinwallet", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dinwallet", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dinwallet", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dinwallet", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TopupsSubmittedTotal,
		TopupsProcessedTotal,
		PurchasesTotal,
		LedgerAdjustmentsTotal,
		VersionConflictsTotal,
		RateLimitRejectionsTotal,
		ReconciliationRunsTotal,
		ReconciliationDiscrepancies,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
