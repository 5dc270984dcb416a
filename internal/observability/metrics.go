package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	httpInFlightGauge      prometheus.Gauge
	ledgerOperationCounter *prometheus.CounterVec
	ledgerRetryCounter     *prometheus.CounterVec
	ledgerImbalanceCounter *prometheus.CounterVec
	ledgerDriftGauge       prometheus.Gauge
	limitRejectionCounter  *prometheus.CounterVec
	suspiciousCounter      prometheus.Counter
	idempotencyCounter     *prometheus.CounterVec
	notificationCounter    *prometheus.CounterVec
	rechargeCounter        *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		httpInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		})

		ledgerOperationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by type and outcome code",
		}, []string{"type", "outcome"})

		ledgerRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_conflict_retries_total",
			Help: "Atomic units retried after a persistence conflict",
		}, []string{"operation"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Reconciliation findings that violate ledger invariants",
		}, []string{"check"})

		ledgerDriftGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_balance_drift_points",
			Help: "Sum of balances minus opening balances and bonuses, plus penalties; zero when conserved",
		})

		limitRejectionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_limit_rejections_total",
			Help: "Limit reservations rejected by window",
		}, []string{"window"})

		suspiciousCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_suspicious_transactions_total",
			Help: "Transactions whose risk score reached the audit threshold",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatch outcomes",
		}, []string{"result"})

		rechargeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recharge_transitions_total",
			Help: "Recharge request transitions",
		}, []string{"status"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			httpInFlightGauge,
			ledgerOperationCounter,
			ledgerRetryCounter,
			ledgerImbalanceCounter,
			ledgerDriftGauge,
			limitRejectionCounter,
			suspiciousCounter,
			idempotencyCounter,
			notificationCounter,
			rechargeCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func AddHTTPInFlight(delta float64) {
	if httpInFlightGauge == nil {
		return
	}
	httpInFlightGauge.Add(delta)
}

func IncrementLedgerOperation(txType, outcome string) {
	if ledgerOperationCounter == nil {
		return
	}
	ledgerOperationCounter.WithLabelValues(txType, outcome).Inc()
}

func IncrementLedgerRetry(operation string) {
	if ledgerRetryCounter == nil {
		return
	}
	ledgerRetryCounter.WithLabelValues(operation).Inc()
}

func IncrementLedgerImbalance(check string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(check).Inc()
}

func SetLedgerDrift(points int64) {
	if ledgerDriftGauge == nil {
		return
	}
	ledgerDriftGauge.Set(float64(points))
}

func IncrementLimitRejection(window string) {
	if limitRejectionCounter == nil {
		return
	}
	limitRejectionCounter.WithLabelValues(window).Inc()
}

func IncrementSuspicious() {
	if suspiciousCounter == nil {
		return
	}
	suspiciousCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementNotification(result string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(result).Inc()
}

func IncrementRechargeTransition(status string) {
	if rechargeCounter == nil {
		return
	}
	rechargeCounter.WithLabelValues(status).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
